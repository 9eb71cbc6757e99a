package market

import (
	"fmt"
	"maps"
	"slices"

	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/fixedpoint"
	"github.com/alanyoungcy/settled/internal/resolution"
)

// AffiliatePayout is the part of the creator fee owed to one affiliate.
type AffiliatePayout struct {
	Affiliate string `json:"affiliate"`
	Amount    int64  `json:"amount"`
}

// Claim is everything an account is owed by a finalized market.
type Claim struct {
	Account            string              `json:"account"`
	Winnings           int64               `json:"winnings"`
	OpenOrderRefund    int64               `json:"open_order_refund"`
	DustRefund         int64               `json:"dust_refund"`
	GovernanceEarnings int64               `json:"governance_earnings"`
	Governance         resolution.Earnings `json:"governance"`
	CreatorFee         int64               `json:"creator_fee"`
	ResolutionFee      int64               `json:"resolution_fee"`
	Affiliates         []AffiliatePayout   `json:"affiliates,omitempty"`
	CreatorPayout      int64               `json:"creator_payout"`
	Payout             int64               `json:"payout"`
}

// AffiliateTotal sums the affiliate payouts.
func (c Claim) AffiliateTotal() int64 {
	var total int64
	for _, a := range c.Affiliates {
		total += a.Amount
	}
	return total
}

// Claimable computes account's claim without paying it.
func (m *Market) Claimable(account string) (Claim, error) {
	winner, ok := m.engine.Winner()
	if !ok {
		return Claim{}, fmt.Errorf("market %d: claimable: %w", m.id, domain.ErrNotFinalized)
	}

	c := Claim{Account: account}
	var volume map[string]int64
	c.Winnings, volume = m.winnings(account, winner)
	for _, b := range m.books {
		c.OpenOrderRefund += b.OpenSpend(account)
		c.DustRefund += b.DustBalance(account)
	}
	c.Governance = m.engine.Earnings(account, m.Judge())
	c.GovernanceEarnings = c.Governance.Total()

	c.CreatorFee = fixedpoint.Pct(c.Winnings, m.spec.CreatorFeePct)
	c.ResolutionFee = fixedpoint.Pct(c.Winnings, m.cfg.ResolutionFeePct)
	for _, aff := range slices.Sorted(maps.Keys(volume)) {
		owed := fixedpoint.Mul3Div(volume[aff], m.spec.AffiliateFeePct, m.spec.CreatorFeePct, 10_000)
		if owed > 0 {
			c.Affiliates = append(c.Affiliates, AffiliatePayout{Affiliate: aff, Amount: owed})
		}
	}
	c.CreatorPayout = c.CreatorFee - c.AffiliateTotal()
	c.Payout = c.Winnings - c.CreatorFee - c.ResolutionFee +
		c.GovernanceEarnings + c.OpenOrderRefund + c.DustRefund
	return c, nil
}

// winnings values account's shares under the final outcome and attributes
// that value to the affiliates that referred the orders, oldest order
// first. An invalid market pays every outcome's shares equally.
func (m *Market) winnings(account string, winner domain.Outcome) (int64, map[string]int64) {
	perShare := func(shares int64) int64 { return shares * domain.PriceScale }
	outcomes := []domain.Outcome{winner}
	if winner == domain.InvalidOutcome {
		n := int64(len(m.books))
		perShare = func(shares int64) int64 { return fixedpoint.MulDiv(shares, domain.PriceScale, n) }
		outcomes = outcomes[:0]
		for i := range m.books {
			outcomes = append(outcomes, domain.Outcome(i))
		}
	}

	var total int64
	volume := make(map[string]int64)
	for _, o := range outcomes {
		b := m.books[o]
		value := perShare(b.ShareBalance(account))
		total += value
		remaining := value
		for _, ord := range b.Orders(account) {
			if remaining <= 0 {
				break
			}
			if ord.Affiliate == "" || ord.SharesFilled == 0 {
				continue
			}
			v := min(perShare(ord.SharesFilled), remaining)
			volume[ord.Affiliate] += v
			remaining -= v
		}
	}
	return total, volume
}

// Claim pays out account's claim and forgets its orders and stakes, so a
// second claim is empty. The returned postings credit the claimant, the
// creator, the resolution fee account and each affiliate.
func (m *Market) Claim(account string) (Claim, []domain.Posting, error) {
	c, err := m.Claimable(account)
	if err != nil {
		return Claim{}, nil, err
	}
	var postings []domain.Posting
	postings = append(postings, credit(account, c.Payout, "claim")...)
	postings = append(postings, credit(m.creator, c.CreatorPayout, "creator fee")...)
	postings = append(postings, credit(m.feeAccount(), c.ResolutionFee, "resolution fee")...)
	for _, a := range c.Affiliates {
		postings = append(postings, credit(a.Affiliate, a.Amount, "affiliate fee")...)
	}

	for _, b := range m.books {
		b.ClearAccount(account)
	}
	m.engine.ClearParticipation(account, m.Judge())
	return c, postings, nil
}
