package market

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/orderbook"
)

// PlaceResult describes a placed order and the resting orders it matched.
type PlaceResult struct {
	Order      orderbook.Order  `json:"order"`
	Open       bool             `json:"open"`
	MakerFills []orderbook.Fill `json:"maker_fills,omitempty"`
}

// SellResult describes a market sell.
type SellResult struct {
	Shares   int64            `json:"shares"`
	Proceeds int64            `json:"proceeds"`
	Fills    []orderbook.Fill `json:"fills,omitempty"`
}

func (m *Market) checkTrading(now time.Time) error {
	switch {
	case m.engine.Finalized():
		return fmt.Errorf("market %d: %w", m.id, domain.ErrAlreadyFinalized)
	case m.engine.Resoluted():
		return fmt.Errorf("market %d: %w", m.id, domain.ErrAlreadyResoluted)
	case !now.Before(m.spec.EndTime):
		return fmt.Errorf("market %d: ended %s: %w", m.id, m.spec.EndTime.Format(time.RFC3339), domain.ErrMarketClosed)
	}
	return nil
}

// PlaceOrder buys shares of outcome at up to price per share. The order
// first matches against the best orders of every other outcome whenever
// the complementary price is within its limit; whatever is left rests in
// the book. The caller is debited the committed spend.
func (m *Market) PlaceOrder(now time.Time, caller string, outcome domain.Outcome, spend, price int64, affiliate string) (PlaceResult, []domain.Posting, error) {
	if err := m.checkTrading(now); err != nil {
		return PlaceResult{}, nil, fmt.Errorf("market: place order: %w", err)
	}
	book, err := m.book(outcome)
	if err != nil {
		return PlaceResult{}, nil, fmt.Errorf("market: place order: %w", err)
	}
	if price < 1 || price >= domain.PriceScale {
		return PlaceResult{}, nil, fmt.Errorf("market: place order: price %d outside 1..%d: %w", price, domain.PriceScale-1, domain.ErrInvalidPrice)
	}
	if spend <= 0 {
		return PlaceResult{}, nil, fmt.Errorf("market: place order: spend %d: %w", spend, domain.ErrInvalidAmount)
	}
	// Orders below the dust threshold still go through Place, which closes
	// them at once and keeps the remainder for the claim refund.
	shares := spend / price

	filled, filledSpend, fills := m.fillMatches(outcome, shares, price)
	order, err := book.Place(orderbook.PlaceParams{
		Creator:      caller,
		Spend:        spend,
		Price:        price,
		Affiliate:    affiliate,
		SharesFilled: filled,
		SpendFilled:  filledSpend,
		At:           now,
	})
	if err != nil {
		return PlaceResult{}, nil, fmt.Errorf("market: place order: %w", err)
	}
	res := PlaceResult{Order: *order, Open: book.IsOpen(order.ID), MakerFills: fills}
	var postings []domain.Posting
	if order.Spend > 0 {
		postings = []domain.Posting{{Account: caller, Amount: -order.Spend, Memo: "order"}}
	}
	return res, postings, nil
}

// fillMatches buys up to shares of outcome from the other outcomes'
// books. Each round consumes the same number of shares at the best level
// of every other outcome, so every match forms complete sets worth
// PriceScale per share.
func (m *Market) fillMatches(outcome domain.Outcome, shares, limit int64) (filled, spend int64, fills []orderbook.Fill) {
	for filled < shares {
		price, depth, ok := m.crossDepth(outcome)
		if !ok || price > limit {
			break
		}
		n := min(shares-filled, depth)
		for i, b := range m.books {
			if domain.Outcome(i) == outcome {
				continue
			}
			_, f := b.Consume(n)
			fills = append(fills, f...)
		}
		filled += n
		spend += n * price
	}
	return filled, spend, fills
}

// crossDepth returns the price at which outcome can be bought against the
// other books and the shares available there.
func (m *Market) crossDepth(outcome domain.Outcome) (price, shares int64, ok bool) {
	price, shares = domain.PriceScale, math.MaxInt64
	for i, b := range m.books {
		if domain.Outcome(i) == outcome {
			continue
		}
		best, depth, ok := b.DepthAtBest()
		if !ok {
			return 0, 0, false
		}
		price -= best
		shares = min(shares, depth)
	}
	if price < 1 || shares <= 0 {
		return 0, 0, false
	}
	return price, shares, true
}

// CancelOrder pulls caller's order and refunds its unfilled spend.
func (m *Market) CancelOrder(caller string, outcome domain.Outcome, id orderbook.OrderID) (int64, []domain.Posting, error) {
	if m.engine.Resoluted() {
		return 0, nil, fmt.Errorf("market: cancel order: market %d: %w", m.id, domain.ErrAlreadyResoluted)
	}
	book, err := m.book(outcome)
	if err != nil {
		return 0, nil, fmt.Errorf("market: cancel order: %w", err)
	}
	refund, err := book.Cancel(caller, id)
	if err != nil {
		return 0, nil, fmt.Errorf("market: cancel order: %w", err)
	}
	return refund, credit(caller, refund, "cancel"), nil
}

// SellShares sells caller's shares of outcome into the resting buy orders
// of that outcome, best price first, never below minPrice.
func (m *Market) SellShares(now time.Time, caller string, outcome domain.Outcome, shares, minPrice int64) (SellResult, []domain.Posting, error) {
	if err := m.checkTrading(now); err != nil {
		return SellResult{}, nil, fmt.Errorf("market: sell: %w", err)
	}
	book, err := m.book(outcome)
	if err != nil {
		return SellResult{}, nil, fmt.Errorf("market: sell: %w", err)
	}
	if shares <= 0 {
		return SellResult{}, nil, fmt.Errorf("market: sell: shares %d: %w", shares, domain.ErrInvalidAmount)
	}
	if have := book.ShareBalance(caller); have < shares {
		return SellResult{}, nil, fmt.Errorf("market: sell: have %d shares, selling %d: %w", have, shares, domain.ErrInsufficientShares)
	}

	filled, fills := book.ConsumeAbove(shares, max(minPrice, 1))
	res := SellResult{Shares: filled, Fills: fills}
	if filled == 0 {
		return res, nil, nil
	}
	for _, f := range fills {
		res.Proceeds += f.Spend
	}
	if err := book.RecordSale(caller, filled); err != nil {
		return SellResult{}, nil, fmt.Errorf("market: sell: %w", err)
	}
	return res, credit(caller, res.Proceeds, "sale"), nil
}

func credit(account string, amount int64, memo string) []domain.Posting {
	if amount <= 0 {
		return nil
	}
	return []domain.Posting{{Account: account, Amount: amount, Memo: memo}}
}
