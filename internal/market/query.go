package market

import (
	"maps"
	"slices"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/orderbook"
	"github.com/alanyoungcy/settled/internal/resolution"
)

// BestPrices returns the best bid of every outcome, 0 where a book is
// empty.
func (m *Market) BestPrices() []int64 {
	out := make([]int64, len(m.books))
	for i, b := range m.books {
		out[i], _ = b.BestPrice()
	}
	return out
}

// MarketPrice is the price at which outcome can be bought right now:
// PriceScale less the best prices of every other outcome.
func (m *Market) MarketPrice(outcome domain.Outcome) (int64, error) {
	if _, err := m.book(outcome); err != nil {
		return 0, err
	}
	price := domain.PriceScale
	for i, best := range m.BestPrices() {
		if domain.Outcome(i) != outcome {
			price -= best
		}
	}
	return price, nil
}

// Depth reports the shares spend buys at exactly price on outcome.
func (m *Market) Depth(outcome domain.Outcome, spend, price int64) (int64, error) {
	b, err := m.book(outcome)
	if err != nil {
		return 0, err
	}
	return b.Depth(spend, price), nil
}

// Liquidity is the per-outcome liquidity query.
type Liquidity struct {
	WorstPrice int64 `json:"worst_price"`
	Shares     int64 `json:"shares"`
	Spend      int64 `json:"spend"`
}

// Liquidity reports what spend obtains from outcome's book, or zeros when
// its best price is above maxPrice.
func (m *Market) Liquidity(outcome domain.Outcome, spend, maxPrice int64) (Liquidity, error) {
	b, err := m.book(outcome)
	if err != nil {
		return Liquidity{}, err
	}
	worst, shares, used := b.Liquidity(spend, maxPrice)
	return Liquidity{WorstPrice: worst, Shares: shares, Spend: used}, nil
}

// SellDepth previews SellShares.
func (m *Market) SellDepth(outcome domain.Outcome, shares, minPrice int64) (SellResult, error) {
	b, err := m.book(outcome)
	if err != nil {
		return SellResult{}, err
	}
	filled, proceeds := b.SellDepth(shares, max(minPrice, 1))
	return SellResult{Shares: filled, Proceeds: proceeds}, nil
}

// Levels returns outcome's aggregated book.
func (m *Market) Levels(outcome domain.Outcome) ([]orderbook.LevelView, error) {
	b, err := m.book(outcome)
	if err != nil {
		return nil, err
	}
	return b.Levels(), nil
}

// Position is one account's standing on one outcome.
type Position struct {
	Outcome      domain.Outcome    `json:"outcome"`
	Shares       int64             `json:"shares"`
	OpenSpend    int64             `json:"open_spend"`
	OpenOrders   []orderbook.Order `json:"open_orders"`
	FilledOrders []orderbook.Order `json:"filled_orders"`
}

// Positions returns account's standing on every outcome.
func (m *Market) Positions(account string) []Position {
	out := make([]Position, 0, len(m.books))
	for i, b := range m.books {
		out = append(out, Position{
			Outcome:      domain.Outcome(i),
			Shares:       b.ShareBalance(account),
			OpenSpend:    b.OpenSpend(account),
			OpenOrders:   b.OpenOrders(account),
			FilledOrders: b.FilledOrders(account),
		})
	}
	return out
}

// ShareBalance returns account's shares of outcome.
func (m *Market) ShareBalance(account string, outcome domain.Outcome) (int64, error) {
	b, err := m.book(outcome)
	if err != nil {
		return 0, err
	}
	return b.ShareBalance(account), nil
}

// Info is the public description of a market.
type Info struct {
	ID        uint64              `json:"id"`
	Creator   string              `json:"creator"`
	Spec      domain.MarketSpec   `json:"spec"`
	Status    domain.MarketStatus `json:"status"`
	Judge     string              `json:"judge"`
	Policy    resolution.Policy   `json:"policy"`
	Windows   []resolution.Window `json:"windows"`
	Winner    *domain.Outcome     `json:"winner,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// Info describes the market.
func (m *Market) Info() Info {
	info := Info{
		ID:        m.id,
		Creator:   m.creator,
		Spec:      m.spec,
		Status:    m.Status(),
		Judge:     m.Judge(),
		Policy:    m.engine.Policy(),
		Windows:   m.engine.Windows(),
		CreatedAt: m.createdAt,
	}
	if w, ok := m.engine.Winner(); ok {
		info.Winner = &w
	}
	return info
}

// Summary is the cached headline view.
func (m *Market) Summary(now time.Time) domain.MarketSummary {
	s := domain.MarketSummary{
		ID:          m.id,
		Description: m.spec.Description,
		Outcomes:    m.spec.Outcomes,
		Status:      m.Status(),
		EndTime:     m.spec.EndTime,
		BestPrices:  m.BestPrices(),
		UpdatedAt:   now,
	}
	for _, b := range m.books {
		s.OpenOrders += b.OpenCount()
	}
	if w, ok := m.engine.Winner(); ok {
		s.Winner = &w
	}
	return s
}

// OpenOrderCount is the number of resting orders across outcomes.
func (m *Market) OpenOrderCount() int {
	var n int
	for _, b := range m.books {
		n += b.OpenCount()
	}
	return n
}

// Accounts lists every account that traded or staked on the market.
func (m *Market) Accounts() []string {
	seen := make(map[string]struct{})
	for _, b := range m.books {
		for _, a := range b.Accounts() {
			seen[a] = struct{}{}
		}
	}
	for _, w := range m.engine.Windows() {
		for a := range w.Stakes {
			seen[a] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}
