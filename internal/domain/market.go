package domain

import "time"

// PriceScale is what one share of the winning outcome pays out, in base
// units. Valid market prices are 1..PriceScale-1.
const PriceScale int64 = 100

// Outcome indexes a market outcome. InvalidOutcome stands for "the market
// is invalid" and may be reported, disputed and finalized like any other.
type Outcome int

const InvalidOutcome Outcome = -1

// Valid reports whether o names an outcome of a market with n outcomes or
// is the invalid outcome.
func (o Outcome) Valid(n int) bool {
	return o == InvalidOutcome || (o >= 0 && int(o) < n)
}

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusTrading   MarketStatus = "trading"
	MarketStatusResoluted MarketStatus = "resoluted"
	MarketStatusDisputed  MarketStatus = "disputed"
	MarketStatusFinalized MarketStatus = "finalized"
)

// MarketRecord is the persisted form of a market. Payload carries the
// JSON-encoded market snapshot.
type MarketRecord struct {
	ID        uint64
	Creator   string
	Status    MarketStatus
	EndTime   time.Time
	Payload   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MarketSummary is the cached headline view of a market.
type MarketSummary struct {
	ID          uint64       `json:"id"`
	Description string       `json:"description"`
	Outcomes    int          `json:"outcomes"`
	Status      MarketStatus `json:"status"`
	EndTime     time.Time    `json:"end_time"`
	BestPrices  []int64      `json:"best_prices"`
	OpenOrders  int          `json:"open_orders"`
	Winner      *Outcome     `json:"winner,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
