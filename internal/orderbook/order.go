package orderbook

import (
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
)

// DustThreshold is the smallest unfilled remainder an order may rest with.
// Anything below it is treated as fully filled.
const DustThreshold int64 = 100

// OrderID identifies an order within one outcome's book.
type OrderID uint64

// Order is one resting buy commitment on an outcome. Price never changes
// after placement; only the fill counters move.
type Order struct {
	ID           OrderID        `json:"id"`
	Outcome      domain.Outcome `json:"outcome"`
	Creator      string         `json:"creator"`
	Spend        int64          `json:"spend"`
	Price        int64          `json:"price"`
	Shares       int64          `json:"shares"`
	SharesFilled int64          `json:"shares_filled"`
	SpendFilled  int64          `json:"spend_filled"`
	Affiliate    string         `json:"affiliate,omitempty"`
	Canceled     bool           `json:"canceled,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Remaining is the spend not yet converted into shares.
func (o *Order) Remaining() int64 { return o.Spend - o.SpendFilled }

// SharesRemaining is how many more shares the order can take.
func (o *Order) SharesRemaining() int64 { return o.Shares - o.SharesFilled }

func (o *Order) exhausted() bool {
	return o.SharesRemaining() <= 0 || o.Remaining() < DustThreshold
}

// Fill records one maker order being hit by Consume.
type Fill struct {
	OrderID OrderID `json:"order_id"`
	Creator string  `json:"creator"`
	Shares  int64   `json:"shares"`
	Price   int64   `json:"price"`
	Spend   int64   `json:"spend"`
	Closed  bool    `json:"closed"`
}
