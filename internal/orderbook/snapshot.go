package orderbook

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/alanyoungcy/settled/internal/domain"
)

// Snapshot is the serializable state of a book. Open lists resting order
// ids level by level in queue order so a restore keeps time priority.
type Snapshot struct {
	Outcome  domain.Outcome    `json:"outcome"`
	Nonce    OrderID           `json:"nonce"`
	Orders   []Order           `json:"orders"`
	Open     []OrderID         `json:"open"`
	Accounts []AccountSnapshot `json:"accounts"`
}

// AccountSnapshot is one account's index entry.
type AccountSnapshot struct {
	Account string    `json:"account"`
	Orders  []OrderID `json:"orders"`
	Sold    int64     `json:"sold,omitempty"`
	Dust    int64     `json:"dust,omitempty"`
}

// Snapshot captures the book.
func (b *Book) Snapshot() Snapshot {
	s := Snapshot{Outcome: b.outcome, Nonce: b.nonce}
	for _, o := range b.orders {
		s.Orders = append(s.Orders, *o)
	}
	slices.SortFunc(s.Orders, func(x, y Order) int { return cmp.Compare(x.ID, y.ID) })
	b.levels.Ascend(func(lvl *level) bool {
		s.Open = append(s.Open, lvl.orders...)
		return true
	})
	for name, acct := range b.accounts {
		s.Accounts = append(s.Accounts, AccountSnapshot{
			Account: name,
			Orders:  append([]OrderID(nil), acct.orders...),
			Sold:    acct.sold,
			Dust:    acct.dust,
		})
	}
	slices.SortFunc(s.Accounts, func(x, y AccountSnapshot) int { return cmp.Compare(x.Account, y.Account) })
	return s
}

// Restore rebuilds a book from a snapshot. Level liquidity and open spend
// are recomputed from the orders.
func Restore(s Snapshot) (*Book, error) {
	b := New(s.Outcome)
	b.nonce = s.Nonce
	for i := range s.Orders {
		o := s.Orders[i]
		b.orders[o.ID] = &o
	}
	for _, a := range s.Accounts {
		b.accounts[a.Account] = &account{
			orders: append([]OrderID(nil), a.Orders...),
			sold:   a.Sold,
			dust:   a.Dust,
		}
	}
	for _, id := range s.Open {
		o, ok := b.orders[id]
		if !ok {
			return nil, fmt.Errorf("orderbook: restore: open order %d missing", id)
		}
		acct, ok := b.accounts[o.Creator]
		if !ok {
			return nil, fmt.Errorf("orderbook: restore: order %d has no account", id)
		}
		lvl, ok := b.levels.Get(&level{price: o.Price})
		if !ok {
			lvl = &level{price: o.Price}
			b.levels.ReplaceOrInsert(lvl)
		}
		lvl.orders = append(lvl.orders, id)
		lvl.liquidity += o.Remaining()
		acct.openSpend += o.Remaining()
		b.open[id] = struct{}{}
	}
	return b, nil
}
