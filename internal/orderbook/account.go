package orderbook

import (
	"fmt"

	"github.com/google/btree"

	"github.com/alanyoungcy/settled/internal/domain"
)

// RecordSale deducts shares account sold back into the market from its
// share balance.
func (b *Book) RecordSale(account string, shares int64) error {
	if shares <= 0 {
		return fmt.Errorf("orderbook: record sale: %w", domain.ErrInvalidAmount)
	}
	if b.ShareBalance(account) < shares {
		return fmt.Errorf("orderbook: record sale: %w", domain.ErrInsufficientShares)
	}
	b.account(account).sold += shares
	return nil
}

// ClearAccount forgets account's orders and balances after a claim has paid
// them out. Resting orders are pulled from their levels.
func (b *Book) ClearAccount(account string) {
	acct, ok := b.accounts[account]
	if !ok {
		return
	}
	for _, id := range acct.orders {
		o := b.orders[id]
		if b.IsOpen(id) {
			b.unlink(o)
		}
		delete(b.orders, id)
	}
	delete(b.accounts, account)
}

// Clone returns a deep copy of the book.
func (b *Book) Clone() *Book {
	c := &Book{
		outcome:  b.outcome,
		levels:   btree.NewG(btreeDegree, levelLess),
		orders:   make(map[OrderID]*Order, len(b.orders)),
		open:     make(map[OrderID]struct{}, len(b.open)),
		accounts: make(map[string]*account, len(b.accounts)),
		nonce:    b.nonce,
	}
	for id, o := range b.orders {
		cp := *o
		c.orders[id] = &cp
	}
	for id := range b.open {
		c.open[id] = struct{}{}
	}
	b.levels.Ascend(func(lvl *level) bool {
		c.levels.ReplaceOrInsert(&level{
			price:     lvl.price,
			liquidity: lvl.liquidity,
			orders:    append([]OrderID(nil), lvl.orders...),
		})
		return true
	})
	for name, acct := range b.accounts {
		cp := *acct
		cp.orders = append([]OrderID(nil), acct.orders...)
		c.accounts[name] = &cp
	}
	return c
}
