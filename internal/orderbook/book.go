// Package orderbook implements the per-outcome limit order book: buy orders
// rest at fixed prices and are consumed best price first, oldest first
// within a price.
package orderbook

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/btree"

	"github.com/alanyoungcy/settled/internal/domain"
)

const btreeDegree = 8

type level struct {
	price     int64
	liquidity int64
	orders    []OrderID
}

func levelLess(a, b *level) bool { return a.price < b.price }

type account struct {
	orders    []OrderID // open and closed, in placement order
	openSpend int64
	sold      int64
	dust      int64
}

// Book is the order book of a single outcome.
type Book struct {
	outcome  domain.Outcome
	levels   *btree.BTreeG[*level]
	orders   map[OrderID]*Order
	open     map[OrderID]struct{}
	accounts map[string]*account
	nonce    OrderID
}

// New returns an empty book for outcome.
func New(outcome domain.Outcome) *Book {
	return &Book{
		outcome:  outcome,
		levels:   btree.NewG(btreeDegree, levelLess),
		orders:   make(map[OrderID]*Order),
		open:     make(map[OrderID]struct{}),
		accounts: make(map[string]*account),
	}
}

// Outcome returns the outcome this book trades.
func (b *Book) Outcome() domain.Outcome { return b.outcome }

// PlaceParams describes a new order. SharesFilled and SpendFilled carry fills
// obtained by the caller before the order reaches the book.
type PlaceParams struct {
	Creator      string
	Spend        int64
	Price        int64
	Affiliate    string
	SharesFilled int64
	SpendFilled  int64
	At           time.Time
}

// Place records a new order. The order buys Spend/Price shares; the
// committed spend is what the filled part cost plus the unfilled shares at
// Price. An order whose unfilled remainder is below DustThreshold goes
// straight to the closed set and its remainder is kept as a dust balance.
// A spend too small for one share records a closed order committing
// nothing.
func (b *Book) Place(p PlaceParams) (*Order, error) {
	if p.Price <= 0 {
		return nil, fmt.Errorf("orderbook: place: price %d: %w", p.Price, domain.ErrInvalidPrice)
	}
	if p.Spend <= 0 {
		return nil, fmt.Errorf("orderbook: place: spend %d: %w", p.Spend, domain.ErrInvalidAmount)
	}
	shares := p.Spend / p.Price
	if p.SharesFilled < 0 || p.SharesFilled > shares || p.SpendFilled < 0 {
		return nil, fmt.Errorf("orderbook: place: fill progress: %w", domain.ErrInvalidAmount)
	}

	b.nonce++
	o := &Order{
		ID:           b.nonce,
		Outcome:      b.outcome,
		Creator:      p.Creator,
		Spend:        p.SpendFilled + (shares-p.SharesFilled)*p.Price,
		Price:        p.Price,
		Shares:       shares,
		SharesFilled: p.SharesFilled,
		SpendFilled:  p.SpendFilled,
		Affiliate:    p.Affiliate,
		CreatedAt:    p.At,
	}
	b.orders[o.ID] = o
	acct := b.account(o.Creator)
	acct.orders = append(acct.orders, o.ID)

	if o.exhausted() {
		acct.dust += o.Remaining()
		return o, nil
	}

	lvl, ok := b.levels.Get(&level{price: o.Price})
	if !ok {
		lvl = &level{price: o.Price}
		b.levels.ReplaceOrInsert(lvl)
	}
	lvl.orders = append(lvl.orders, o.ID)
	lvl.liquidity += o.Remaining()
	acct.openSpend += o.Remaining()
	b.open[o.ID] = struct{}{}
	return o, nil
}

// Cancel removes an open order and returns its unfilled spend. Orders that
// already have fills are kept as closed history.
func (b *Book) Cancel(caller string, id OrderID) (int64, error) {
	o, ok := b.orders[id]
	if !ok || !b.IsOpen(id) {
		return 0, fmt.Errorf("orderbook: cancel %d: %w", id, domain.ErrOrderNotFound)
	}
	if o.Creator != caller {
		return 0, fmt.Errorf("orderbook: cancel %d: %w", id, domain.ErrUnauthorized)
	}

	refund := o.Remaining()
	b.unlink(o)
	acct := b.accounts[o.Creator]
	acct.openSpend -= refund
	o.Canceled = true

	if o.SharesFilled == 0 {
		delete(b.orders, id)
		acct.orders = slices.DeleteFunc(acct.orders, func(x OrderID) bool { return x == id })
	}
	return refund, nil
}

// Consume takes up to shares from the book, best price first and in
// placement order within a price. It returns how many shares were filled,
// which is less than requested when the book runs dry.
func (b *Book) Consume(shares int64) (int64, []Fill) {
	return b.consume(shares, 0)
}

// ConsumeAbove is Consume restricted to levels priced at or above minPrice.
func (b *Book) ConsumeAbove(shares, minPrice int64) (int64, []Fill) {
	return b.consume(shares, minPrice)
}

func (b *Book) consume(shares, minPrice int64) (int64, []Fill) {
	var filled int64
	var fills []Fill
	for filled < shares {
		lvl, ok := b.levels.Max()
		if !ok || lvl.price < minPrice {
			break
		}
		for len(lvl.orders) > 0 && filled < shares {
			o := b.orders[lvl.orders[0]]
			n := min(o.SharesRemaining(), shares-filled)
			cost := n * o.Price

			o.SharesFilled += n
			o.SpendFilled += cost
			lvl.liquidity -= cost
			acct := b.accounts[o.Creator]
			acct.openSpend -= cost
			filled += n

			fill := Fill{OrderID: o.ID, Creator: o.Creator, Shares: n, Price: o.Price, Spend: cost}
			if o.exhausted() {
				rest := o.Remaining()
				acct.openSpend -= rest
				acct.dust += rest
				b.unlink(o)
				fill.Closed = true
			}
			fills = append(fills, fill)
		}
	}
	return filled, fills
}

// unlink takes an open order off its level, deleting the level once empty.
func (b *Book) unlink(o *Order) {
	lvl, ok := b.levels.Get(&level{price: o.Price})
	if !ok {
		panic(fmt.Sprintf("orderbook: open order %d has no level %d", o.ID, o.Price))
	}
	lvl.liquidity -= o.Remaining()
	lvl.orders = slices.DeleteFunc(lvl.orders, func(x OrderID) bool { return x == o.ID })
	if len(lvl.orders) == 0 {
		b.levels.Delete(lvl)
	}
	delete(b.open, o.ID)
}

func (b *Book) account(name string) *account {
	acct, ok := b.accounts[name]
	if !ok {
		acct = &account{}
		b.accounts[name] = acct
	}
	return acct
}
