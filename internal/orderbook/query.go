package orderbook

// BestPrice returns the highest price with resting liquidity.
func (b *Book) BestPrice() (int64, bool) {
	lvl, ok := b.levels.Max()
	if !ok {
		return 0, false
	}
	return lvl.price, true
}

// DepthAtBest returns the best price and the shares resting there.
func (b *Book) DepthAtBest() (price, shares int64, ok bool) {
	lvl, ok := b.levels.Max()
	if !ok {
		return 0, 0, false
	}
	return lvl.price, b.levelShares(lvl), true
}

// Depth reports how many shares spend can buy from the orders resting at
// price.
func (b *Book) Depth(spend, price int64) int64 {
	if price <= 0 || spend <= 0 {
		return 0
	}
	lvl, ok := b.levels.Get(&level{price: price})
	if !ok {
		return 0
	}
	purchasable := spend / price
	var depth int64
	for _, id := range lvl.orders {
		remaining := b.orders[id].SharesRemaining()
		if remaining >= purchasable {
			return depth + purchasable
		}
		depth += remaining
		purchasable -= remaining
	}
	return depth
}

// Liquidity walks the book from the best price down, buying with spend,
// and reports the worst price touched, the shares obtainable and the spend
// they cost. A best price above maxPrice means nothing is obtainable. The
// walk stops once no more than DustThreshold of spend is left.
func (b *Book) Liquidity(spend, maxPrice int64) (worstPrice, shares, used int64) {
	best, ok := b.BestPrice()
	if spend <= 0 || !ok || best > maxPrice {
		return 0, 0, 0
	}
	b.levels.Descend(func(lvl *level) bool {
		depth := b.Depth(spend-used, lvl.price)
		if depth > 0 {
			worstPrice = lvl.price
			shares += depth
			used = min(used+depth*lvl.price, spend)
		}
		return spend-used > DustThreshold
	})
	return worstPrice, shares, used
}

// SellDepth previews Consume: the shares that could be sold at or above
// minPrice and what they would fetch.
func (b *Book) SellDepth(shares, minPrice int64) (filled, proceeds int64) {
	b.levels.Descend(func(lvl *level) bool {
		if lvl.price < minPrice {
			return false
		}
		n := min(b.levelShares(lvl), shares-filled)
		filled += n
		proceeds += n * lvl.price
		return filled < shares
	})
	return filled, proceeds
}

// LevelView is an aggregated price level.
type LevelView struct {
	Price     int64 `json:"price"`
	Liquidity int64 `json:"liquidity"`
	Shares    int64 `json:"shares"`
	Orders    int   `json:"orders"`
}

// Levels returns the book's levels from best to worst.
func (b *Book) Levels() []LevelView {
	out := make([]LevelView, 0, b.levels.Len())
	b.levels.Descend(func(lvl *level) bool {
		out = append(out, LevelView{
			Price:     lvl.price,
			Liquidity: lvl.liquidity,
			Shares:    b.levelShares(lvl),
			Orders:    len(lvl.orders),
		})
		return true
	})
	return out
}

// TotalLiquidity sums the aggregate liquidity of every level.
func (b *Book) TotalLiquidity() int64 {
	var total int64
	b.levels.Ascend(func(lvl *level) bool {
		total += lvl.liquidity
		return true
	})
	return total
}

func (b *Book) levelShares(lvl *level) int64 {
	var n int64
	for _, id := range lvl.orders {
		n += b.orders[id].SharesRemaining()
	}
	return n
}

// Order returns a copy of the order with the given id.
func (b *Book) Order(id OrderID) (Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// IsOpen reports whether id is resting in the book.
func (b *Book) IsOpen(id OrderID) bool {
	_, ok := b.open[id]
	return ok
}

// OpenCount is the number of resting orders.
func (b *Book) OpenCount() int { return len(b.open) }

// OpenOrders returns account's resting orders in placement order.
func (b *Book) OpenOrders(account string) []Order {
	return b.accountOrders(account, true)
}

// FilledOrders returns account's closed orders in placement order.
func (b *Book) FilledOrders(account string) []Order {
	return b.accountOrders(account, false)
}

// Orders returns every order of account, open and closed.
func (b *Book) Orders(account string) []Order {
	acct, ok := b.accounts[account]
	if !ok {
		return nil
	}
	out := make([]Order, 0, len(acct.orders))
	for _, id := range acct.orders {
		out = append(out, *b.orders[id])
	}
	return out
}

func (b *Book) accountOrders(account string, open bool) []Order {
	acct, ok := b.accounts[account]
	if !ok {
		return nil
	}
	var out []Order
	for _, id := range acct.orders {
		if b.IsOpen(id) == open {
			out = append(out, *b.orders[id])
		}
	}
	return out
}

// OpenSpend is the unfilled spend account has resting in the book.
func (b *Book) OpenSpend(account string) int64 {
	if acct, ok := b.accounts[account]; ok {
		return acct.openSpend
	}
	return 0
}

// DustBalance is the unfilled remainder of account's dust-closed orders.
func (b *Book) DustBalance(account string) int64 {
	if acct, ok := b.accounts[account]; ok {
		return acct.dust
	}
	return 0
}

// ShareBalance is the number of shares account bought minus those it sold.
func (b *Book) ShareBalance(account string) int64 {
	acct, ok := b.accounts[account]
	if !ok {
		return 0
	}
	var n int64
	for _, id := range acct.orders {
		n += b.orders[id].SharesFilled
	}
	return n - acct.sold
}

// Accounts lists every account with orders or balances in the book.
func (b *Book) Accounts() []string {
	out := make([]string, 0, len(b.accounts))
	for name := range b.accounts {
		out = append(out, name)
	}
	return out
}
