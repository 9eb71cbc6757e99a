package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/market"
	"github.com/alanyoungcy/settled/internal/orderbook"
)

// Market describes one market.
func (s *Settlement) Market(_ context.Context, id uint64) (market.Info, error) {
	m, err := s.market(id)
	if err != nil {
		return market.Info{}, err
	}
	return m.Info(), nil
}

// Markets lists markets in id order, optionally filtered by status.
func (s *Settlement) Markets(_ context.Context, status domain.MarketStatus, opts domain.ListOpts) []market.Info {
	ids := s.ids()
	out := make([]market.Info, 0, len(ids))
	skipped := 0
	for _, id := range ids {
		m, err := s.market(id)
		if err != nil {
			continue
		}
		if status != "" && m.Status() != status {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, m.Info())
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out
}

// Summary returns the headline view of a market, from cache when one is
// attached.
func (s *Settlement) Summary(ctx context.Context, id uint64) (domain.MarketSummary, error) {
	if s.cache != nil {
		sum, err := s.cache.Get(ctx, id)
		if err == nil {
			return sum, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "settlement: cache read failed")
		}
	}
	m, err := s.market(id)
	if err != nil {
		return domain.MarketSummary{}, err
	}
	sum := m.Summary(s.clock.Now())
	if s.cache != nil {
		_ = s.cache.Set(ctx, sum)
	}
	return sum, nil
}

// Levels returns the bid levels of one outcome, best first.
func (s *Settlement) Levels(_ context.Context, id uint64, outcome domain.Outcome) ([]orderbook.LevelView, error) {
	m, err := s.market(id)
	if err != nil {
		return nil, err
	}
	return m.Levels(outcome)
}

// BestPrices returns the best bid of every outcome.
func (s *Settlement) BestPrices(_ context.Context, id uint64) ([]int64, error) {
	m, err := s.market(id)
	if err != nil {
		return nil, err
	}
	return m.BestPrices(), nil
}

// MarketPrice is the price a taker would pay right now for one share of
// outcome.
func (s *Settlement) MarketPrice(_ context.Context, id uint64, outcome domain.Outcome) (int64, error) {
	m, err := s.market(id)
	if err != nil {
		return 0, err
	}
	return m.MarketPrice(outcome)
}

// Depth returns how many shares spend at price would fill immediately.
func (s *Settlement) Depth(_ context.Context, id uint64, outcome domain.Outcome, spend, price int64) (int64, error) {
	m, err := s.market(id)
	if err != nil {
		return 0, err
	}
	return m.Depth(outcome, spend, price)
}

// Liquidity walks the bids of outcome at or below maxPrice with spend.
func (s *Settlement) Liquidity(_ context.Context, id uint64, outcome domain.Outcome, spend, maxPrice int64) (market.Liquidity, error) {
	m, err := s.market(id)
	if err != nil {
		return market.Liquidity{}, err
	}
	return m.Liquidity(outcome, spend, maxPrice)
}

// SellDepth previews a market sell without executing it.
func (s *Settlement) SellDepth(_ context.Context, id uint64, outcome domain.Outcome, shares, minPrice int64) (market.SellResult, error) {
	m, err := s.market(id)
	if err != nil {
		return market.SellResult{}, err
	}
	return m.SellDepth(outcome, shares, minPrice)
}

// Positions returns account's standing on every outcome of a market.
func (s *Settlement) Positions(_ context.Context, id uint64, account string) ([]market.Position, error) {
	m, err := s.market(id)
	if err != nil {
		return nil, err
	}
	return m.Positions(account), nil
}

// Claimable previews account's claim on a finalized market.
func (s *Settlement) Claimable(_ context.Context, id uint64, account string) (market.Claim, error) {
	m, err := s.market(id)
	if err != nil {
		return market.Claim{}, err
	}
	c, err := m.Claimable(account)
	if err != nil {
		return market.Claim{}, fmt.Errorf("settlement: claimable: %w", err)
	}
	return c, nil
}

// Report builds the settlement report of a finalized market.
func (s *Settlement) Report(_ context.Context, id uint64) (SettlementReport, error) {
	m, err := s.market(id)
	if err != nil {
		return SettlementReport{}, err
	}
	return Report(m)
}

// Balance returns account's ledger balance.
func (s *Settlement) Balance(ctx context.Context, account string) (int64, error) {
	return s.ledger.Balance(ctx, account)
}
