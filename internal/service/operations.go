package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/market"
	"github.com/alanyoungcy/settled/internal/orderbook"
)

func (s *Settlement) event(t domain.EventType, marketID uint64, account string, data map[string]any) domain.Event {
	return domain.Event{
		ID:       uuid.NewString(),
		Type:     t,
		MarketID: marketID,
		Account:  account,
		At:       s.clock.Now(),
		Data:     data,
	}
}

// CreateMarket opens a market owned by the caller.
func (s *Settlement) CreateMarket(ctx context.Context, spec domain.MarketSpec) (market.Info, error) {
	start := time.Now()
	info, err := s.createMarket(ctx, spec)
	s.metrics.ObserveOp(string(domain.CmdCreateMarket), err, time.Since(start))
	return info, err
}

func (s *Settlement) createMarket(ctx context.Context, spec domain.MarketSpec) (market.Info, error) {
	creator, err := caller(ctx)
	if err != nil {
		return market.Info{}, fmt.Errorf("settlement: create market: %w", err)
	}
	now := s.clock.Now()

	s.mu.Lock()
	id := s.nextID
	m, err := market.New(id, creator, spec, s.cfg, now)
	if err != nil {
		s.mu.Unlock()
		return market.Info{}, fmt.Errorf("settlement: create market: %w", err)
	}
	s.nextID++
	s.markets[id] = &entry{m: m}
	s.mu.Unlock()

	cmd := domain.Command{Type: domain.CmdCreateMarket, Caller: creator, At: now, MarketID: id, Spec: &spec}
	ev := s.event(domain.EventMarketCreated, id, creator, map[string]any{
		"description": spec.Description,
		"outcomes":    spec.Outcomes,
		"end_time":    spec.EndTime,
	})
	s.committed(ctx, cmd, m, mutation{events: []domain.Event{ev}})

	s.logger.InfoContext(ctx, "settlement: market created",
		slog.Uint64("market_id", id),
		slog.String("creator", creator),
		slog.Int("outcomes", spec.Outcomes),
	)
	return m.Info(), nil
}

// PlaceOrder debits spend from the caller and buys outcome at price,
// matching against the other outcomes' books first.
func (s *Settlement) PlaceOrder(ctx context.Context, marketID uint64, outcome domain.Outcome, spend, price int64, affiliate string) (market.PlaceResult, error) {
	account, err := caller(ctx)
	if err != nil {
		return market.PlaceResult{}, fmt.Errorf("settlement: place order: %w", err)
	}
	now := s.clock.Now()
	cmd := domain.Command{
		Type: domain.CmdPlaceOrder, Caller: account, At: now, MarketID: marketID,
		Outcome: &outcome, Amount: spend, Price: price, Affiliate: affiliate,
	}

	var res market.PlaceResult
	err = s.apply(ctx, cmd, func(m *market.Market) (mutation, error) {
		r, postings, err := m.PlaceOrder(now, account, outcome, spend, price, affiliate)
		if err != nil {
			return mutation{}, err
		}
		res = r
		return mutation{
			postings: postings,
			events: []domain.Event{s.event(domain.EventOrderPlaced, marketID, account, map[string]any{
				"order_id": uint64(r.Order.ID),
				"outcome":  int(outcome),
				"spend":    spend,
				"price":    price,
				"filled":   r.Order.SharesFilled,
				"open":     r.Open,
			})},
		}, nil
	})
	if err != nil {
		return market.PlaceResult{}, fmt.Errorf("settlement: place order: %w", err)
	}

	s.logger.InfoContext(ctx, "settlement: order placed",
		slog.Uint64("market_id", marketID),
		slog.Uint64("order_id", uint64(res.Order.ID)),
		slog.String("account", account),
		slog.Int("outcome", int(outcome)),
		slog.Int64("spend", spend),
		slog.Int64("price", price),
		slog.Int64("shares_filled", res.Order.SharesFilled),
	)
	return res, nil
}

// CancelOrder removes one of the caller's resting orders and refunds its
// unfilled spend.
func (s *Settlement) CancelOrder(ctx context.Context, marketID uint64, outcome domain.Outcome, id orderbook.OrderID) (int64, error) {
	account, err := caller(ctx)
	if err != nil {
		return 0, fmt.Errorf("settlement: cancel order: %w", err)
	}
	cmd := domain.Command{
		Type: domain.CmdCancelOrder, Caller: account, At: s.clock.Now(), MarketID: marketID,
		Outcome: &outcome, OrderID: uint64(id),
	}

	var refund int64
	err = s.apply(ctx, cmd, func(m *market.Market) (mutation, error) {
		r, postings, err := m.CancelOrder(account, outcome, id)
		if err != nil {
			return mutation{}, err
		}
		refund = r
		return mutation{
			postings: postings,
			events: []domain.Event{s.event(domain.EventOrderCanceled, marketID, account, map[string]any{
				"order_id": uint64(id),
				"outcome":  int(outcome),
				"refund":   r,
			})},
		}, nil
	})
	if err != nil {
		return 0, fmt.Errorf("settlement: cancel order: %w", err)
	}

	s.logger.InfoContext(ctx, "settlement: order canceled",
		slog.Uint64("market_id", marketID),
		slog.Uint64("order_id", uint64(id)),
		slog.Int64("refund", refund),
	)
	return refund, nil
}

// SellShares sells the caller's shares of outcome into its own bids at or
// above minPrice.
func (s *Settlement) SellShares(ctx context.Context, marketID uint64, outcome domain.Outcome, shares, minPrice int64) (market.SellResult, error) {
	account, err := caller(ctx)
	if err != nil {
		return market.SellResult{}, fmt.Errorf("settlement: sell shares: %w", err)
	}
	now := s.clock.Now()
	cmd := domain.Command{
		Type: domain.CmdSellShares, Caller: account, At: now, MarketID: marketID,
		Outcome: &outcome, Amount: shares, Price: minPrice,
	}

	var res market.SellResult
	err = s.apply(ctx, cmd, func(m *market.Market) (mutation, error) {
		r, postings, err := m.SellShares(now, account, outcome, shares, minPrice)
		if err != nil {
			return mutation{}, err
		}
		res = r
		return mutation{
			postings: postings,
			events: []domain.Event{s.event(domain.EventSharesSold, marketID, account, map[string]any{
				"outcome":  int(outcome),
				"shares":   r.Shares,
				"proceeds": r.Proceeds,
			})},
		}, nil
	})
	if err != nil {
		return market.SellResult{}, fmt.Errorf("settlement: sell shares: %w", err)
	}

	s.logger.InfoContext(ctx, "settlement: shares sold",
		slog.Uint64("market_id", marketID),
		slog.String("account", account),
		slog.Int64("shares", res.Shares),
		slog.Int64("proceeds", res.Proceeds),
	)
	return res, nil
}

// Resolute stakes on outcome in the opening resolution window. It returns
// the change refunded when the stake overfills the bond.
func (s *Settlement) Resolute(ctx context.Context, marketID uint64, outcome domain.Outcome, stake int64) (int64, error) {
	change, err := s.stake(ctx, domain.CmdResolute, marketID, outcome, stake)
	if err != nil {
		return 0, fmt.Errorf("settlement: resolute: %w", err)
	}
	return change, nil
}

// Dispute stakes against the leading outcome in the next round.
func (s *Settlement) Dispute(ctx context.Context, marketID uint64, outcome domain.Outcome, stake int64) (int64, error) {
	change, err := s.stake(ctx, domain.CmdDispute, marketID, outcome, stake)
	if err != nil {
		return 0, fmt.Errorf("settlement: dispute: %w", err)
	}
	return change, nil
}

func (s *Settlement) stake(ctx context.Context, t domain.CommandType, marketID uint64, outcome domain.Outcome, stake int64) (int64, error) {
	account, err := caller(ctx)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	cmd := domain.Command{Type: t, Caller: account, At: now, MarketID: marketID, Outcome: &outcome, Amount: stake}

	var (
		change  int64
		bonded  bool
		round   int
		prior   domain.MarketStatus
		current domain.MarketStatus
	)
	err = s.apply(ctx, cmd, func(m *market.Market) (mutation, error) {
		if err := s.requireBalance(ctx, account, stake); err != nil {
			return mutation{}, err
		}
		prior = m.Status()
		var (
			postings []domain.Posting
			err      error
		)
		if t == domain.CmdResolute {
			change, postings, err = m.Resolute(now, account, outcome, stake)
		} else {
			change, postings, err = m.Dispute(now, account, outcome, stake)
		}
		if err != nil {
			return mutation{}, err
		}
		current = m.Status()
		windows := m.Windows()
		w := windows[len(windows)-1]
		round, bonded = w.Round, w.Bonded && w.Outcome == outcome

		events := []domain.Event{s.event(domain.EventStakeAdded, marketID, account, map[string]any{
			"round":   round,
			"outcome": int(outcome),
			"stake":   stake - change,
			"change":  change,
		})}
		if current != prior {
			evType := domain.EventMarketResoluted
			if current == domain.MarketStatusDisputed {
				evType = domain.EventMarketDisputed
			}
			events = append(events, s.event(evType, marketID, account, map[string]any{
				"round":    round,
				"outcome":  int(outcome),
				"end_time": w.EndTime,
			}))
		}
		return mutation{postings: postings, events: events}, nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "settlement: stake added",
		slog.Uint64("market_id", marketID),
		slog.String("account", account),
		slog.Int("round", round),
		slog.Int("outcome", int(outcome)),
		slog.Int64("stake", stake-change),
		slog.Bool("bonded", bonded),
	)
	return change, nil
}

// Withdraw returns the caller's stake on an outcome that did not bond.
func (s *Settlement) Withdraw(ctx context.Context, marketID uint64, round int, outcome domain.Outcome) (int64, error) {
	account, err := caller(ctx)
	if err != nil {
		return 0, fmt.Errorf("settlement: withdraw: %w", err)
	}
	cmd := domain.Command{
		Type: domain.CmdWithdraw, Caller: account, At: s.clock.Now(), MarketID: marketID,
		Outcome: &outcome, Round: round,
	}

	var amount int64
	err = s.apply(ctx, cmd, func(m *market.Market) (mutation, error) {
		a, postings, err := m.Withdraw(account, round, outcome)
		if err != nil {
			return mutation{}, err
		}
		amount = a
		return mutation{
			postings: postings,
			events: []domain.Event{s.event(domain.EventStakeWithdrawn, marketID, account, map[string]any{
				"round":   round,
				"outcome": int(outcome),
				"amount":  a,
			})},
		}, nil
	})
	if err != nil {
		return 0, fmt.Errorf("settlement: withdraw: %w", err)
	}

	s.logger.InfoContext(ctx, "settlement: stake withdrawn",
		slog.Uint64("market_id", marketID),
		slog.String("account", account),
		slog.Int("round", round),
		slog.Int64("amount", amount),
	)
	return amount, nil
}

// Finalize settles the market. A disputed market is settled by the judge
// and needs outcome; otherwise the leading outcome wins once its window
// has closed.
func (s *Settlement) Finalize(ctx context.Context, marketID uint64, outcome *domain.Outcome) (domain.Outcome, error) {
	account, err := caller(ctx)
	if err != nil {
		return 0, fmt.Errorf("settlement: finalize: %w", err)
	}
	now := s.clock.Now()
	cmd := domain.Command{Type: domain.CmdFinalize, Caller: account, At: now, MarketID: marketID, Outcome: outcome}

	var winner domain.Outcome
	err = s.apply(ctx, cmd, func(m *market.Market) (mutation, error) {
		w, err := m.Finalize(now, account, outcome)
		if err != nil {
			return mutation{}, err
		}
		winner = w
		return mutation{
			events: []domain.Event{s.event(domain.EventMarketFinalized, marketID, account, map[string]any{
				"winner": int(w),
			})},
		}, nil
	})
	if err != nil {
		return 0, fmt.Errorf("settlement: finalize: %w", err)
	}

	s.logger.InfoContext(ctx, "settlement: market finalized",
		slog.Uint64("market_id", marketID),
		slog.String("caller", account),
		slog.Int("winner", int(winner)),
	)
	return winner, nil
}

// ClaimResult is a paid claim and its signed receipt.
type ClaimResult struct {
	MarketID uint64       `json:"market_id"`
	Claim    market.Claim `json:"claim"`
	Receipt  *Receipt     `json:"receipt,omitempty"`
}

// Claim pays account everything the finalized market owes it. Anyone may
// trigger the claim; proceeds always go to account.
func (s *Settlement) Claim(ctx context.Context, marketID uint64, account string) (ClaimResult, error) {
	trigger, err := caller(ctx)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("settlement: claim: %w", err)
	}
	if account == "" {
		account = trigger
	}
	cmd := domain.Command{Type: domain.CmdClaim, Caller: trigger, At: s.clock.Now(), MarketID: marketID, Account: account}

	var c market.Claim
	err = s.apply(ctx, cmd, func(m *market.Market) (mutation, error) {
		claim, postings, err := m.Claim(account)
		if err != nil {
			return mutation{}, err
		}
		c = claim
		return mutation{
			postings: postings,
			events: []domain.Event{s.event(domain.EventEarningsClaimed, marketID, account, map[string]any{
				"payout":         claim.Payout,
				"winnings":       claim.Winnings,
				"creator_fee":    claim.CreatorFee,
				"resolution_fee": claim.ResolutionFee,
				"governance":     claim.GovernanceEarnings,
			})},
		}, nil
	})
	if err != nil {
		return ClaimResult{}, fmt.Errorf("settlement: claim: %w", err)
	}

	res := ClaimResult{MarketID: marketID, Claim: c}
	if s.signer != nil {
		receipt, err := s.receipt(marketID, c)
		if err != nil {
			s.logger.WarnContext(ctx, "settlement: sign receipt failed",
				slog.Uint64("market_id", marketID),
				slog.String("error", err.Error()),
			)
		} else {
			res.Receipt = &receipt
		}
	}

	s.logger.InfoContext(ctx, "settlement: earnings claimed",
		slog.Uint64("market_id", marketID),
		slog.String("account", account),
		slog.Int64("payout", c.Payout),
	)
	return res, nil
}

// Mint credits amount to account outside any market. It backs the admin
// faucet used in development and tests.
func (s *Settlement) Mint(ctx context.Context, account string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("settlement: mint: %w", domain.ErrInvalidAmount)
	}
	admin, err := caller(ctx)
	if err != nil {
		return fmt.Errorf("settlement: mint: %w", err)
	}
	if err := s.ledger.Credit(ctx, account, amount); err != nil {
		return fmt.Errorf("settlement: mint: %w", err)
	}
	cmd := domain.Command{Type: domain.CmdMint, Caller: admin, At: s.clock.Now(), Account: account, Amount: amount}
	s.record(ctx, cmd)
	s.metrics.AddPostings(1)
	s.logger.InfoContext(ctx, "settlement: minted",
		slog.String("account", account),
		slog.Int64("amount", amount),
	)
	return nil
}
