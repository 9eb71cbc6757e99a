package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/settled/internal/clock"
	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/orderbook"
)

// Execute applies cmd as if its caller had issued it now.
func (s *Settlement) Execute(ctx context.Context, cmd domain.Command) error {
	ctx = domain.WithCaller(ctx, cmd.Caller)
	outcome := func() (domain.Outcome, error) {
		if cmd.Outcome == nil {
			return 0, fmt.Errorf("%s: missing outcome: %w", cmd.Type, domain.ErrOutcomeNotFound)
		}
		return *cmd.Outcome, nil
	}

	var err error
	switch cmd.Type {
	case domain.CmdCreateMarket:
		if cmd.Spec == nil {
			return fmt.Errorf("%s: missing spec: %w", cmd.Type, domain.ErrInvalidMarketParameters)
		}
		info, cerr := s.CreateMarket(ctx, *cmd.Spec)
		if cerr == nil && cmd.MarketID != 0 && info.ID != cmd.MarketID {
			return fmt.Errorf("%s: created market %d, journal says %d", cmd.Type, info.ID, cmd.MarketID)
		}
		err = cerr
	case domain.CmdPlaceOrder:
		o, oerr := outcome()
		if oerr != nil {
			return oerr
		}
		_, err = s.PlaceOrder(ctx, cmd.MarketID, o, cmd.Amount, cmd.Price, cmd.Affiliate)
	case domain.CmdCancelOrder:
		o, oerr := outcome()
		if oerr != nil {
			return oerr
		}
		_, err = s.CancelOrder(ctx, cmd.MarketID, o, orderbook.OrderID(cmd.OrderID))
	case domain.CmdSellShares:
		o, oerr := outcome()
		if oerr != nil {
			return oerr
		}
		_, err = s.SellShares(ctx, cmd.MarketID, o, cmd.Amount, cmd.Price)
	case domain.CmdResolute:
		o, oerr := outcome()
		if oerr != nil {
			return oerr
		}
		_, err = s.Resolute(ctx, cmd.MarketID, o, cmd.Amount)
	case domain.CmdDispute:
		o, oerr := outcome()
		if oerr != nil {
			return oerr
		}
		_, err = s.Dispute(ctx, cmd.MarketID, o, cmd.Amount)
	case domain.CmdWithdraw:
		o, oerr := outcome()
		if oerr != nil {
			return oerr
		}
		_, err = s.Withdraw(ctx, cmd.MarketID, cmd.Round, o)
	case domain.CmdFinalize:
		_, err = s.Finalize(ctx, cmd.MarketID, cmd.Outcome)
	case domain.CmdClaim:
		_, err = s.Claim(ctx, cmd.MarketID, cmd.Account)
	case domain.CmdMint:
		err = s.Mint(ctx, cmd.Account, cmd.Amount)
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
	return err
}

// Replay rebuilds state by executing journaled commands in order. The
// manual clock is moved to each command's time before it runs, so time
// checks see exactly what they saw originally. Replay expects a
// Settlement with no journal attached.
func (s *Settlement) Replay(ctx context.Context, clk *clock.Manual, cmds []domain.Command) error {
	for i, cmd := range cmds {
		clk.Set(cmd.At)
		if err := s.Execute(ctx, cmd); err != nil {
			return fmt.Errorf("settlement: replay command %d (%s): %w", i, cmd.Type, err)
		}
	}
	s.logger.InfoContext(ctx, "settlement: journal replayed", slog.Int("commands", len(cmds)))
	return nil
}
