package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fatih/structs"
	"github.com/google/uuid"

	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/market"
)

// committed runs the side effects of a commit. The ledger and the
// in-memory market are already updated, so failures here are logged and
// never undo the operation.
func (s *Settlement) committed(ctx context.Context, cmd domain.Command, m *market.Market, mut mutation) {
	s.record(ctx, cmd)
	s.metrics.AddPostings(len(mut.postings))
	s.metrics.SetOpenOrders(m.ID(), m.OpenOrderCount())

	if s.store != nil {
		if err := s.persist(ctx, m); err != nil {
			s.logger.ErrorContext(ctx, "settlement: persist market failed",
				slog.Uint64("market_id", m.ID()),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, m.Summary(s.clock.Now())); err != nil {
			s.logger.WarnContext(ctx, "settlement: cache summary failed",
				slog.Uint64("market_id", m.ID()),
				slog.String("error", err.Error()),
			)
		}
	}
	for _, ev := range mut.events {
		s.emit(ctx, ev)
	}
	if cmd.Type == domain.CmdFinalize && s.archiver != nil {
		if key, err := s.archive(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "settlement: archive failed",
				slog.Uint64("market_id", m.ID()),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.InfoContext(ctx, "settlement: settlement archived",
				slog.Uint64("market_id", m.ID()),
				slog.String("key", key),
			)
		}
	}
}

// record journals and audits a committed command.
func (s *Settlement) record(ctx context.Context, cmd domain.Command) {
	if s.journal != nil {
		if _, err := s.journal.Append(cmd); err != nil {
			s.logger.ErrorContext(ctx, "settlement: journal append failed",
				slog.String("command", string(cmd.Type)),
				slog.Uint64("market_id", cmd.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.audit != nil {
		detail := structs.Map(cmd)
		if cmd.Outcome != nil {
			detail["outcome"] = int(*cmd.Outcome)
		}
		if err := s.audit.Log(ctx, string(cmd.Type), detail); err != nil {
			s.logger.WarnContext(ctx, "settlement: audit log failed",
				slog.String("command", string(cmd.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Settlement) persist(ctx context.Context, m *market.Market) error {
	payload, err := json.Marshal(m.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	info := m.Info()
	return s.store.Save(ctx, domain.MarketRecord{
		ID:        info.ID,
		Creator:   info.Creator,
		Status:    info.Status,
		EndTime:   info.Spec.EndTime,
		Payload:   payload,
		CreatedAt: info.CreatedAt,
		UpdatedAt: s.clock.Now(),
	})
}

// emit hands a committed event to the outbox, the signal bus and the
// notifier.
func (s *Settlement) emit(ctx context.Context, ev domain.Event) {
	if s.sink != nil {
		if err := s.sink.Append(ctx, ev); err != nil {
			s.logger.ErrorContext(ctx, "settlement: outbox append failed",
				slog.String("event", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.bus != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			for _, ch := range []string{domain.ChannelEvents, domain.MarketChannel(ev.MarketID)} {
				if pubErr := s.bus.Publish(ctx, ch, payload); pubErr != nil {
					s.logger.WarnContext(ctx, "settlement: publish event failed",
						slog.String("channel", ch),
						slog.String("error", pubErr.Error()),
					)
				}
			}
			if err := s.bus.StreamAppend(ctx, domain.StreamEvents, payload); err != nil {
				s.logger.WarnContext(ctx, "settlement: stream append failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
	if s.notifier != nil {
		if title, msg, ok := alert(ev); ok {
			if err := s.notifier.Notify(ctx, string(ev.Type), title, msg); err != nil {
				s.logger.WarnContext(ctx, "settlement: notify failed",
					slog.String("event", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func alert(ev domain.Event) (title, message string, ok bool) {
	switch ev.Type {
	case domain.EventMarketResoluted:
		return fmt.Sprintf("Market %d resoluted", ev.MarketID),
			fmt.Sprintf("Outcome %v reported by %s. Dispute window ends %v.", ev.Data["outcome"], ev.Account, ev.Data["end_time"]), true
	case domain.EventMarketDisputed:
		return fmt.Sprintf("Market %d disputed", ev.MarketID),
			fmt.Sprintf("Round %v bonded on outcome %v by %s.", ev.Data["round"], ev.Data["outcome"], ev.Account), true
	case domain.EventMarketFinalized:
		return fmt.Sprintf("Market %d finalized", ev.MarketID),
			fmt.Sprintf("Winning outcome %v.", ev.Data["winner"]), true
	}
	return "", "", false
}

// SettlementReport is the archived record of a finalized market.
type SettlementReport struct {
	Market market.Info    `json:"market"`
	Claims []market.Claim `json:"claims"`
}

// Report computes what every known account is owed by a finalized market.
func Report(m *market.Market) (SettlementReport, error) {
	r := SettlementReport{Market: m.Info()}
	for _, account := range m.Accounts() {
		c, err := m.Claimable(account)
		if err != nil {
			return SettlementReport{}, err
		}
		r.Claims = append(r.Claims, c)
	}
	return r, nil
}

func (s *Settlement) archive(ctx context.Context, m *market.Market) (string, error) {
	r, err := Report(m)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return s.archiver.ArchiveSettlement(ctx, m.ID(), payload)
}

// Receipt proves the operator paid a claim.
type Receipt struct {
	ID        string `json:"id"`
	Signer    string `json:"signer"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

func (s *Settlement) receipt(marketID uint64, c market.Claim) (Receipt, error) {
	payload, err := json.Marshal(struct {
		MarketID uint64 `json:"market_id"`
		Account  string `json:"account"`
		Payout   int64  `json:"payout"`
		Winnings int64  `json:"winnings"`
	}{marketID, c.Account, c.Payout, c.Winnings})
	if err != nil {
		return Receipt{}, err
	}
	sig, err := s.signer.SignMessage(payload)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		ID:        uuid.NewString(),
		Signer:    s.signer.Address(),
		Payload:   string(payload),
		Signature: sig,
	}, nil
}
