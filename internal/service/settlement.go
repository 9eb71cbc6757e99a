package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/market"
	"github.com/alanyoungcy/settled/internal/metrics"
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ReceiptSigner signs claim receipts with the operator key.
type ReceiptSigner interface {
	SignMessage(msg []byte) (string, error)
	Address() string
}

// Settlement runs every market operation. Operations on one market are
// serialized and transactional: the market is mutated on a clone, the
// resulting postings are applied to the ledger as one batch, and only
// then is the clone swapped in. Operations on different markets run
// concurrently.
type Settlement struct {
	cfg    market.Config
	ledger domain.Ledger
	clock  domain.Clock
	logger *slog.Logger

	mu      sync.RWMutex
	markets map[uint64]*entry
	nextID  uint64

	store    domain.MarketStore
	audit    domain.AuditStore
	bus      domain.SignalBus
	cache    domain.MarketCache
	locks    domain.LockManager
	lockTTL  time.Duration
	sink     domain.EventSink
	journal  domain.CommandLog
	archiver domain.SettlementArchiver
	notifier Notifier
	signer   ReceiptSigner
	metrics  *metrics.Metrics
}

type entry struct {
	mu sync.Mutex
	m  *market.Market
}

// NewSettlement creates a Settlement with no markets. Optional
// collaborators are attached with the With methods before use.
func NewSettlement(cfg market.Config, ledger domain.Ledger, clock domain.Clock, logger *slog.Logger) *Settlement {
	return &Settlement{
		cfg:     cfg,
		ledger:  ledger,
		clock:   clock,
		logger:  logger,
		markets: make(map[uint64]*entry),
		nextID:  1,
		lockTTL: 10 * time.Second,
	}
}

// WithStore persists a snapshot of every market after each commit.
func (s *Settlement) WithStore(store domain.MarketStore) *Settlement {
	s.store = store
	return s
}

// WithAudit records every committed command in the audit log.
func (s *Settlement) WithAudit(audit domain.AuditStore) *Settlement {
	s.audit = audit
	return s
}

// WithBus publishes committed events on the signal bus.
func (s *Settlement) WithBus(bus domain.SignalBus) *Settlement {
	s.bus = bus
	return s
}

// WithCache keeps market summaries in cache.
func (s *Settlement) WithCache(cache domain.MarketCache) *Settlement {
	s.cache = cache
	return s
}

// WithLocks serializes each market across processes as well.
func (s *Settlement) WithLocks(locks domain.LockManager, ttl time.Duration) *Settlement {
	s.locks = locks
	if ttl > 0 {
		s.lockTTL = ttl
	}
	return s
}

// WithEventSink durably records committed events for broker delivery.
func (s *Settlement) WithEventSink(sink domain.EventSink) *Settlement {
	s.sink = sink
	return s
}

// WithJournal appends every committed command to log.
func (s *Settlement) WithJournal(log domain.CommandLog) *Settlement {
	s.journal = log
	return s
}

// WithArchiver stores a settlement report when a market is finalized.
func (s *Settlement) WithArchiver(a domain.SettlementArchiver) *Settlement {
	s.archiver = a
	return s
}

// WithNotifier sends resolution alerts.
func (s *Settlement) WithNotifier(n Notifier) *Settlement {
	s.notifier = n
	return s
}

// WithSigner signs claim receipts.
func (s *Settlement) WithSigner(signer ReceiptSigner) *Settlement {
	s.signer = signer
	return s
}

// WithMetrics records operation metrics.
func (s *Settlement) WithMetrics(m *metrics.Metrics) *Settlement {
	s.metrics = m
	return s
}

// Load restores every market held by the store.
func (s *Settlement) Load(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	const page = 500
	var loaded int
	for offset := 0; ; offset += page {
		recs, err := s.store.List(ctx, domain.ListOpts{Limit: page, Offset: offset})
		if err != nil {
			return loaded, fmt.Errorf("settlement: load: %w", err)
		}
		for _, rec := range recs {
			var snap market.Snapshot
			if err := json.Unmarshal(rec.Payload, &snap); err != nil {
				return loaded, fmt.Errorf("settlement: load market %d: %w", rec.ID, err)
			}
			m, err := market.Restore(snap)
			if err != nil {
				return loaded, fmt.Errorf("settlement: load market %d: %w", rec.ID, err)
			}
			s.install(m)
			loaded++
		}
		if len(recs) < page {
			break
		}
	}
	s.logger.InfoContext(ctx, "settlement: markets loaded", slog.Int("count", loaded))
	return loaded, nil
}

func (s *Settlement) install(m *market.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID()] = &entry{m: m}
	if m.ID() >= s.nextID {
		s.nextID = m.ID() + 1
	}
}

func (s *Settlement) entry(id uint64) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %d: %w", id, domain.ErrMarketNotFound)
	}
	return e, nil
}

// market returns the committed state of a market. The returned value is
// never mutated again: commits replace it.
func (s *Settlement) market(id uint64) (*market.Market, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m, nil
}

func (s *Settlement) ids() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0, len(s.markets))
	for id := range s.markets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func caller(ctx context.Context) (string, error) {
	account, ok := domain.CallerFrom(ctx)
	if !ok {
		return "", domain.ErrUnauthorized
	}
	return account, nil
}

// mutation is the result of applying one command to a market clone.
type mutation struct {
	postings []domain.Posting
	events   []domain.Event
}

// apply runs fn against a clone of the market and commits it.
func (s *Settlement) apply(ctx context.Context, cmd domain.Command, fn func(m *market.Market) (mutation, error)) error {
	start := time.Now()
	err := s.commit(ctx, cmd, fn)
	s.metrics.ObserveOp(string(cmd.Type), err, time.Since(start))
	return err
}

func (s *Settlement) commit(ctx context.Context, cmd domain.Command, fn func(m *market.Market) (mutation, error)) error {
	e, err := s.entry(cmd.MarketID)
	if err != nil {
		return err
	}
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, fmt.Sprintf("market:%d", cmd.MarketID), s.lockTTL)
		if err != nil {
			return fmt.Errorf("market %d: lock: %w", cmd.MarketID, err)
		}
		defer unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	work := e.m.Clone()
	mut, err := fn(work)
	if err != nil {
		return err
	}
	if len(mut.postings) > 0 {
		if err := s.ledger.Post(ctx, mut.postings); err != nil {
			return fmt.Errorf("market %d: post: %w", cmd.MarketID, err)
		}
	}
	e.m = work

	s.committed(ctx, cmd, work, mut)
	return nil
}

// requireBalance fails unless account holds at least amount.
func (s *Settlement) requireBalance(ctx context.Context, account string, amount int64) error {
	bal, err := s.ledger.Balance(ctx, account)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("%s holds %d, needs %d: %w", account, bal, amount, domain.ErrInsufficientBalance)
	}
	return nil
}
