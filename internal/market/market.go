// Package market ties one order book per outcome to the resolution engine
// and computes what every account is owed once the market is finalized.
// Methods never touch balances: each mutation returns the ledger postings
// the caller must apply.
package market

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/orderbook"
	"github.com/alanyoungcy/settled/internal/resolution"
)

// Limits checked when a market is created, and the default fee caps in
// percent.
const (
	MinOutcomes      = 2
	MaxOutcomes      = 19
	MaxCategories    = 5
	MaxAffiliatePct  = 100
	DefaultMaxFeePct = 5
	DefaultResFeePct = 1
)

// Config holds the settings shared by every market of an engine.
type Config struct {
	Judge            string            `json:"judge"`
	FeeAccount       string            `json:"fee_account"`
	MaxCreatorFeePct int64             `json:"max_creator_fee_pct"`
	ResolutionFeePct int64             `json:"resolution_fee_pct"`
	Policy           resolution.Policy `json:"policy"`
}

// DefaultConfig returns the production fee schedule.
func DefaultConfig(judge string) Config {
	return Config{
		Judge:            judge,
		FeeAccount:       judge,
		MaxCreatorFeePct: DefaultMaxFeePct,
		ResolutionFeePct: DefaultResFeePct,
		Policy:           resolution.DefaultPolicy(),
	}
}

// Market is a single prediction market.
type Market struct {
	id        uint64
	creator   string
	spec      domain.MarketSpec
	cfg       Config
	createdAt time.Time
	books     []*orderbook.Book
	engine    *resolution.Engine
}

// New validates spec and opens a market.
func New(id uint64, creator string, spec domain.MarketSpec, cfg Config, now time.Time) (*Market, error) {
	if err := validateSpec(spec, cfg, now); err != nil {
		return nil, err
	}
	engine, err := resolution.NewEngine(cfg.Policy, spec.Outcomes)
	if err != nil {
		return nil, fmt.Errorf("market: new: %w", err)
	}
	m := &Market{
		id:        id,
		creator:   creator,
		spec:      spec,
		cfg:       cfg,
		createdAt: now,
		books:     make([]*orderbook.Book, spec.Outcomes),
		engine:    engine,
	}
	for i := range m.books {
		m.books[i] = orderbook.New(domain.Outcome(i))
	}
	return m, nil
}

func validateSpec(spec domain.MarketSpec, cfg Config, now time.Time) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("market: %s: %w", fmt.Sprintf(format, args...), domain.ErrInvalidMarketParameters)
	}
	switch {
	case spec.Outcomes < MinOutcomes || spec.Outcomes > MaxOutcomes:
		return invalid("outcomes %d outside %d..%d", spec.Outcomes, MinOutcomes, MaxOutcomes)
	case spec.Outcomes == 2 && len(spec.Tags) != 0:
		return invalid("binary market cannot carry tags")
	case spec.Outcomes > 2 && len(spec.Tags) != spec.Outcomes:
		return invalid("%d tags for %d outcomes", len(spec.Tags), spec.Outcomes)
	case len(spec.Categories) > MaxCategories:
		return invalid("%d categories, max %d", len(spec.Categories), MaxCategories)
	case !spec.EndTime.After(now):
		return invalid("end time %s is not in the future", spec.EndTime.Format(time.RFC3339))
	case spec.CreatorFeePct < 0 || spec.CreatorFeePct > cfg.MaxCreatorFeePct:
		return invalid("creator fee %d%%, max %d%%", spec.CreatorFeePct, cfg.MaxCreatorFeePct)
	case spec.AffiliateFeePct < 0 || spec.AffiliateFeePct > MaxAffiliatePct:
		return invalid("affiliate fee %d%%, max %d%%", spec.AffiliateFeePct, MaxAffiliatePct)
	}
	return nil
}

// ID returns the market id.
func (m *Market) ID() uint64 { return m.id }

// Creator returns the account that opened the market.
func (m *Market) Creator() string { return m.creator }

// Spec returns the creation parameters.
func (m *Market) Spec() domain.MarketSpec { return m.spec }

// Status reports the lifecycle state.
func (m *Market) Status() domain.MarketStatus { return m.engine.State() }

// Judge is the account that finalizes disputed markets.
func (m *Market) Judge() string {
	if m.cfg.Judge != "" {
		return m.cfg.Judge
	}
	return m.creator
}

func (m *Market) feeAccount() string {
	if m.cfg.FeeAccount != "" {
		return m.cfg.FeeAccount
	}
	return m.Judge()
}

func (m *Market) book(outcome domain.Outcome) (*orderbook.Book, error) {
	if outcome < 0 || int(outcome) >= len(m.books) {
		return nil, fmt.Errorf("market %d: outcome %d: %w", m.id, outcome, domain.ErrOutcomeNotFound)
	}
	return m.books[outcome], nil
}

// Clone returns a deep copy that can be mutated without affecting m.
func (m *Market) Clone() *Market {
	c := *m
	c.spec.Tags = append([]string(nil), m.spec.Tags...)
	c.spec.Categories = append([]string(nil), m.spec.Categories...)
	c.books = make([]*orderbook.Book, len(m.books))
	for i, b := range m.books {
		c.books[i] = b.Clone()
	}
	c.engine = m.engine.Clone()
	return &c
}

// Snapshot is the persisted form of a market.
type Snapshot struct {
	ID        uint64               `json:"id"`
	Creator   string               `json:"creator"`
	Spec      domain.MarketSpec    `json:"spec"`
	Config    Config               `json:"config"`
	CreatedAt time.Time            `json:"created_at"`
	Books     []orderbook.Snapshot `json:"books"`
	Engine    resolution.Snapshot  `json:"engine"`
}

// Snapshot captures the market.
func (m *Market) Snapshot() Snapshot {
	s := Snapshot{
		ID:        m.id,
		Creator:   m.creator,
		Spec:      m.spec,
		Config:    m.cfg,
		CreatedAt: m.createdAt,
		Engine:    m.engine.Snapshot(),
	}
	for _, b := range m.books {
		s.Books = append(s.Books, b.Snapshot())
	}
	return s
}

// Restore rebuilds a market from a snapshot without re-validating the
// creation rules, which only apply at creation time.
func Restore(s Snapshot) (*Market, error) {
	if len(s.Books) != s.Spec.Outcomes {
		return nil, fmt.Errorf("market: restore %d: %d books for %d outcomes", s.ID, len(s.Books), s.Spec.Outcomes)
	}
	engine, err := resolution.Restore(s.Engine)
	if err != nil {
		return nil, fmt.Errorf("market: restore %d: %w", s.ID, err)
	}
	m := &Market{
		id:        s.ID,
		creator:   s.Creator,
		spec:      s.Spec,
		cfg:       s.Config,
		createdAt: s.CreatedAt,
		engine:    engine,
	}
	for _, bs := range s.Books {
		b, err := orderbook.Restore(bs)
		if err != nil {
			return nil, fmt.Errorf("market: restore %d: %w", s.ID, err)
		}
		m.books = append(m.books, b)
	}
	return m, nil
}
