package resolution

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
)

// Policy sets how resolution bonds escalate between rounds.
type Policy struct {
	InitialBond    int64         // bond required to resolute in round 1
	BondMultiplier int64         // bond(r+1) = bond(r) * BondMultiplier
	MaxRounds      int           // last round a dispute may open
	DisputeWindow  time.Duration // how long a bonded round stays disputable
}

// DefaultPolicy matches the two-round schedule used in production.
func DefaultPolicy() Policy {
	return Policy{
		InitialBond:    10_000,
		BondMultiplier: 2,
		MaxRounds:      2,
		DisputeWindow:  12 * time.Hour,
	}
}

// Validate checks the policy is usable.
func (p Policy) Validate() error {
	switch {
	case p.InitialBond <= 0:
		return fmt.Errorf("resolution: initial bond must be positive: %w", domain.ErrInvalidMarketParameters)
	case p.BondMultiplier < 1:
		return fmt.Errorf("resolution: bond multiplier must be at least 1: %w", domain.ErrInvalidMarketParameters)
	case p.MaxRounds < 1:
		return fmt.Errorf("resolution: max rounds must be at least 1: %w", domain.ErrInvalidMarketParameters)
	case p.DisputeWindow <= 0:
		return fmt.Errorf("resolution: dispute window must be positive: %w", domain.ErrInvalidMarketParameters)
	}
	return nil
}

// BondFor returns the bond required to fill round r.
func (p Policy) BondFor(round int) int64 {
	bond := p.InitialBond
	for i := 1; i < round; i++ {
		bond *= p.BondMultiplier
	}
	return bond
}
