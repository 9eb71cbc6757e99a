// Package resolution runs the staked dispute process that decides a
// market's winning outcome, and splits forfeited stakes among the
// participants who backed the winner.
package resolution

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/fixedpoint"
)

// Engine sequences resolution windows for one market.
type Engine struct {
	policy     Policy
	outcomes   int
	windows    []*Window
	disputed   bool
	finalized  bool
	winner     domain.Outcome
	orphanPaid bool
}

// NewEngine returns an engine for a market with the given outcome count.
func NewEngine(policy Policy, outcomes int) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{policy: policy, outcomes: outcomes}, nil
}

// Policy returns the escalation policy in force.
func (e *Engine) Policy() Policy { return e.policy }

// State reports where the market is in its resolution lifecycle.
func (e *Engine) State() domain.MarketStatus {
	switch {
	case e.finalized:
		return domain.MarketStatusFinalized
	case e.disputed:
		return domain.MarketStatusDisputed
	case e.leading() != nil:
		return domain.MarketStatusResoluted
	}
	return domain.MarketStatusTrading
}

// Resoluted reports whether a first report has bonded.
func (e *Engine) Resoluted() bool { return e.leading() != nil }

// Disputed reports whether any dispute round has bonded.
func (e *Engine) Disputed() bool { return e.disputed }

// Finalized reports whether the winner is fixed.
func (e *Engine) Finalized() bool { return e.finalized }

// Winner returns the final outcome once finalized.
func (e *Engine) Winner() (domain.Outcome, bool) {
	return e.winner, e.finalized
}

// Windows returns copies of every window, oldest first.
func (e *Engine) Windows() []Window {
	out := make([]Window, 0, len(e.windows))
	for _, w := range e.windows {
		out = append(out, *w.clone())
	}
	return out
}

// ActiveWindow returns the window currently accepting stakes, if any.
func (e *Engine) ActiveWindow() (Window, bool) {
	if len(e.windows) == 0 || e.finalized {
		return Window{}, false
	}
	return *e.windows[len(e.windows)-1].clone(), true
}

// leading is the latest bonded window.
func (e *Engine) leading() *Window {
	for i := len(e.windows) - 1; i >= 0; i-- {
		if e.windows[i].Bonded {
			return e.windows[i]
		}
	}
	return nil
}

func (e *Engine) checkStake(outcome domain.Outcome, amount int64) error {
	if !outcome.Valid(e.outcomes) {
		return fmt.Errorf("outcome %d: %w", outcome, domain.ErrOutcomeNotFound)
	}
	if amount <= 0 {
		return fmt.Errorf("stake %d: %w", amount, domain.ErrInvalidAmount)
	}
	return nil
}

// Resolute stakes on the first report of the market's outcome. Stakes
// beyond what the outcome still needs to fill round 1's bond come back as
// change.
func (e *Engine) Resolute(now, marketEnd time.Time, account string, outcome domain.Outcome, amount int64) (int64, error) {
	switch {
	case e.finalized:
		return 0, fmt.Errorf("resolution: resolute: %w", domain.ErrAlreadyFinalized)
	case e.Resoluted():
		return 0, fmt.Errorf("resolution: resolute: %w", domain.ErrAlreadyResoluted)
	case now.Before(marketEnd):
		return 0, fmt.Errorf("resolution: resolute: %w", domain.ErrMarketOpen)
	}
	if err := e.checkStake(outcome, amount); err != nil {
		return 0, fmt.Errorf("resolution: resolute: %w", err)
	}
	if len(e.windows) == 0 {
		e.windows = append(e.windows, newWindow(1, e.policy.BondFor(1)))
	}
	return e.windows[0].stake(now, account, outcome, amount, e.policy.DisputeWindow), nil
}

// Dispute stakes against the leading outcome in the next round.
func (e *Engine) Dispute(now time.Time, account string, outcome domain.Outcome, amount int64) (int64, error) {
	if e.finalized {
		return 0, fmt.Errorf("resolution: dispute: %w", domain.ErrAlreadyFinalized)
	}
	lead := e.leading()
	switch {
	case lead == nil:
		return 0, fmt.Errorf("resolution: dispute: %w", domain.ErrNotResoluted)
	case lead.Round >= e.policy.MaxRounds:
		return 0, fmt.Errorf("resolution: dispute: round %d: %w", lead.Round, domain.ErrDisputeCapReached)
	case !now.Before(lead.EndTime):
		return 0, fmt.Errorf("resolution: dispute: %w", domain.ErrDisputeWindowClosed)
	}
	if err := e.checkStake(outcome, amount); err != nil {
		return 0, fmt.Errorf("resolution: dispute: %w", err)
	}
	if outcome == lead.Outcome {
		return 0, fmt.Errorf("resolution: dispute: outcome %d: %w", outcome, domain.ErrSameOutcome)
	}

	pending := e.windows[len(e.windows)-1]
	if pending.Bonded {
		pending = newWindow(lead.Round+1, e.policy.BondFor(lead.Round+1))
		e.windows = append(e.windows, pending)
	}
	change := pending.stake(now, account, outcome, amount, e.policy.DisputeWindow)
	if pending.Bonded {
		e.disputed = true
	}
	return change, nil
}

// Withdraw returns account's stake on outcome in round. Stakes backing a
// window's bonded outcome cannot be withdrawn.
func (e *Engine) Withdraw(account string, round int, outcome domain.Outcome) (int64, error) {
	if e.finalized {
		return 0, fmt.Errorf("resolution: withdraw: %w", domain.ErrAlreadyFinalized)
	}
	if round < 1 || round > len(e.windows) {
		return 0, fmt.Errorf("resolution: withdraw: round %d: %w", round, domain.ErrRoundNotFound)
	}
	w := e.windows[round-1]
	if w.Bonded && w.Outcome == outcome {
		return 0, fmt.Errorf("resolution: withdraw: round %d outcome %d: %w", round, outcome, domain.ErrStakeLocked)
	}
	amount := w.Stakes[account][outcome]
	if amount == 0 {
		return 0, nil
	}
	delete(w.Stakes[account], outcome)
	if len(w.Stakes[account]) == 0 {
		delete(w.Stakes, account)
	}
	w.Staked[outcome] -= amount
	if w.Staked[outcome] == 0 {
		delete(w.Staked, outcome)
	}
	return amount, nil
}

// Finalize fixes the winning outcome. Undisputed markets settle on the
// bonded report once its window has closed or the last round is reached;
// disputed markets settle on the judge's choice.
func (e *Engine) Finalize(now time.Time, caller, judge string, outcome *domain.Outcome) (domain.Outcome, error) {
	if e.finalized {
		return 0, fmt.Errorf("resolution: finalize: %w", domain.ErrAlreadyFinalized)
	}
	lead := e.leading()
	if lead == nil {
		return 0, fmt.Errorf("resolution: finalize: no bonded report: %w", domain.ErrNotYetFinalizable)
	}

	if e.disputed {
		if caller != judge {
			return 0, fmt.Errorf("resolution: finalize: disputed market: %w", domain.ErrUnauthorized)
		}
		if outcome == nil || !outcome.Valid(e.outcomes) {
			return 0, fmt.Errorf("resolution: finalize: judge outcome: %w", domain.ErrOutcomeNotFound)
		}
		e.winner = *outcome
	} else {
		if now.Before(lead.EndTime) && lead.Round < e.policy.MaxRounds {
			return 0, fmt.Errorf("resolution: finalize: window open until %s: %w",
				lead.EndTime.Format(time.RFC3339), domain.ErrNotYetFinalizable)
		}
		e.winner = lead.Outcome
	}
	e.finalized = true
	return e.winner, nil
}

// Earnings is what a participant recovers from the resolution process.
type Earnings struct {
	Principal int64 `json:"principal"` // stakes on the winner, returned
	Reward    int64 `json:"reward"`    // share of forfeited stakes
	Refund    int64 `json:"refund"`    // stakes that neither won nor bonded
}

// Total sums the components.
func (g Earnings) Total() int64 { return g.Principal + g.Reward + g.Refund }

// Earnings computes account's resolution payout. Stakes backing a bonded
// outcome that lost are forfeited into a pool shared pro rata by every
// stake on the winner. If nobody backed the winner the pool goes to the
// judge.
func (e *Engine) Earnings(account, judge string) Earnings {
	var g Earnings
	if !e.finalized {
		return g
	}
	correctTotal, pool := e.pool()

	var correct int64
	for _, w := range e.windows {
		for o, amt := range w.Stakes[account] {
			switch {
			case o == e.winner:
				correct += amt
			case w.Bonded && o == w.Outcome:
				// forfeited
			default:
				g.Refund += amt
			}
		}
	}
	g.Principal = correct
	g.Reward = fixedpoint.MulDiv(pool, correct, correctTotal)
	if correctTotal == 0 && account == judge && !e.orphanPaid {
		g.Reward += pool
	}
	return g
}

// Forfeited returns the total staked on the winner and the pool of
// forfeited stakes.
func (e *Engine) Forfeited() (correctTotal, pool int64) { return e.pool() }

func (e *Engine) pool() (correctTotal, pool int64) {
	for _, w := range e.windows {
		correctTotal += w.Staked[e.winner]
		if w.Bonded && w.Outcome != e.winner {
			pool += w.Staked[w.Outcome]
		}
	}
	return correctTotal, pool
}

// ClearParticipation drops account's stakes once they have been paid out.
// Window totals are kept so later claims see the same pool.
func (e *Engine) ClearParticipation(account, judge string) {
	for _, w := range e.windows {
		delete(w.Stakes, account)
	}
	if account == judge && e.finalized {
		if correctTotal, _ := e.pool(); correctTotal == 0 {
			e.orphanPaid = true
		}
	}
}

// Clone returns a deep copy of the engine.
func (e *Engine) Clone() *Engine {
	c := *e
	c.windows = make([]*Window, len(e.windows))
	for i, w := range e.windows {
		c.windows[i] = w.clone()
	}
	return &c
}

// Snapshot is the serializable state of an engine.
type Snapshot struct {
	Policy     Policy         `json:"policy"`
	Outcomes   int            `json:"outcomes"`
	Windows    []Window       `json:"windows"`
	Disputed   bool           `json:"disputed"`
	Finalized  bool           `json:"finalized"`
	Winner     domain.Outcome `json:"winner"`
	OrphanPaid bool           `json:"orphan_paid,omitempty"`
}

// Snapshot captures the engine.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Policy:     e.policy,
		Outcomes:   e.outcomes,
		Windows:    e.Windows(),
		Disputed:   e.disputed,
		Finalized:  e.finalized,
		Winner:     e.winner,
		OrphanPaid: e.orphanPaid,
	}
}

// Restore rebuilds an engine from a snapshot.
func Restore(s Snapshot) (*Engine, error) {
	e, err := NewEngine(s.Policy, s.Outcomes)
	if err != nil {
		return nil, err
	}
	for i := range s.Windows {
		w := s.Windows[i].clone()
		if w.Staked == nil {
			w.Staked = make(map[domain.Outcome]int64)
		}
		if w.Stakes == nil {
			w.Stakes = make(map[string]map[domain.Outcome]int64)
		}
		if w.Round != i+1 {
			return nil, fmt.Errorf("resolution: restore: window %d has round %d", i+1, w.Round)
		}
		e.windows = append(e.windows, w)
	}
	e.disputed = s.Disputed
	e.finalized = s.Finalized
	e.winner = s.Winner
	e.orphanPaid = s.OrphanPaid
	return e, nil
}
