package resolution

import (
	"maps"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
)

// Window is the staking ledger of one resolution round. Stakes on an
// outcome crowd-fund the round's bond; the first outcome to reach it
// bonds the window.
type Window struct {
	Round        int                                 `json:"round"`
	RequiredBond int64                               `json:"required_bond"`
	EndTime      time.Time                           `json:"end_time"`
	Bonded       bool                                `json:"bonded"`
	Outcome      domain.Outcome                      `json:"outcome"`
	Staked       map[domain.Outcome]int64            `json:"staked"`
	Stakes       map[string]map[domain.Outcome]int64 `json:"stakes"`
}

func newWindow(round int, bond int64) *Window {
	return &Window{
		Round:        round,
		RequiredBond: bond,
		Staked:       make(map[domain.Outcome]int64),
		Stakes:       make(map[string]map[domain.Outcome]int64),
	}
}

// stake accepts as much of amount as the outcome still needs and returns
// the unaccepted change. It bonds the window when the outcome is full.
func (w *Window) stake(now time.Time, account string, outcome domain.Outcome, amount int64, window time.Duration) int64 {
	accepted := min(amount, w.RequiredBond-w.Staked[outcome])
	if accepted <= 0 {
		return amount
	}
	w.Staked[outcome] += accepted
	byOutcome, ok := w.Stakes[account]
	if !ok {
		byOutcome = make(map[domain.Outcome]int64)
		w.Stakes[account] = byOutcome
	}
	byOutcome[outcome] += accepted
	if w.Staked[outcome] >= w.RequiredBond {
		w.Bonded = true
		w.Outcome = outcome
		w.EndTime = now.Add(window)
	}
	return amount - accepted
}

// StakeOf returns account's stake on outcome.
func (w *Window) StakeOf(account string, outcome domain.Outcome) int64 {
	return w.Stakes[account][outcome]
}

func (w *Window) clone() *Window {
	c := *w
	c.Staked = maps.Clone(w.Staked)
	c.Stakes = make(map[string]map[domain.Outcome]int64, len(w.Stakes))
	for acct, byOutcome := range w.Stakes {
		c.Stakes[acct] = maps.Clone(byOutcome)
	}
	return &c
}
