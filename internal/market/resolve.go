package market

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
	"github.com/alanyoungcy/settled/internal/resolution"
)

// Resolute reports outcome as the winner with a stake. Only the accepted
// part of the stake is debited; the rest is returned as change.
func (m *Market) Resolute(now time.Time, caller string, outcome domain.Outcome, stake int64) (int64, []domain.Posting, error) {
	change, err := m.engine.Resolute(now, m.spec.EndTime, caller, outcome, stake)
	if err != nil {
		return 0, nil, fmt.Errorf("market %d: %w", m.id, err)
	}
	return change, debit(caller, stake-change, "resolution stake"), nil
}

// Dispute stakes against the leading outcome in the next round.
func (m *Market) Dispute(now time.Time, caller string, outcome domain.Outcome, stake int64) (int64, []domain.Posting, error) {
	change, err := m.engine.Dispute(now, caller, outcome, stake)
	if err != nil {
		return 0, nil, fmt.Errorf("market %d: %w", m.id, err)
	}
	return change, debit(caller, stake-change, "dispute stake"), nil
}

// Withdraw returns caller's stake on a non-bonded outcome of round.
func (m *Market) Withdraw(caller string, round int, outcome domain.Outcome) (int64, []domain.Posting, error) {
	amount, err := m.engine.Withdraw(caller, round, outcome)
	if err != nil {
		return 0, nil, fmt.Errorf("market %d: %w", m.id, err)
	}
	return amount, credit(caller, amount, "stake withdrawal"), nil
}

// Finalize fixes the winning outcome.
func (m *Market) Finalize(now time.Time, caller string, outcome *domain.Outcome) (domain.Outcome, error) {
	winner, err := m.engine.Finalize(now, caller, m.Judge(), outcome)
	if err != nil {
		return 0, fmt.Errorf("market %d: %w", m.id, err)
	}
	return winner, nil
}

// Windows returns the resolution history.
func (m *Market) Windows() []resolution.Window { return m.engine.Windows() }

// Winner returns the final outcome once finalized.
func (m *Market) Winner() (domain.Outcome, bool) { return m.engine.Winner() }

func debit(account string, amount int64, memo string) []domain.Posting {
	if amount <= 0 {
		return nil
	}
	return []domain.Posting{{Account: account, Amount: -amount, Memo: memo}}
}
