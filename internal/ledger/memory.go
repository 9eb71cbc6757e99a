// Package ledger provides the in-process settlement-token ledger used in
// development and tests. Production deployments post to Postgres.
package ledger

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/alanyoungcy/settled/internal/domain"
)

// Memory is a mutex-guarded map of balances.
type Memory struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewMemory returns an empty ledger.
func NewMemory() *Memory {
	return &Memory{balances: make(map[string]int64)}
}

// Balance returns account's balance.
func (l *Memory) Balance(_ context.Context, account string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

// Credit adds amount to account.
func (l *Memory) Credit(ctx context.Context, account string, amount int64) error {
	return l.Post(ctx, []domain.Posting{{Account: account, Amount: amount}})
}

// Debit removes amount from account.
func (l *Memory) Debit(ctx context.Context, account string, amount int64) error {
	return l.Post(ctx, []domain.Posting{{Account: account, Amount: -amount}})
}

// Post applies postings in order, all or nothing.
func (l *Memory) Post(_ context.Context, postings []domain.Posting) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make(map[string]int64, len(postings))
	for _, p := range postings {
		if p.Account == "" {
			return fmt.Errorf("ledger: post: empty account: %w", domain.ErrInvalidAmount)
		}
		bal, ok := next[p.Account]
		if !ok {
			bal = l.balances[p.Account]
		}
		bal += p.Amount
		if bal < 0 {
			return fmt.Errorf("ledger: post: %s short by %d: %w", p.Account, -bal, domain.ErrInsufficientBalance)
		}
		next[p.Account] = bal
	}
	maps.Copy(l.balances, next)
	return nil
}

// Balances returns a copy of every balance.
func (l *Memory) Balances() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.balances)
}

var _ domain.Ledger = (*Memory)(nil)
