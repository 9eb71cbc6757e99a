package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/settled/internal/domain"
)

// LedgerStore implements domain.Ledger on the balances table. Every
// posting is also appended to ledger_entries.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Balance returns account's balance, zero when it has never been credited.
func (s *LedgerStore) Balance(ctx context.Context, account string) (int64, error) {
	var amount int64
	err := s.pool.QueryRow(ctx, `SELECT amount FROM balances WHERE account = $1`, account).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: balance of %s: %w", account, err)
	}
	return amount, nil
}

// Credit adds amount to account.
func (s *LedgerStore) Credit(ctx context.Context, account string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("postgres: credit %d: %w", amount, domain.ErrInvalidAmount)
	}
	return s.Post(ctx, []domain.Posting{{Account: account, Amount: amount, Memo: "credit"}})
}

// Debit removes amount from account.
func (s *LedgerStore) Debit(ctx context.Context, account string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("postgres: debit %d: %w", amount, domain.ErrInvalidAmount)
	}
	return s.Post(ctx, []domain.Posting{{Account: account, Amount: -amount, Memo: "debit"}})
}

// netPostings sums postings per account and returns the accounts in a
// fixed order, so concurrent batches lock rows in the same sequence.
func netPostings(postings []domain.Posting) ([]string, map[string]int64, error) {
	net := make(map[string]int64, len(postings))
	for _, p := range postings {
		if p.Account == "" {
			return nil, nil, fmt.Errorf("empty account: %w", domain.ErrInvalidAmount)
		}
		net[p.Account] += p.Amount
	}
	accounts := make([]string, 0, len(net))
	for a := range net {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)
	return accounts, net, nil
}

// Post applies postings in one transaction.
func (s *LedgerStore) Post(ctx context.Context, postings []domain.Posting) error {
	if len(postings) == 0 {
		return nil
	}
	accounts, net, err := netPostings(postings)
	if err != nil {
		return fmt.Errorf("postgres: post: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: post: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, account := range accounts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO balances (account, amount) VALUES ($1, 0) ON CONFLICT (account) DO NOTHING`,
			account,
		); err != nil {
			return fmt.Errorf("postgres: post: ensure %s: %w", account, err)
		}
		var bal int64
		if err := tx.QueryRow(ctx,
			`SELECT amount FROM balances WHERE account = $1 FOR UPDATE`, account,
		).Scan(&bal); err != nil {
			return fmt.Errorf("postgres: post: lock %s: %w", account, err)
		}
		if bal+net[account] < 0 {
			return fmt.Errorf("postgres: post: %s short by %d: %w", account, -(bal + net[account]), domain.ErrInsufficientBalance)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE balances SET amount = amount + $2, updated_at = NOW() WHERE account = $1`,
			account, net[account],
		); err != nil {
			return fmt.Errorf("postgres: post: update %s: %w", account, err)
		}
	}

	batchID := uuid.New()
	rows := make([][]any, 0, len(postings))
	for _, p := range postings {
		rows = append(rows, []any{batchID, p.Account, p.Amount, p.Memo})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"ledger_entries"},
		[]string{"batch_id", "account", "amount", "memo"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("postgres: post: entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: post: commit: %w", err)
	}
	return nil
}

var _ domain.Ledger = (*LedgerStore)(nil)
