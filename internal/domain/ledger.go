package domain

import (
	"context"
	"time"
)

// Posting is a single balance movement. Positive amounts credit the
// account, negative amounts debit it.
type Posting struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
	Memo    string `json:"memo,omitempty"`
}

// Ledger holds settlement-token balances. Post applies a batch atomically:
// either every posting lands or none does.
type Ledger interface {
	Balance(ctx context.Context, account string) (int64, error)
	Credit(ctx context.Context, account string, amount int64) error
	Debit(ctx context.Context, account string, amount int64) error
	Post(ctx context.Context, postings []Posting) error
}

// Clock supplies the logical time used for end-time and window checks.
type Clock interface {
	Now() time.Time
}

type callerKey struct{}

// WithCaller returns a context carrying the authenticated account id.
func WithCaller(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, callerKey{}, account)
}

// CallerFrom returns the authenticated account id carried by ctx.
func CallerFrom(ctx context.Context) (string, bool) {
	account, ok := ctx.Value(callerKey{}).(string)
	return account, ok && account != ""
}
