package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alanyoungcy/settled/internal/domain"
)

func TestPostIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	if err := l.Credit(ctx, "a", 100); err != nil {
		t.Fatal(err)
	}
	err := l.Post(ctx, []domain.Posting{
		{Account: "b", Amount: 50},
		{Account: "a", Amount: -150},
	})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if bal, _ := l.Balance(ctx, "b"); bal != 0 {
		t.Fatalf("b = %d after failed batch", bal)
	}

	err = l.Post(ctx, []domain.Posting{
		{Account: "a", Amount: -100},
		{Account: "b", Amount: 60},
		{Account: "c", Amount: 40},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int64{"a": 0, "b": 60, "c": 40}
	for acct, v := range want {
		if got, _ := l.Balance(ctx, acct); got != v {
			t.Errorf("%s = %d, want %d", acct, got, v)
		}
	}
}

func TestPostSeesEarlierPostingsInBatch(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	err := l.Post(ctx, []domain.Posting{
		{Account: "a", Amount: 100},
		{Account: "a", Amount: -100},
	})
	if err != nil {
		t.Fatalf("credit then debit in one batch: %v", err)
	}
	if err := l.Debit(ctx, "a", 1); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
}

func TestConcurrentTransfers(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	_ = l.Credit(ctx, "a", 1_000)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Post(ctx, []domain.Posting{{Account: "a", Amount: -10}, {Account: "b", Amount: 10}})
		}()
	}
	wg.Wait()
	if a, _ := l.Balance(ctx, "a"); a != 0 {
		t.Fatalf("a = %d, want 0", a)
	}
	if b, _ := l.Balance(ctx, "b"); b != 1_000 {
		t.Fatalf("b = %d, want 1000", b)
	}
}
