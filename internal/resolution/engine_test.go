package resolution

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
)

var (
	marketEnd = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	afterEnd  = marketEnd.Add(time.Minute)
)

const judge = "judge"

func outcome(o int) *domain.Outcome {
	v := domain.Outcome(o)
	return &v
}

func newEngine(t *testing.T, p Policy) *Engine {
	t.Helper()
	e, err := NewEngine(p, 3)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func mustStake(t *testing.T, change int64, err error, wantChange int64) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	if change != wantChange {
		t.Fatalf("change = %d, want %d", change, wantChange)
	}
}

// resoluteAndDispute bonds round 1 on outcome 0 (a) and round 2 on
// outcome 1 (b).
func resoluteAndDispute(t *testing.T, e *Engine) {
	t.Helper()
	change, err := e.Resolute(afterEnd, marketEnd, "a", 0, 10_000)
	mustStake(t, change, err, 0)
	change, err = e.Dispute(afterEnd.Add(time.Hour), "b", 1, 20_000)
	mustStake(t, change, err, 0)
}

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.BondFor(1) != 10_000 || p.BondFor(2) != 20_000 || p.BondFor(3) != 40_000 {
		t.Fatalf("unexpected bond schedule %d %d %d", p.BondFor(1), p.BondFor(2), p.BondFor(3))
	}
	bad := []Policy{
		{InitialBond: 0, BondMultiplier: 2, MaxRounds: 2, DisputeWindow: time.Hour},
		{InitialBond: 1, BondMultiplier: 0, MaxRounds: 2, DisputeWindow: time.Hour},
		{InitialBond: 1, BondMultiplier: 2, MaxRounds: 0, DisputeWindow: time.Hour},
		{InitialBond: 1, BondMultiplier: 2, MaxRounds: 2},
	}
	for i, p := range bad {
		if err := p.Validate(); !errors.Is(err, domain.ErrInvalidMarketParameters) {
			t.Errorf("policy %d: err = %v", i, err)
		}
	}
}

func TestResoluteCrowdfundsBond(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	if _, err := e.Resolute(marketEnd.Add(-time.Second), marketEnd, "a", 0, 100); !errors.Is(err, domain.ErrMarketOpen) {
		t.Fatalf("err = %v, want ErrMarketOpen", err)
	}
	if _, err := e.Resolute(afterEnd, marketEnd, "a", 7, 100); !errors.Is(err, domain.ErrOutcomeNotFound) {
		t.Fatalf("err = %v, want ErrOutcomeNotFound", err)
	}

	change, err := e.Resolute(afterEnd, marketEnd, "a", 0, 6_000)
	mustStake(t, change, err, 0)
	if e.State() != domain.MarketStatusTrading {
		t.Fatalf("state = %s before bond filled", e.State())
	}
	change, err = e.Resolute(afterEnd, marketEnd, "b", 0, 6_000)
	mustStake(t, change, err, 2_000)
	if e.State() != domain.MarketStatusResoluted {
		t.Fatalf("state = %s, want resoluted", e.State())
	}
	w, _ := e.ActiveWindow()
	if w.Round != 1 || !w.Bonded || w.Outcome != 0 || !w.EndTime.Equal(afterEnd.Add(12*time.Hour)) {
		t.Fatalf("window = %+v", w)
	}
	if w.StakeOf("b", 0) != 4_000 {
		t.Fatalf("b stake = %d, want 4000", w.StakeOf("b", 0))
	}
	if _, err := e.Resolute(afterEnd, marketEnd, "c", 1, 100); !errors.Is(err, domain.ErrAlreadyResoluted) {
		t.Fatalf("err = %v, want ErrAlreadyResoluted", err)
	}
}

func TestDisputeRules(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	if _, err := e.Dispute(afterEnd, "b", 1, 100); !errors.Is(err, domain.ErrNotResoluted) {
		t.Fatalf("err = %v, want ErrNotResoluted", err)
	}
	change, err := e.Resolute(afterEnd, marketEnd, "a", 0, 10_000)
	mustStake(t, change, err, 0)

	if _, err := e.Dispute(afterEnd, "b", 0, 100); !errors.Is(err, domain.ErrSameOutcome) {
		t.Fatalf("err = %v, want ErrSameOutcome", err)
	}
	if _, err := e.Dispute(afterEnd.Add(13*time.Hour), "b", 1, 100); !errors.Is(err, domain.ErrDisputeWindowClosed) {
		t.Fatalf("err = %v, want ErrDisputeWindowClosed", err)
	}

	change, err = e.Dispute(afterEnd.Add(time.Hour), "b", 1, 25_000)
	mustStake(t, change, err, 5_000)
	if e.State() != domain.MarketStatusDisputed {
		t.Fatalf("state = %s, want disputed", e.State())
	}
	w, _ := e.ActiveWindow()
	if w.Round != 2 || w.RequiredBond != 20_000 {
		t.Fatalf("round 2 window = %+v", w)
	}
	if _, err := e.Dispute(afterEnd.Add(2*time.Hour), "c", 0, 40_000); !errors.Is(err, domain.ErrDisputeCapReached) {
		t.Fatalf("err = %v, want ErrDisputeCapReached", err)
	}
}

func TestDisputeEscalatesPastTwoRoundsWhenAllowed(t *testing.T) {
	p := DefaultPolicy()
	p.MaxRounds = 3
	e := newEngine(t, p)
	resoluteAndDispute(t, e)
	change, err := e.Dispute(afterEnd.Add(2*time.Hour), "c", 0, 40_000)
	mustStake(t, change, err, 0)
	if n := len(e.Windows()); n != 3 {
		t.Fatalf("windows = %d, want 3", n)
	}
	if _, err := e.Dispute(afterEnd.Add(3*time.Hour), "d", 1, 1); !errors.Is(err, domain.ErrDisputeCapReached) {
		t.Fatalf("err = %v, want ErrDisputeCapReached", err)
	}
}

func TestFinalizeUndisputed(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	if _, err := e.Finalize(afterEnd, "x", judge, nil); !errors.Is(err, domain.ErrNotYetFinalizable) {
		t.Fatalf("err = %v, want ErrNotYetFinalizable", err)
	}
	change, err := e.Resolute(afterEnd, marketEnd, "a", 2, 10_000)
	mustStake(t, change, err, 0)
	if _, err := e.Finalize(afterEnd.Add(time.Hour), "x", judge, nil); !errors.Is(err, domain.ErrNotYetFinalizable) {
		t.Fatalf("err = %v, want ErrNotYetFinalizable", err)
	}
	winner, err := e.Finalize(afterEnd.Add(12*time.Hour), "anyone", judge, outcome(1))
	if err != nil {
		t.Fatal(err)
	}
	if winner != 2 {
		t.Fatalf("winner = %d, want the bonded report 2", winner)
	}
	if _, err := e.Finalize(afterEnd.Add(13*time.Hour), judge, judge, nil); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("err = %v, want ErrAlreadyFinalized", err)
	}
	if _, err := e.Withdraw("a", 1, 1); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("withdraw err = %v", err)
	}
	if _, err := e.Dispute(afterEnd, "a", 1, 1); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("dispute err = %v", err)
	}
}

func TestFinalizeAtRoundCapIgnoresWindow(t *testing.T) {
	p := DefaultPolicy()
	p.MaxRounds = 1
	e := newEngine(t, p)
	change, err := e.Resolute(afterEnd, marketEnd, "a", 1, 10_000)
	mustStake(t, change, err, 0)
	if _, err := e.Dispute(afterEnd, "b", 0, 20_000); !errors.Is(err, domain.ErrDisputeCapReached) {
		t.Fatalf("err = %v, want ErrDisputeCapReached", err)
	}
	if _, err := e.Finalize(afterEnd, "anyone", judge, nil); err != nil {
		t.Fatalf("finalize at cap: %v", err)
	}
}

func TestFinalizeDisputedNeedsJudge(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	resoluteAndDispute(t, e)
	now := afterEnd.Add(2 * time.Hour)
	if _, err := e.Finalize(now, "a", judge, outcome(1)); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if _, err := e.Finalize(now, judge, judge, nil); !errors.Is(err, domain.ErrOutcomeNotFound) {
		t.Fatalf("err = %v, want ErrOutcomeNotFound", err)
	}
	winner, err := e.Finalize(now, judge, judge, outcome(int(domain.InvalidOutcome)))
	if err != nil {
		t.Fatal(err)
	}
	if winner != domain.InvalidOutcome || e.State() != domain.MarketStatusFinalized {
		t.Fatalf("winner=%d state=%s", winner, e.State())
	}
}

func TestWithdraw(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	change, err := e.Resolute(afterEnd, marketEnd, "d", 1, 3_000)
	mustStake(t, change, err, 0)
	change, err = e.Resolute(afterEnd, marketEnd, "a", 0, 10_000)
	mustStake(t, change, err, 0)

	if _, err := e.Withdraw("a", 1, 0); !errors.Is(err, domain.ErrStakeLocked) {
		t.Fatalf("err = %v, want ErrStakeLocked", err)
	}
	if _, err := e.Withdraw("d", 9, 1); !errors.Is(err, domain.ErrRoundNotFound) {
		t.Fatalf("err = %v, want ErrRoundNotFound", err)
	}
	got, err := e.Withdraw("d", 1, 1)
	if err != nil || got != 3_000 {
		t.Fatalf("withdraw = %d, %v; want 3000", got, err)
	}
	if got, _ := e.Withdraw("d", 1, 1); got != 0 {
		t.Fatalf("second withdraw = %d, want 0", got)
	}
	w := e.Windows()[0]
	if w.Staked[1] != 0 || w.Round != 1 {
		t.Fatalf("window after withdraw = %+v", w)
	}
}

func TestEarningsSplitForfeitedPool(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	change, err := e.Resolute(afterEnd, marketEnd, "a", 0, 10_000)
	mustStake(t, change, err, 0)
	now := afterEnd.Add(time.Hour)
	change, err = e.Dispute(now, "c", 2, 5_000)
	mustStake(t, change, err, 0)
	change, err = e.Dispute(now, "b1", 1, 15_000)
	mustStake(t, change, err, 0)
	change, err = e.Dispute(now, "b2", 1, 5_000)
	mustStake(t, change, err, 0)
	if _, err := e.Finalize(now, judge, judge, outcome(1)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		account string
		want    Earnings
	}{
		{"a", Earnings{}},
		{"b1", Earnings{Principal: 15_000, Reward: 7_500}},
		{"b2", Earnings{Principal: 5_000, Reward: 2_500}},
		{"c", Earnings{Refund: 5_000}},
		{judge, Earnings{}},
	}
	var total int64
	for _, tt := range tests {
		got := e.Earnings(tt.account, judge)
		if got != tt.want {
			t.Errorf("%s earnings = %+v, want %+v", tt.account, got, tt.want)
		}
		total += got.Total()
	}
	if total != 35_000 {
		t.Fatalf("paid out %d of 35000 staked", total)
	}

	e.ClearParticipation("b1", judge)
	if got := e.Earnings("b1", judge); got.Total() != 0 {
		t.Fatalf("cleared b1 still earns %+v", got)
	}
	if got := e.Earnings("b2", judge); got.Reward != 2_500 {
		t.Fatalf("b2 reward changed to %d after b1 claimed", got.Reward)
	}
}

func TestEarningsOrphanPoolGoesToJudge(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	resoluteAndDispute(t, e)
	if _, err := e.Finalize(afterEnd.Add(2*time.Hour), judge, judge, outcome(2)); err != nil {
		t.Fatal(err)
	}
	if got := e.Earnings(judge, judge); got.Reward != 30_000 {
		t.Fatalf("judge reward = %d, want 30000", got.Reward)
	}
	e.ClearParticipation(judge, judge)
	if got := e.Earnings(judge, judge); got.Total() != 0 {
		t.Fatalf("judge paid twice: %+v", got)
	}
}

func TestCloneAndSnapshot(t *testing.T) {
	e := newEngine(t, DefaultPolicy())
	change, err := e.Resolute(afterEnd, marketEnd, "a", domain.InvalidOutcome, 10_000)
	mustStake(t, change, err, 0)

	c := e.Clone()
	if _, err := c.Dispute(afterEnd, "b", 1, 20_000); err != nil {
		t.Fatal(err)
	}
	if e.Disputed() || len(e.Windows()) != 1 {
		t.Fatal("clone mutation leaked into original")
	}

	raw, err := json.Marshal(c.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatal(err)
	}
	r, err := Restore(snap)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Disputed() || r.Windows()[0].Outcome != domain.InvalidOutcome || r.Windows()[0].StakeOf("a", domain.InvalidOutcome) != 10_000 {
		t.Fatalf("restored engine = %+v", r.Snapshot())
	}
}
