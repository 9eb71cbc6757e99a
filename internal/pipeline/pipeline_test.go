package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/settled/internal/clock"
)

func TestScheduleNext(t *testing.T) {
	from := time.Date(2025, 3, 14, 2, 59, 30, 0, time.UTC) // Friday
	cases := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2025, 3, 14, 3, 0, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2025, 3, 14, 3, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2025, 3, 14, 3, 0, 0, 0, time.UTC)},
		{"30 4-6 * * *", time.Date(2025, 3, 14, 4, 30, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"0 12 * * 1", time.Date(2025, 3, 17, 12, 0, 0, 0, time.UTC)},
		{"5,10 2 * * *", time.Date(2025, 3, 15, 2, 5, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		s, err := ParseSchedule(tc.expr)
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tc.expr, err)
		}
		got, err := s.Next(from)
		if err != nil {
			t.Fatalf("Next(%q): %v", tc.expr, err)
		}
		if !got.Equal(tc.want) {
			t.Errorf("Next(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestParseScheduleRejects(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "*/0 * * * *", "5-1 * * * *", "a * * * *"} {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q) succeeded", expr)
		}
	}
}

func TestScheduleNeverFires(t *testing.T) {
	s, err := ParseSchedule("0 0 31 2 *")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Next(time.Now()); err == nil {
		t.Fatal("Feb 31 should never fire")
	}
}

type fakeExporter struct {
	before time.Time
	n      int
	err    error
}

func (f *fakeExporter) ArchiveAudit(_ context.Context, before time.Time) (int, error) {
	f.before = before
	return f.n, f.err
}

func TestAuditJobRunOnce(t *testing.T) {
	now := time.Date(2025, 5, 10, 3, 0, 0, 0, time.UTC)
	exp := &fakeExporter{n: 42}
	job := NewAuditJob(exp, 48*time.Hour, clock.NewManual(now), slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := job.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 42 {
		t.Fatalf("exported %d, want 42", n)
	}
	if want := now.Add(-48 * time.Hour); !exp.before.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", exp.before, want)
	}

	exp.err = errors.New("bucket gone")
	if _, err := job.RunOnce(context.Background()); err == nil {
		t.Fatal("want error from failing exporter")
	}
}

func TestAuditJobStopsOnCancel(t *testing.T) {
	s, _ := ParseSchedule("0 3 * * *")
	job := NewAuditJob(&fakeExporter{}, time.Hour, clock.System{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Run(ctx, s) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
