package clock

import (
	"testing"
	"time"
)

func TestManualAdvance(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(start)
	c.Advance(90 * time.Minute)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("Now = %v", got)
	}
	c.Set(start)
	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("after Set, Now = %v", got)
	}
}

func TestHandoffRelease(t *testing.T) {
	h := NewHandoff()
	past := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	h.Manual().Set(past)
	if got := h.Now(); !got.Equal(past) {
		t.Fatalf("before release Now = %v, want %v", got, past)
	}

	h.Release()
	if got := h.Now(); time.Since(got) > time.Minute || got.Location() != time.UTC {
		t.Fatalf("after release Now = %v, want wall clock in UTC", got)
	}
	h.Manual().Set(past)
	if h.Now().Equal(past) {
		t.Fatal("manual clock still drives a released handoff")
	}
}
