// Package clock provides the Clock implementations injected into the
// settlement service.
package clock

import (
	"sync"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
)

// System reads the wall clock in UTC.
type System struct{}

// Now returns the current time.
func (System) Now() time.Time { return time.Now().UTC() }

// Manual is a clock that only moves when told to. Used by tests and by
// journal replay.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a clock stopped at t.
func NewManual(t time.Time) *Manual { return &Manual{now: t} }

// Now returns the clock's time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Handoff reads a manual clock until Release, then the wall clock.
// Startup replay drives the manual half.
type Handoff struct {
	mu       sync.RWMutex
	manual   *Manual
	released bool
}

// NewHandoff returns a Handoff whose manual half starts at the zero time.
func NewHandoff() *Handoff { return &Handoff{manual: NewManual(time.Time{})} }

// Manual exposes the clock replay should move.
func (h *Handoff) Manual() *Manual { return h.manual }

// Release switches to the wall clock for good.
func (h *Handoff) Release() {
	h.mu.Lock()
	h.released = true
	h.mu.Unlock()
}

// Now returns the manual time before Release and UTC wall time after.
func (h *Handoff) Now() time.Time {
	h.mu.RLock()
	released := h.released
	h.mu.RUnlock()
	if released {
		return System{}.Now()
	}
	return h.manual.Now()
}

var (
	_ domain.Clock = System{}
	_ domain.Clock = (*Manual)(nil)
	_ domain.Clock = (*Handoff)(nil)
)
