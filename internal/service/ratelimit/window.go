package ratelimit

import (
	"sync"
	"time"
)

// Window is a fixed-window request budget. The counter resets once the
// window has elapsed since it was opened.
type Window struct {
	mu     sync.Mutex
	limit  int
	period time.Duration
	now    func() time.Time
	start  time.Time
	used   int
}

// NewWindow allows limit requests per period.
func NewWindow(limit int, period time.Duration) *Window {
	return &Window{limit: limit, period: period, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (w *Window) WithClock(now func() time.Time) *Window {
	w.now = now
	return w
}

// Allow consumes one unit of budget if any is left.
func (w *Window) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.start.IsZero() || now.Sub(w.start) >= w.period {
		w.start = now
		w.used = 0
	}
	if w.used >= w.limit {
		return false
	}
	w.used++
	return true
}

// Remaining reports the unused budget in the current window.
func (w *Window) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.start.IsZero() || w.now().Sub(w.start) >= w.period {
		return w.limit
	}
	return w.limit - w.used
}
