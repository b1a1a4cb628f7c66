// Package history keeps a bounded time window of temperature samples and
// derives a rate-of-change estimate from it.
package history

import (
	"sync"
	"time"
)

// StaleAfter is the age of the oldest retained sample beyond which the
// slope is reported as zero.
const StaleAfter = time.Hour

type sample struct {
	value float64
	at    time.Time
}

// History is a time-ordered buffer of samples bounded by a retention window.
//
// Thread Safety: all methods are safe for concurrent use.
type History struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	samples []sample

	average  float64
	last     float64
	oldest   float64
	oldestAt time.Time
}

// Option configures a History.
type Option func(*History)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(h *History) {
		if now != nil {
			h.now = now
		}
	}
}

// New creates an empty history retaining samples for window.
func New(window time.Duration, opts ...Option) *History {
	h := &History{
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.oldestAt = h.now()
	return h
}

// Window returns the retention window.
func (h *History) Window() time.Duration {
	return h.window
}

// Add appends a sample stamped with the current time. Samples older than
// the window are evicted first.
func (h *History) Add(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.add(v)
}

func (h *History) add(v float64) {
	now := h.now()
	cutoff := now.Add(-h.window)

	keep := 0
	for keep < len(h.samples) && h.samples[keep].at.Before(cutoff) {
		keep++
	}
	h.samples = append(h.samples[:0], h.samples[keep:]...)
	h.samples = append(h.samples, sample{value: v, at: now})
	h.last = v

	if len(h.samples) == 1 {
		// A lone sample reads as flat across the whole window.
		h.oldest = v
		h.oldestAt = cutoff
		h.average = v
		return
	}

	var sum float64
	for _, s := range h.samples {
		sum += s.value
	}
	h.average = sum / float64(len(h.samples))
	h.oldest = h.samples[0].value
	h.oldestAt = h.samples[0].at
}

// Slope returns the change across the window in units per hour, or 0 when
// the oldest retained sample is older than StaleAfter.
func (h *History) Slope() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.now().Sub(h.oldestAt) > StaleAfter {
		return 0
	}
	seconds := h.window.Seconds()
	if seconds <= 0 {
		return 0
	}
	return (h.last - h.oldest) * 3600 / seconds
}

// AverageValue returns the mean of the retained samples.
func (h *History) AverageValue() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.average
}

// Value returns the most recent sample value.
func (h *History) Value() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Len returns the number of retained samples.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}

// Reset drops all samples and re-seeds the history with the last value,
// leaving a flat trend.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	last := h.last
	h.samples = h.samples[:0]
	h.add(last)
}
