package ratelimit

import (
	"errors"
	"time"
)

var (
	ErrInvalidLimit  = errors.New("rate limit must be at least 1 operation")
	ErrInvalidWindow = errors.New("rate limit window must be positive")
)

// SlidingWindow answers whether an operation would exceed a rolling
// "at most maxOperations per window" bound. Each call records the attempt,
// allowed or not, so the caller must invoke CheckAndRecord exactly once per
// attempted operation.
//
// Not safe for concurrent use; each limited entity (typically one websocket
// connection) owns its own instance.
type SlidingWindow struct {
	max    int
	window time.Duration
	now    func() time.Time

	// Ring buffer of the last max operation timestamps, oldest at head.
	history []time.Time
	head    int
	count   int
}

// New creates a limiter allowing maxOperations per rolling window
func New(maxOperations int, window time.Duration) (*SlidingWindow, error) {
	return NewWithClock(maxOperations, window, time.Now)
}

// NewWithClock creates a limiter with an injected time source
func NewWithClock(maxOperations int, window time.Duration, now func() time.Time) (*SlidingWindow, error) {
	if maxOperations < 1 {
		return nil, ErrInvalidLimit
	}
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	return &SlidingWindow{
		max:     maxOperations,
		window:  window,
		now:     now,
		history: make([]time.Time, maxOperations),
	}, nil
}

// CheckAndRecord records one attempted operation and reports whether it is
// rate limited. It returns true when the operation, together with the last
// maxOperations-1 recorded ones, falls inside a single window.
func (l *SlidingWindow) CheckAndRecord() bool {
	now := l.now()

	if l.count < l.max {
		// Window not yet full, always allowed.
		tail := (l.head + l.count) % l.max
		l.history[tail] = now
		l.count++
		return false
	}

	// Full: evict the oldest timestamp and record the new one in its place.
	oldest := l.history[l.head]
	l.history[l.head] = now
	l.head = (l.head + 1) % l.max

	return now.Sub(oldest) < l.window
}

// Len reports how many operations are currently recorded
func (l *SlidingWindow) Len() int {
	return l.count
}
