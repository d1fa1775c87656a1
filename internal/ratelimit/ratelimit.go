// Package ratelimit implements a fixed-window per-caller request counter.
// The window resets lazily: a caller's record rolls forward only on the next
// request after the window has elapsed, never on a timer.
package ratelimit

import (
	"sync"
	"time"
)

// record tracks one caller's count within the current window.
type record struct {
	count       int
	windowStart time.Time
}

// Store owns the per-caller records. Entries are never evicted, so distinct
// callers accumulate for the lifetime of the process; deployments must size
// for that or add eviction externally.
type Store struct {
	mu      sync.Mutex
	records map[string]*record
}

// NewStore creates an empty store. Each Limiter owns exactly one store;
// tests construct an isolated store per case.
func NewStore() *Store {
	return &Store{records: make(map[string]*record)}
}

// Len reports the number of tracked callers.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed bool
	// Count is the caller's request count within the current window,
	// including this request.
	Count int
	// RetryAfter is the time remaining until the window expires. Only
	// meaningful when the request was denied.
	RetryAfter time.Duration
	// WindowReset reports that this request rolled the caller's window
	// forward.
	WindowReset bool
}

// Limiter applies a fixed-window limit keyed by caller id.
type Limiter struct {
	store  *Store
	limit  int
	window time.Duration
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter allowing limit requests per caller per window,
// backed by the given store.
func New(store *Store, limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records one request for callerID and decides whether it is within
// the limit. Exactly limit requests succeed per window; the limit+1'th is
// denied. The read-modify-write on the caller's record is atomic with
// respect to concurrent requests from the same caller.
func (l *Limiter) Check(callerID string) Decision {
	now := l.now()

	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	rec, ok := l.store.records[callerID]
	if !ok {
		rec = &record{windowStart: now}
		l.store.records[callerID] = rec
	}

	var reset bool
	if now.Sub(rec.windowStart) > l.window {
		rec.count = 0
		rec.windowStart = now
		reset = true
	}

	rec.count++

	d := Decision{
		Allowed:     rec.count <= l.limit,
		Count:       rec.count,
		WindowReset: reset,
	}
	if !d.Allowed {
		d.RetryAfter = l.window - now.Sub(rec.windowStart)
	}
	return d
}

// Limit returns the configured per-window request limit.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the configured window duration.
func (l *Limiter) Window() time.Duration { return l.window }
