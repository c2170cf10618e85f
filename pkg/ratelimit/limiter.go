// Package ratelimit implements a sliding-window limiter over pluggable
// timestamp stores.
//
// A Limiter keeps, per identity, the times of recorded events. An identity is
// allowed while fewer than Max events fall inside the trailing Window. Checking
// never records; callers Record only once the guarded action succeeded, holding
// Acquire for the identity from Check until Record so parallel callers cannot
// all pass the same check.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store keeps event timestamps per key.
type Store interface {
	// Window drops the timestamps for key at or before cutoff and returns the
	// remaining ones, oldest first.
	Window(ctx context.Context, key string, cutoff time.Time) ([]time.Time, error)
	// Append records an event at the given time. ttl is how long the store
	// needs to keep it.
	Append(ctx context.Context, key string, at time.Time, ttl time.Duration) error
}

// Config holds limiter settings.
type Config struct {
	// Max events per window
	Max int
	// Window length
	Window time.Duration
	// Prepended to every identity to form the store key
	KeyPrefix string
}

// Decision is the result of a check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the next slot frees up
	ResetAt time.Time
}

// RetryAfter returns how long until ResetAt, rounded up to whole seconds and
// never less than one second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait.Round(time.Second)
}

// Limiter is safe for concurrent use.
type Limiter struct {
	store  Store
	max    int
	window time.Duration
	prefix string
	now    func() time.Time

	mu sync.Mutex

	locksMu sync.Mutex
	locks   map[string]*identityLock
}

// identityLock is a one-slot semaphore shared by everyone waiting on an
// identity. refs counts holders and waiters so idle entries can be dropped.
type identityLock struct {
	sem  chan struct{}
	refs int
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter over store.
func New(store Store, cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		max:    cfg.Max,
		window: cfg.Window,
		prefix: cfg.KeyPrefix,
		now:    time.Now,
		locks:  make(map[string]*identityLock),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the configured maximum.
func (l *Limiter) Limit() int { return l.max }

// Window returns the configured window.
func (l *Limiter) Window() time.Duration { return l.window }

// Now returns the limiter's current time.
func (l *Limiter) Now() time.Time { return l.now() }

// Check prunes expired events for identity and reports whether another event
// is allowed. It does not record anything.
func (l *Limiter) Check(ctx context.Context, identity string) (Decision, error) {
	now := l.now()

	times, err := l.store.Window(ctx, l.key(identity), now.Add(-l.window))
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit window for %q: %w", identity, err)
	}
	return l.decide(times, now), nil
}

// Record appends an event for identity at the current time.
func (l *Limiter) Record(ctx context.Context, identity string) error {
	if err := l.store.Append(ctx, l.key(identity), l.now(), l.window); err != nil {
		return fmt.Errorf("rate limit record for %q: %w", identity, err)
	}
	return nil
}

// CheckAndRecord checks and, when allowed, records in one step. Calls on the
// same Limiter are serialised so concurrent callers cannot both take the last
// slot.
func (l *Limiter) CheckAndRecord(ctx context.Context, identity string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d, err := l.Check(ctx, identity)
	if err != nil || !d.Allowed {
		return d, err
	}
	if err := l.Record(ctx, identity); err != nil {
		return d, err
	}
	d.Remaining--
	return d, nil
}

// Acquire blocks until the caller holds identity exclusively or ctx is done.
// The returned release unlocks; extra calls are no-ops. Other identities are not
// affected. Exclusion is per process; instances sharing a Redis store still
// race with each other.
func (l *Limiter) Acquire(ctx context.Context, identity string) (func(), error) {
	l.locksMu.Lock()
	il, ok := l.locks[identity]
	if !ok {
		il = &identityLock{sem: make(chan struct{}, 1)}
		l.locks[identity] = il
	}
	il.refs++
	l.locksMu.Unlock()

	select {
	case il.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(identity, il)
		return nil, fmt.Errorf("rate limit lock for %q: %w", identity, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-il.sem
			l.unref(identity, il)
		})
	}, nil
}

func (l *Limiter) unref(identity string, il *identityLock) {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()

	il.refs--
	if il.refs == 0 {
		delete(l.locks, identity)
	}
}

func (l *Limiter) key(identity string) string {
	return l.prefix + identity
}

func (l *Limiter) decide(times []time.Time, now time.Time) Decision {
	count := len(times)

	d := Decision{
		Allowed:   count < l.max,
		Limit:     l.max,
		Remaining: l.max - count,
		ResetAt:   now.Add(l.window),
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}

	// The next slot opens when enough of the oldest events have expired to
	// bring the count below max.
	if count > 0 {
		idx := 0
		if count >= l.max && l.max > 0 {
			idx = count - l.max
		}
		d.ResetAt = times[idx].Add(l.window)
	}
	return d
}
