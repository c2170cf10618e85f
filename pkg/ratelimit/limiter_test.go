package ratelimit_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"portfolio-backend/pkg/kvstore"
	"portfolio-backend/pkg/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func stores(t *testing.T) map[string]ratelimit.Store {
	sqlite, err := kvstore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "rl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]ratelimit.Store{
		"memory":    ratelimit.NewMemoryStore(),
		"kv-memory": ratelimit.NewKVStore(kvstore.NewMemory()),
		"kv-sqlite": ratelimit.NewKVStore(sqlite),
	}
}

func TestLimiter_SlidingWindow(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			l := ratelimit.New(store, ratelimit.Config{Max: 3, Window: time.Hour}, ratelimit.WithClock(clock.Now))

			for i := 0; i < 3; i++ {
				d, err := l.Check(ctx, "1.2.3.4")
				require.NoError(t, err)
				assert.True(t, d.Allowed, "attempt %d", i+1)
				require.NoError(t, l.Record(ctx, "1.2.3.4"))
				clock.Advance(time.Minute)
			}

			d, err := l.Check(ctx, "1.2.3.4")
			require.NoError(t, err)
			assert.False(t, d.Allowed)
			assert.Equal(t, 0, d.Remaining)
			assert.Equal(t, 3, d.Limit)

			other, err := l.Check(ctx, "5.6.7.8")
			require.NoError(t, err)
			assert.True(t, other.Allowed, "identities are independent")

			// First event expires one hour after it was recorded.
			clock.Advance(time.Hour - 3*time.Minute)
			d, err = l.Check(ctx, "1.2.3.4")
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.Equal(t, 1, d.Remaining)
		})
	}
}

func TestLimiter_CheckDoesNotRecord(t *testing.T) {
	ctx := context.Background()
	l := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{Max: 1, Window: time.Minute})

	for i := 0; i < 5; i++ {
		d, err := l.Check(ctx, "client")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

func TestLimiter_ResetAt(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	start := clock.Now()
	l := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{Max: 2, Window: time.Hour}, ratelimit.WithClock(clock.Now))

	require.NoError(t, l.Record(ctx, "k"))
	clock.Advance(10 * time.Minute)
	require.NoError(t, l.Record(ctx, "k"))
	clock.Advance(10 * time.Minute)
	require.NoError(t, l.Record(ctx, "k"))

	d, err := l.Check(ctx, "k")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	// Three events, max two: the second-oldest must expire first.
	assert.Equal(t, start.Add(70*time.Minute), d.ResetAt)
	assert.Equal(t, 50*time.Minute, d.RetryAfter(clock.Now()))
}

func TestLimiter_AcquireSerialisesCheckThenRecord(t *testing.T) {
	ctx := context.Background()
	l := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{Max: 3, Window: time.Hour})

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "1.2.3.4")
			if err != nil {
				return
			}
			defer release()

			d, err := l.Check(ctx, "1.2.3.4")
			if err != nil || !d.Allowed {
				return
			}
			time.Sleep(5 * time.Millisecond)
			if l.Record(ctx, "1.2.3.4") == nil {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), allowed.Load())
}

func TestLimiter_AcquireIsPerIdentity(t *testing.T) {
	l := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{Max: 3, Window: time.Hour})

	release, err := l.Acquire(context.Background(), "a")
	require.NoError(t, err)

	// A different identity is not blocked.
	other, err := l.Acquire(context.Background(), "b")
	require.NoError(t, err)
	other()

	// The same identity waits until ctx gives up.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // second call is a no-op

	again, err := l.Acquire(context.Background(), "a")
	require.NoError(t, err)
	again()
}

func TestLimiter_CheckAndRecordIsAtomic(t *testing.T) {
	ctx := context.Background()
	l := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{Max: 10, Window: time.Minute})

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.CheckAndRecord(ctx, "burst")
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), allowed.Load())
}

func TestLimiter_NeverExceedsMaxInWindow(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		clock := newFakeClock()
		limit := rapid.IntRange(1, 5).Draw(t, "limit")
		window := time.Duration(rapid.IntRange(1, 60).Draw(t, "windowMinutes")) * time.Minute
		l := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{Max: limit, Window: window}, ratelimit.WithClock(clock.Now))

		var recorded []time.Time
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			clock.Advance(time.Duration(rapid.IntRange(0, 20).Draw(t, "advanceMinutes")) * time.Minute)
			now := clock.Now()

			inWindow := 0
			for _, r := range recorded {
				if now.Sub(r) < window {
					inWindow++
				}
			}

			d, err := l.CheckAndRecord(ctx, "id")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Allowed != (inWindow < limit) {
				t.Fatalf("step %d: allowed=%v with %d of %d in window", i, d.Allowed, inWindow, limit)
			}
			if d.Allowed {
				recorded = append(recorded, now)
			}
		}
	})
}

type failingStore struct{}

func (failingStore) Window(context.Context, string, time.Time) ([]time.Time, error) {
	return nil, errors.New("store down")
}

func (failingStore) Append(context.Context, string, time.Time, time.Duration) error {
	return errors.New("store down")
}

func TestLimiter_PropagatesStoreErrors(t *testing.T) {
	l := ratelimit.New(failingStore{}, ratelimit.Config{Max: 1, Window: time.Minute})

	_, err := l.Check(context.Background(), "x")
	assert.Error(t, err)
	assert.Error(t, l.Record(context.Background(), "x"))
}

func TestFallbackStore(t *testing.T) {
	ctx := context.Background()
	var failures []string
	store := ratelimit.NewFallbackStore(failingStore{}, ratelimit.NewMemoryStore(), func(op string, err error) {
		failures = append(failures, op)
	})
	l := ratelimit.New(store, ratelimit.Config{Max: 1, Window: time.Minute})

	d, err := l.CheckAndRecord(ctx, "x")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Check(ctx, "x")
	require.NoError(t, err)
	assert.False(t, d.Allowed, "secondary store keeps enforcing the limit")
	assert.Equal(t, []string{"window", "append", "window"}, failures)
}

func TestRedisStore_UnreachableFallsBack(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	var failed atomic.Int32
	store := ratelimit.NewFallbackStore(ratelimit.NewRedisStore(client), ratelimit.NewMemoryStore(), func(string, error) {
		failed.Add(1)
	})
	l := ratelimit.New(store, ratelimit.Config{Max: 2, Window: time.Minute})

	d, err := l.CheckAndRecord(context.Background(), "ip")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Positive(t, failed.Load())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	ctx := context.Background()
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(ctx).Err())

	prefix := "rl:test:" + time.Now().Format("150405.000000") + ":"
	clock := newFakeClock()
	l := ratelimit.New(ratelimit.NewRedisStore(client), ratelimit.Config{Max: 2, Window: time.Hour, KeyPrefix: prefix}, ratelimit.WithClock(clock.Now))
	t.Cleanup(func() { client.Del(context.Background(), prefix+"ip") })

	for i := 0; i < 2; i++ {
		d, err := l.CheckAndRecord(ctx, "ip")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		clock.Advance(time.Second)
	}

	d, err := l.Check(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	clock.Advance(time.Hour)
	d, err = l.Check(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
