package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// RedisStore keeps each key's timestamps in a sorted set scored by unix
// milliseconds, so several server instances share one window.
type RedisStore struct {
	client goredis.UniversalClient
}

func NewRedisStore(client goredis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Window(ctx context.Context, key string, cutoff time.Time) ([]time.Time, error) {
	var members *goredis.ZSliceCmd

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff.UnixMilli(), 10))
		members = pipe.ZRangeWithScores(ctx, key, 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis window %s: %w", key, err)
	}

	zs := members.Val()
	times := make([]time.Time, 0, len(zs))
	for _, z := range zs {
		times = append(times, time.UnixMilli(int64(z.Score)))
	}
	return times, nil
}

func (s *RedisStore) Append(ctx context.Context, key string, at time.Time, ttl time.Duration) error {
	ms := at.UnixMilli()
	member := strconv.FormatInt(ms, 10) + "-" + uuid.NewString()

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, key, goredis.Z{Score: float64(ms), Member: member})
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append %s: %w", key, err)
	}
	return nil
}

// FallbackStore uses primary and switches to secondary for any call the
// primary fails. onError, when set, is told about every primary failure.
type FallbackStore struct {
	primary   Store
	secondary Store
	onError   func(op string, err error)
}

func NewFallbackStore(primary, secondary Store, onError func(op string, err error)) *FallbackStore {
	return &FallbackStore{primary: primary, secondary: secondary, onError: onError}
}

func (s *FallbackStore) Window(ctx context.Context, key string, cutoff time.Time) ([]time.Time, error) {
	times, err := s.primary.Window(ctx, key, cutoff)
	if err == nil {
		return times, nil
	}
	s.report("window", err)
	return s.secondary.Window(ctx, key, cutoff)
}

func (s *FallbackStore) Append(ctx context.Context, key string, at time.Time, ttl time.Duration) error {
	err := s.primary.Append(ctx, key, at, ttl)
	if err == nil {
		return nil
	}
	s.report("append", err)
	return s.secondary.Append(ctx, key, at, ttl)
}

func (s *FallbackStore) report(op string, err error) {
	if s.onError != nil {
		s.onError(op, err)
	}
}
