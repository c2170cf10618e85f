package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"portfolio-backend/pkg/kvstore"
)

// KVStore keeps each key's timestamps as a JSON array of unix milliseconds in
// a kvstore.Store. Pruned windows are written back on every check.
type KVStore struct {
	kv kvstore.Store
}

func NewKVStore(kv kvstore.Store) *KVStore {
	return &KVStore{kv: kv}
}

func (s *KVStore) Window(ctx context.Context, key string, cutoff time.Time) ([]time.Time, error) {
	stamps, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}

	kept := stamps[:0]
	for _, ms := range stamps {
		if ms > cutoff.UnixMilli() {
			kept = append(kept, ms)
		}
	}
	if err := s.save(ctx, key, kept); err != nil {
		return nil, err
	}

	times := make([]time.Time, len(kept))
	for i, ms := range kept {
		times[i] = time.UnixMilli(ms)
	}
	return times, nil
}

func (s *KVStore) Append(ctx context.Context, key string, at time.Time, _ time.Duration) error {
	stamps, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	return s.save(ctx, key, append(stamps, at.UnixMilli()))
}

// load treats a missing or unreadable value as an empty history.
func (s *KVStore) load(ctx context.Context, key string) ([]int64, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return []int64{}, nil
	}

	var stamps []int64
	if err := json.Unmarshal(raw, &stamps); err != nil {
		return []int64{}, nil
	}
	return stamps, nil
}

func (s *KVStore) save(ctx context.Context, key string, stamps []int64) error {
	if stamps == nil {
		stamps = []int64{}
	}
	raw, err := json.Marshal(stamps)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
