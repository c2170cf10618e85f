package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps timestamps in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]time.Time)}
}

func (s *MemoryStore) Window(_ context.Context, key string, cutoff time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := prune(s.events[key], cutoff)
	if len(kept) == 0 {
		delete(s.events, key)
		return nil, nil
	}
	s.events[key] = kept
	return append([]time.Time(nil), kept...), nil
}

func (s *MemoryStore) Append(_ context.Context, key string, at time.Time, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[key] = append(s.events[key], at)
	return nil
}

// prune returns the timestamps strictly after cutoff, reusing the backing
// array.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
