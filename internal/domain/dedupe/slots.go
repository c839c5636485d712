package dedupe

import (
	"context"
	"sync"
	"time"
)

// Slots holds one pending job per key and the tightest max age requested
// for that key while the job waits. A request coalesced behind a pending job
// can only lower the bound the job runs with.
type Slots struct {
	mu     sync.Mutex
	keys   Deduper
	maxAge map[string]time.Duration
}

// NewSlots creates slots over keys.
func NewSlots(keys Deduper) *Slots {
	return &Slots{keys: keys, maxAge: make(map[string]time.Duration)}
}

// Claim records key with maxAge. It returns true when a job for key is
// already pending; maxAge then tightens that job's bound.
func (s *Slots) Claim(ctx context.Context, key string, maxAge time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys.SeenAndRecord(ctx, key) {
		if cur, ok := s.maxAge[key]; !ok || maxAge < cur {
			s.maxAge[key] = maxAge
		}
		return true
	}
	s.maxAge[key] = maxAge
	return false
}

// Release frees key and returns the max age the job should run with: the
// smaller of maxAge and anything claimed while it waited.
func (s *Slots) Release(ctx context.Context, key string, maxAge time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.maxAge[key]; ok && cur < maxAge {
		maxAge = cur
	}
	delete(s.maxAge, key)
	s.keys.Unrecord(ctx, key)
	return maxAge
}

// Drop frees key for a job that was never queued.
func (s *Slots) Drop(ctx context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.maxAge, key)
	s.keys.Unrecord(ctx, key)
}

// Size returns the number of pending keys.
func (s *Slots) Size() int64 {
	return s.keys.Size()
}
