package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryKey struct {
	userID uint64
	op     string
}

type memoryEntry struct {
	windowStart int64
	windowEnd   int64
	count       int
}

// MemoryStore is a process-local fixed-window counter store. It is correct
// only for a single instance; production deployments use the database or
// redis store. Tests use it with an injected clock.
type MemoryStore struct {
	nowFn func() time.Time

	mu       sync.Mutex
	counters map[memoryKey]*memoryEntry
}

// NewMemoryStore constructs a MemoryStore. A nil nowFn defaults to time.Now.
func NewMemoryStore(nowFn func() time.Time) *MemoryStore {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &MemoryStore{
		nowFn:    nowFn,
		counters: make(map[memoryKey]*memoryEntry),
	}
}

// CheckAndRecord records one request unless the current window is full.
func (s *MemoryStore) CheckAndRecord(_ context.Context, userID uint64, rule Rule) (Result, error) {
	now := s.nowFn().Unix()
	start, end := windowBounds(now, rule.WindowSeconds)
	reset := time.Unix(end, 0).UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey{userID: userID, op: rule.OperationType}
	entry := s.counters[key]
	if entry == nil || entry.windowStart != start {
		entry = &memoryEntry{windowStart: start, windowEnd: end}
		s.counters[key] = entry
	}
	if entry.count >= rule.MaxRequests {
		return Result{Allowed: false, Remaining: 0, Current: entry.count, ResetAt: reset}, nil
	}
	entry.count++
	return Result{
		Allowed:   true,
		Remaining: rule.MaxRequests - entry.count,
		Current:   entry.count,
		ResetAt:   reset,
	}, nil
}

// Status reports current usage for the given rules.
func (s *MemoryStore) Status(_ context.Context, userID uint64, rules []Rule) ([]OperationStatus, error) {
	now := s.nowFn().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]OperationStatus, 0, len(rules))
	for _, rule := range rules {
		start, end := windowBounds(now, rule.WindowSeconds)
		current := 0
		if entry := s.counters[memoryKey{userID: userID, op: rule.OperationType}]; entry != nil && entry.windowStart == start {
			current = entry.count
		}
		remaining := rule.MaxRequests - current
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, OperationStatus{
			OperationType: rule.OperationType,
			CurrentCount:  current,
			MaxRequests:   rule.MaxRequests,
			Remaining:     remaining,
			ResetAt:       time.Unix(end, 0).UTC(),
		})
	}
	return out, nil
}

// Reset clears all counters for the user.
func (s *MemoryStore) Reset(_ context.Context, userID uint64, _ []Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.counters {
		if key.userID == userID {
			delete(s.counters, key)
		}
	}
	return nil
}

// Sweep drops entries whose window closed more than retention ago.
func (s *MemoryStore) Sweep(_ context.Context, retention time.Duration) (int64, error) {
	horizon := s.nowFn().Add(-retention).Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, entry := range s.counters {
		if entry.windowEnd < horizon {
			delete(s.counters, key)
			deleted++
		}
	}
	return deleted, nil
}
