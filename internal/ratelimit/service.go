package ratelimit

import (
	"context"
	"time"
)

// Counters is what the Service requires from a backend; both Store
// implementations and the Manager satisfy it.
type Counters interface {
	CheckAndRecord(ctx context.Context, userID uint64, rule Rule) (Result, error)
	Status(ctx context.Context, userID uint64, rules []Rule) ([]OperationStatus, error)
	Reset(ctx context.Context, userID uint64, rules []Rule) error
	Sweep(ctx context.Context, retention time.Duration) (int64, error)
}

// Service binds the rule registry to a counter backend and exposes the
// rate-limiting operations used by middleware and the admin API.
type Service struct {
	registry *Registry
	counters Counters
}

// NewService constructs a Service.
func NewService(registry *Registry, counters Counters) *Service {
	return &Service{registry: registry, counters: counters}
}

// CheckAndRecord decides whether the operation may proceed for the user and,
// if so, records it. Operation types with no configured rule fail open: the
// call is allowed and nothing is recorded. Errors are infrastructure
// failures, never denials.
func (s *Service) CheckAndRecord(ctx context.Context, userID uint64, operationType string) (Result, error) {
	rule, ok, errLookup := s.registry.Lookup(ctx, operationType)
	if errLookup != nil {
		return Result{}, errLookup
	}
	if !ok {
		return Result{Allowed: true, Remaining: -1}, nil
	}
	return s.counters.CheckAndRecord(ctx, userID, rule)
}

// Status reports the user's usage for every configured operation type.
func (s *Service) Status(ctx context.Context, userID uint64) ([]OperationStatus, error) {
	rules, errRules := s.registry.All(ctx)
	if errRules != nil {
		return nil, errRules
	}
	return s.counters.Status(ctx, userID, rules)
}

// Reset clears all of the user's counters. Administrative only; never exposed
// to the user themselves.
func (s *Service) Reset(ctx context.Context, userID uint64) error {
	rules, errRules := s.registry.All(ctx)
	if errRules != nil {
		return errRules
	}
	return s.counters.Reset(ctx, userID, rules)
}

// Cleanup deletes counters whose window closed more than retention ago.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return s.counters.Sweep(ctx, retention)
}

// InvalidateRules drops the cached rule snapshot after an admin change.
func (s *Service) InvalidateRules() {
	s.registry.Invalidate()
}
