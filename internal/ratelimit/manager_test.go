package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// failingStore simulates an unreachable redis backend.
type failingStore struct {
	calls  int
	resets int
}

func (f *failingStore) CheckAndRecord(context.Context, uint64, Rule) (Result, error) {
	f.calls++
	return Result{}, fmt.Errorf("%w: connection refused", ErrStoreUnavailable)
}

func (f *failingStore) Status(context.Context, uint64, []Rule) ([]OperationStatus, error) {
	f.calls++
	return nil, fmt.Errorf("%w: connection refused", ErrStoreUnavailable)
}

func (f *failingStore) Reset(context.Context, uint64, []Rule) error {
	f.resets++
	return fmt.Errorf("%w: connection refused", ErrStoreUnavailable)
}

func (f *failingStore) Sweep(context.Context, time.Duration) (int64, error) {
	return 0, fmt.Errorf("%w: connection refused", ErrStoreUnavailable)
}

func TestManagerFallsBackWhenPrimaryFails(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	primary := &failingStore{}
	fallback := NewMemoryStore(fixedClock(now))
	manager := NewManager(primary, fallback, fixedClock(now))
	rule := Rule{OperationType: "upload", MaxRequests: 5, WindowSeconds: 3600}
	ctx := context.Background()

	result, errCheck := manager.CheckAndRecord(ctx, 1, rule)
	if errCheck != nil {
		t.Fatalf("expected fallback success, got %v", errCheck)
	}
	if !result.Allowed || result.Current != 1 {
		t.Fatalf("expected fallback counter at 1, got %+v", result)
	}
	if primary.calls != 1 {
		t.Fatalf("expected one primary attempt, got %d", primary.calls)
	}

	// Breaker is open: the primary is skipped until it expires.
	if _, errCheck = manager.CheckAndRecord(ctx, 1, rule); errCheck != nil {
		t.Fatalf("second check: %v", errCheck)
	}
	if primary.calls != 1 {
		t.Fatalf("expected breaker to skip primary, got %d calls", primary.calls)
	}
}

func TestManagerRetriesPrimaryAfterBreakerExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	primary := &failingStore{}
	fallback := NewMemoryStore(func() time.Time { return now })
	manager := NewManager(primary, fallback, func() time.Time { return now })
	rule := Rule{OperationType: "upload", MaxRequests: 5, WindowSeconds: 3600}
	ctx := context.Background()

	if _, errCheck := manager.CheckAndRecord(ctx, 1, rule); errCheck != nil {
		t.Fatalf("first check: %v", errCheck)
	}
	now = now.Add(redisBreakerDuration + time.Second)
	if _, errCheck := manager.CheckAndRecord(ctx, 1, rule); errCheck != nil {
		t.Fatalf("check after breaker expiry: %v", errCheck)
	}
	if primary.calls != 2 {
		t.Fatalf("expected primary retried after breaker expiry, got %d calls", primary.calls)
	}
}

func TestManagerWithoutPrimaryUsesFallback(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fallback := NewMemoryStore(fixedClock(now))
	manager := NewManager(nil, fallback, fixedClock(now))
	rule := Rule{OperationType: "upload", MaxRequests: 1, WindowSeconds: 3600}
	ctx := context.Background()

	if result, errCheck := manager.CheckAndRecord(ctx, 1, rule); errCheck != nil || !result.Allowed {
		t.Fatalf("expected fallback allowed, got result=%+v err=%v", result, errCheck)
	}
}

func TestManagerResetClearsBothBackends(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	primary := &failingStore{}
	fallback := NewMemoryStore(fixedClock(now))
	manager := NewManager(primary, fallback, fixedClock(now))
	rule := Rule{OperationType: "upload", MaxRequests: 1, WindowSeconds: 3600}
	ctx := context.Background()

	if _, errCheck := manager.CheckAndRecord(ctx, 1, rule); errCheck != nil {
		t.Fatalf("check: %v", errCheck)
	}
	if errReset := manager.Reset(ctx, 1, []Rule{rule}); errReset != nil {
		t.Fatalf("reset: %v", errReset)
	}
	if primary.resets != 1 {
		t.Fatalf("expected primary reset attempted, got %d", primary.resets)
	}
	if result, _ := fallback.CheckAndRecord(ctx, 1, rule); !result.Allowed {
		t.Fatalf("expected fallback cleared by reset")
	}
}
