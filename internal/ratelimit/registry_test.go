package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegistryCachesRulesUntilTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	loads := 0
	provider := func(_ context.Context) ([]Rule, error) {
		loads++
		return []Rule{{OperationType: "upload", MaxRequests: 20, WindowSeconds: 3600}}, nil
	}
	registry := NewRegistry(provider, func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rule, ok, errLookup := registry.Lookup(ctx, "upload")
		if errLookup != nil {
			t.Fatalf("lookup: %v", errLookup)
		}
		if !ok || rule.MaxRequests != 20 {
			t.Fatalf("expected upload rule, got ok=%v rule=%+v", ok, rule)
		}
	}
	if loads != 1 {
		t.Fatalf("expected one provider load within TTL, got %d", loads)
	}

	now = now.Add(defaultRegistryTTL + time.Second)
	if _, _, errLookup := registry.Lookup(ctx, "upload"); errLookup != nil {
		t.Fatalf("lookup after ttl: %v", errLookup)
	}
	if loads != 2 {
		t.Fatalf("expected reload after TTL, got %d loads", loads)
	}
}

func TestRegistryInvalidateForcesReload(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	loads := 0
	provider := func(_ context.Context) ([]Rule, error) {
		loads++
		return []Rule{{OperationType: "upload", MaxRequests: loads, WindowSeconds: 3600}}, nil
	}
	registry := NewRegistry(provider, fixedClock(now))
	ctx := context.Background()

	rule, _, _ := registry.Lookup(ctx, "upload")
	if rule.MaxRequests != 1 {
		t.Fatalf("expected first snapshot, got %+v", rule)
	}
	registry.Invalidate()
	rule, _, _ = registry.Lookup(ctx, "upload")
	if rule.MaxRequests != 2 {
		t.Fatalf("expected reloaded snapshot, got %+v", rule)
	}
}

func TestRegistryKeepsSnapshotOnRefreshFailure(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fail := false
	provider := func(_ context.Context) ([]Rule, error) {
		if fail {
			return nil, errors.New("rules table unavailable")
		}
		return []Rule{{OperationType: "upload", MaxRequests: 20, WindowSeconds: 3600}}, nil
	}
	registry := NewRegistry(provider, func() time.Time { return now })
	ctx := context.Background()

	if _, ok, errLookup := registry.Lookup(ctx, "upload"); errLookup != nil || !ok {
		t.Fatalf("initial lookup: ok=%v err=%v", ok, errLookup)
	}

	fail = true
	now = now.Add(defaultRegistryTTL + time.Second)
	rule, ok, errLookup := registry.Lookup(ctx, "upload")
	if errLookup != nil {
		t.Fatalf("expected stale snapshot, got error %v", errLookup)
	}
	if !ok || rule.MaxRequests != 20 {
		t.Fatalf("expected stale rule served, got ok=%v rule=%+v", ok, rule)
	}
}

func TestRegistryFailsWithoutSnapshot(t *testing.T) {
	provider := func(_ context.Context) ([]Rule, error) {
		return nil, errors.New("rules table unavailable")
	}
	registry := NewRegistry(provider, nil)
	if _, _, errLookup := registry.Lookup(context.Background(), "upload"); errLookup == nil {
		t.Fatalf("expected error when no snapshot exists")
	}
}

func TestServiceFailsOpenForUnknownOperation(t *testing.T) {
	provider := func(_ context.Context) ([]Rule, error) {
		return []Rule{{OperationType: "upload", MaxRequests: 1, WindowSeconds: 3600}}, nil
	}
	store := NewMemoryStore(nil)
	service := NewService(NewRegistry(provider, nil), store)
	ctx := context.Background()

	result, errCheck := service.CheckAndRecord(ctx, 1, "profile_update")
	if errCheck != nil {
		t.Fatalf("check: %v", errCheck)
	}
	if !result.Allowed {
		t.Fatalf("unconfigured operation must be allowed")
	}
	if result.Remaining != -1 {
		t.Fatalf("unconfigured operation reports remaining=-1, got %d", result.Remaining)
	}
}

func TestServiceEnforcesConfiguredRule(t *testing.T) {
	provider := func(_ context.Context) ([]Rule, error) {
		return []Rule{{OperationType: "upload", MaxRequests: 1, WindowSeconds: 3600}}, nil
	}
	store := NewMemoryStore(nil)
	service := NewService(NewRegistry(provider, nil), store)
	ctx := context.Background()

	if result, _ := service.CheckAndRecord(ctx, 1, "upload"); !result.Allowed {
		t.Fatalf("expected first upload allowed")
	}
	if result, _ := service.CheckAndRecord(ctx, 1, "upload"); result.Allowed {
		t.Fatalf("expected second upload denied")
	}

	if errReset := service.Reset(ctx, 1); errReset != nil {
		t.Fatalf("reset: %v", errReset)
	}
	if result, _ := service.CheckAndRecord(ctx, 1, "upload"); !result.Allowed {
		t.Fatalf("expected allowed after reset")
	}
}
