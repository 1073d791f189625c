package ratelimit

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	dbutil "github.com/cloudez/cloudez/internal/db"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := dbutil.Open(filepath.Join(t.TempDir(), "ratelimit-test.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := dbutil.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestGormStoreCheckAndRecord(t *testing.T) {
	store := NewGormStore(openTestDB(t))
	rule := Rule{OperationType: "upload", MaxRequests: 3, WindowSeconds: 3600}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, errCheck := store.CheckAndRecord(ctx, 1, rule)
		if errCheck != nil {
			t.Fatalf("call %d: %v", i+1, errCheck)
		}
		if !result.Allowed {
			t.Fatalf("call %d: expected allowed", i+1)
		}
		if result.Current != i+1 {
			t.Fatalf("call %d: expected current=%d, got %d", i+1, i+1, result.Current)
		}
	}

	result, errCheck := store.CheckAndRecord(ctx, 1, rule)
	if errCheck != nil {
		t.Fatalf("denied call: %v", errCheck)
	}
	if result.Allowed {
		t.Fatalf("expected denial after limit")
	}
	if result.Current != 3 {
		t.Fatalf("denial must not increment: expected current=3, got %d", result.Current)
	}
	if result.ResetAt.IsZero() {
		t.Fatalf("denial must carry reset time")
	}
}

func TestGormStoreIsolatesUsers(t *testing.T) {
	store := NewGormStore(openTestDB(t))
	rule := Rule{OperationType: "share", MaxRequests: 1, WindowSeconds: 3600}
	ctx := context.Background()

	if result, _ := store.CheckAndRecord(ctx, 1, rule); !result.Allowed {
		t.Fatalf("user 1 should be allowed")
	}
	if result, _ := store.CheckAndRecord(ctx, 1, rule); result.Allowed {
		t.Fatalf("user 1 second call should be denied")
	}
	if result, _ := store.CheckAndRecord(ctx, 2, rule); !result.Allowed {
		t.Fatalf("user 2 must have an independent counter")
	}
}

func TestGormStoreConcurrentChecksNeverExceedLimit(t *testing.T) {
	store := NewGormStore(openTestDB(t))
	rule := Rule{OperationType: "upload", MaxRequests: 3, WindowSeconds: 3600}
	ctx := context.Background()

	const callers = 10
	outcomes := make(chan bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, errCheck := store.CheckAndRecord(ctx, 1, rule)
			if errCheck != nil {
				t.Errorf("concurrent check: %v", errCheck)
				outcomes <- false
				return
			}
			outcomes <- result.Allowed
		}()
	}
	wg.Wait()
	close(outcomes)

	allowed := 0
	for ok := range outcomes {
		if ok {
			allowed++
		}
	}
	if allowed != rule.MaxRequests {
		t.Fatalf("expected exactly %d allowed, got %d", rule.MaxRequests, allowed)
	}

	// The standing count equals the limit, never more.
	statuses, errStatus := store.Status(ctx, 1, []Rule{rule})
	if errStatus != nil {
		t.Fatalf("status: %v", errStatus)
	}
	if len(statuses) != 1 || statuses[0].CurrentCount != rule.MaxRequests {
		t.Fatalf("expected current=%d, got %+v", rule.MaxRequests, statuses)
	}
}

func TestGormStoreStatus(t *testing.T) {
	store := NewGormStore(openTestDB(t))
	upload := Rule{OperationType: "upload", MaxRequests: 5, WindowSeconds: 3600}
	message := Rule{OperationType: "message", MaxRequests: 60, WindowSeconds: 60}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, errCheck := store.CheckAndRecord(ctx, 1, upload); errCheck != nil {
			t.Fatalf("record upload: %v", errCheck)
		}
	}

	statuses, errStatus := store.Status(ctx, 1, []Rule{upload, message})
	if errStatus != nil {
		t.Fatalf("status: %v", errStatus)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	byOp := make(map[string]OperationStatus, len(statuses))
	for _, s := range statuses {
		byOp[s.OperationType] = s
	}
	if got := byOp["upload"]; got.CurrentCount != 2 || got.Remaining != 3 {
		t.Fatalf("upload status: expected current=2 remaining=3, got %+v", got)
	}
	if got := byOp["message"]; got.CurrentCount != 0 || got.Remaining != 60 {
		t.Fatalf("message status: expected empty window, got %+v", got)
	}
}

func TestGormStoreReset(t *testing.T) {
	store := NewGormStore(openTestDB(t))
	rule := Rule{OperationType: "upload", MaxRequests: 1, WindowSeconds: 3600}
	ctx := context.Background()

	if result, _ := store.CheckAndRecord(ctx, 1, rule); !result.Allowed {
		t.Fatalf("expected first call allowed")
	}
	if result, _ := store.CheckAndRecord(ctx, 1, rule); result.Allowed {
		t.Fatalf("expected second call denied")
	}
	if errReset := store.Reset(ctx, 1, nil); errReset != nil {
		t.Fatalf("reset: %v", errReset)
	}
	if result, _ := store.CheckAndRecord(ctx, 1, rule); !result.Allowed {
		t.Fatalf("expected allowed after reset")
	}
}

func TestGormStoreSweep(t *testing.T) {
	conn := openTestDB(t)
	store := NewGormStore(conn)
	ctx := context.Background()

	// Seed an expired window directly; the store only writes current windows.
	if errExec := conn.Exec(`
		INSERT INTO usage_windows (user_id, operation_type, window_start, window_end, request_count, last_request_at)
		VALUES (1, 'upload', 0, 3600, 4, ?)
	`, time.Unix(3599, 0).UTC()).Error; errExec != nil {
		t.Fatalf("seed expired window: %v", errExec)
	}
	rule := Rule{OperationType: "upload", MaxRequests: 5, WindowSeconds: 3600}
	if _, errCheck := store.CheckAndRecord(ctx, 1, rule); errCheck != nil {
		t.Fatalf("record live window: %v", errCheck)
	}

	removed, errSweep := store.Sweep(ctx, time.Hour)
	if errSweep != nil {
		t.Fatalf("sweep: %v", errSweep)
	}
	if removed != 1 {
		t.Fatalf("expected 1 expired window removed, got %d", removed)
	}

	// The live window survives and keeps its count.
	result, errCheck := store.CheckAndRecord(ctx, 1, rule)
	if errCheck != nil {
		t.Fatalf("check after sweep: %v", errCheck)
	}
	if result.Current != 2 {
		t.Fatalf("expected live window count preserved, got %d", result.Current)
	}
}

func TestGormStoreNilConnection(t *testing.T) {
	var store *GormStore
	_, errCheck := store.CheckAndRecord(context.Background(), 1, Rule{OperationType: "upload", MaxRequests: 1, WindowSeconds: 1})
	if !errors.Is(errCheck, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", errCheck)
	}
}
