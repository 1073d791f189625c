package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	dbutil "github.com/cloudez/cloudez/internal/db"
	"github.com/cloudez/cloudez/internal/models"
	"gorm.io/gorm"
)

// GormStore persists fixed-window counters in the usage_windows table. The
// store is safe for multiple application instances sharing one database: the
// check-and-increment runs as a single conditional upsert, and window bounds
// are derived from the database server's clock.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// dbNow reads the database server's clock as unix seconds.
func (s *GormStore) dbNow(ctx context.Context) (int64, error) {
	var now int64
	query := fmt.Sprintf("SELECT %s", dbutil.UnixNowExpr(s.db))
	if errNow := s.db.WithContext(ctx).Raw(query).Scan(&now).Error; errNow != nil {
		return 0, fmt.Errorf("%w: read clock: %v", ErrStoreUnavailable, errNow)
	}
	return now, nil
}

// CheckAndRecord records one request in the current window unless it is full.
// The increment is a single INSERT ... ON CONFLICT DO UPDATE ... WHERE
// statement, so two concurrent calls can never both pass a full window.
func (s *GormStore) CheckAndRecord(ctx context.Context, userID uint64, rule Rule) (Result, error) {
	if s == nil || s.db == nil {
		return Result{}, fmt.Errorf("%w: store not initialized", ErrStoreUnavailable)
	}
	now, errNow := s.dbNow(ctx)
	if errNow != nil {
		return Result{}, errNow
	}
	start, end := windowBounds(now, rule.WindowSeconds)
	reset := time.Unix(end, 0).UTC()
	lastRequestAt := time.Unix(now, 0).UTC()

	var count int
	res := s.db.WithContext(ctx).Raw(`
		INSERT INTO usage_windows (user_id, operation_type, window_start, window_end, request_count, last_request_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT (user_id, operation_type, window_start) DO UPDATE
		SET request_count = usage_windows.request_count + 1,
		    last_request_at = excluded.last_request_at
		WHERE usage_windows.request_count < ?
		RETURNING request_count
	`, userID, rule.OperationType, start, end, lastRequestAt, rule.MaxRequests).Scan(&count)
	if res.Error != nil {
		return Result{}, fmt.Errorf("%w: check and record: %v", ErrStoreUnavailable, res.Error)
	}

	if res.RowsAffected == 0 {
		// Window full: the conditional update matched no row, nothing was
		// incremented. Read the standing count for the report.
		current, errCurrent := s.currentCount(ctx, userID, rule.OperationType, start)
		if errCurrent != nil {
			return Result{}, errCurrent
		}
		return Result{Allowed: false, Remaining: 0, Current: current, ResetAt: reset}, nil
	}

	remaining := rule.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, Current: count, ResetAt: reset}, nil
}

func (s *GormStore) currentCount(ctx context.Context, userID uint64, op string, windowStart int64) (int, error) {
	var row models.UsageWindow
	errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND operation_type = ? AND window_start = ?", userID, op, windowStart).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: read count: %v", ErrStoreUnavailable, errFind)
	}
	return row.RequestCount, nil
}

// Status reports current usage for the given rules.
func (s *GormStore) Status(ctx context.Context, userID uint64, rules []Rule) ([]OperationStatus, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("%w: store not initialized", ErrStoreUnavailable)
	}
	now, errNow := s.dbNow(ctx)
	if errNow != nil {
		return nil, errNow
	}

	var rows []models.UsageWindow
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND window_end > ?", userID, now).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("%w: load windows: %v", ErrStoreUnavailable, errFind)
	}
	byOp := make(map[string]models.UsageWindow, len(rows))
	for _, row := range rows {
		byOp[row.OperationType] = row
	}

	out := make([]OperationStatus, 0, len(rules))
	for _, rule := range rules {
		start, end := windowBounds(now, rule.WindowSeconds)
		current := 0
		if row, ok := byOp[rule.OperationType]; ok && row.WindowStart == start {
			current = row.RequestCount
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
func (s *GormStore) Reset(ctx context.Context, userID uint64, _ []Rule) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("%w: store not initialized", ErrStoreUnavailable)
	}
	if errDelete := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.UsageWindow{}).Error; errDelete != nil {
		return fmt.Errorf("%w: reset: %v", ErrStoreUnavailable, errDelete)
	}
	return nil
}

// Sweep deletes windows whose end is more than retention in the past. The
// predicate is indexed on window_end, so live windows are never scanned or
// locked.
func (s *GormStore) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("%w: store not initialized", ErrStoreUnavailable)
	}
	now, errNow := s.dbNow(ctx)
	if errNow != nil {
		return 0, errNow
	}
	horizon := now - int64(retention/time.Second)
	res := s.db.WithContext(ctx).
		Where("window_end < ?", horizon).
		Delete(&models.UsageWindow{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: sweep: %v", ErrStoreUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}
