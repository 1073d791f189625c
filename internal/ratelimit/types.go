package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrStoreUnavailable indicates the counter store could not make a decision.
// Callers must treat it as an infrastructure failure, never as a denial.
var ErrStoreUnavailable = errors.New("rate limit: store unavailable")

// Rule is the request budget for one operation type.
type Rule struct {
	OperationType string
	MaxRequests   int
	WindowSeconds int
}

// Validate rejects rules that would never admit a request or have no window.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.OperationType) == "" {
		return fmt.Errorf("rate limit rule: empty operation type")
	}
	if r.MaxRequests <= 0 {
		return fmt.Errorf("rate limit rule %q: max requests must be positive, got %d", r.OperationType, r.MaxRequests)
	}
	if r.WindowSeconds <= 0 {
		return fmt.Errorf("rate limit rule %q: window seconds must be positive, got %d", r.OperationType, r.WindowSeconds)
	}
	return nil
}

// Window returns the rule's window length.
func (r Rule) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Result describes the outcome of a check-and-record call.
type Result struct {
	Allowed   bool
	Remaining int
	Current   int
	ResetAt   time.Time
}

// OperationStatus is a read-only usage report for one operation type.
type OperationStatus struct {
	OperationType string    `json:"operation_type"`
	CurrentCount  int       `json:"current_count"`
	MaxRequests   int       `json:"max_requests"`
	Remaining     int       `json:"remaining"`
	ResetAt       time.Time `json:"reset_at"`
}

// Store is a shared fixed-window counter backend. Implementations must make
// CheckAndRecord atomic with respect to concurrent calls for the same
// (user, operation) pair, and must align windows on their own clock so that
// every application instance agrees on window boundaries.
type Store interface {
	// CheckAndRecord records one request in the rule's current window unless
	// the window is already full. A full window is reported via
	// Result.Allowed=false without incrementing; failures to decide are
	// reported as errors wrapping ErrStoreUnavailable.
	CheckAndRecord(ctx context.Context, userID uint64, rule Rule) (Result, error)

	// Status reports current usage for the given rules without mutating.
	Status(ctx context.Context, userID uint64, rules []Rule) ([]OperationStatus, error)

	// Reset clears all counters for the user.
	Reset(ctx context.Context, userID uint64, rules []Rule) error

	// Sweep deletes counters whose window closed more than retention ago and
	// returns the number of rows removed. Safe to run alongside live checks.
	Sweep(ctx context.Context, retention time.Duration) (int64, error)
}

// windowBounds returns the fixed-window bounds containing the unix second now.
func windowBounds(now int64, windowSeconds int) (start, end int64) {
	w := int64(windowSeconds)
	start = now - now%w
	return start, start + w
}
