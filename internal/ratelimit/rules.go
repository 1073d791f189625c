package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudez/cloudez/internal/models"
	"gorm.io/gorm"
)

// RuleProvider loads the full set of configured rules.
type RuleProvider func(ctx context.Context) ([]Rule, error)

// LoadRulesFromDB returns a RuleProvider backed by the rate_limit_rules
// table. Invalid rows are a configuration error and fail the load.
func LoadRulesFromDB(db *gorm.DB) RuleProvider {
	return func(ctx context.Context) ([]Rule, error) {
		var rows []models.RateLimitRule
		if errFind := db.WithContext(ctx).Order("operation_type ASC").Find(&rows).Error; errFind != nil {
			return nil, fmt.Errorf("rate limit: load rules: %w", errFind)
		}
		rules := make([]Rule, 0, len(rows))
		for _, row := range rows {
			rule := Rule{
				OperationType: row.OperationType,
				MaxRequests:   row.MaxRequests,
				WindowSeconds: row.WindowSeconds,
			}
			if errValidate := rule.Validate(); errValidate != nil {
				return nil, errValidate
			}
			rules = append(rules, rule)
		}
		return rules, nil
	}
}

const defaultRegistryTTL = 30 * time.Second

// Registry caches the configured rules with a short TTL so per-request checks
// do not hit the rules table. Admin rule changes call Invalidate.
type Registry struct {
	provider RuleProvider
	nowFn    func() time.Time
	ttl      time.Duration

	mu       sync.Mutex
	rules    map[string]Rule
	ordered  []Rule
	loadedAt time.Time
}

// NewRegistry constructs a Registry. A nil nowFn defaults to time.Now.
func NewRegistry(provider RuleProvider, nowFn func() time.Time) *Registry {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Registry{
		provider: provider,
		nowFn:    nowFn,
		ttl:      defaultRegistryTTL,
	}
}

func (r *Registry) refreshLocked(ctx context.Context) error {
	now := r.nowFn()
	if r.rules != nil && now.Sub(r.loadedAt) < r.ttl {
		return nil
	}
	loaded, errLoad := r.provider(ctx)
	if errLoad != nil {
		// Keep serving the previous snapshot when a refresh fails.
		if r.rules != nil {
			return nil
		}
		return errLoad
	}
	byOp := make(map[string]Rule, len(loaded))
	for _, rule := range loaded {
		byOp[rule.OperationType] = rule
	}
	r.rules = byOp
	r.ordered = loaded
	r.loadedAt = now
	return nil
}

// Lookup returns the rule for an operation type, if configured.
func (r *Registry) Lookup(ctx context.Context, op string) (Rule, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if errRefresh := r.refreshLocked(ctx); errRefresh != nil {
		return Rule{}, false, errRefresh
	}
	rule, ok := r.rules[op]
	return rule, ok, nil
}

// All returns every configured rule.
func (r *Registry) All(ctx context.Context) ([]Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if errRefresh := r.refreshLocked(ctx); errRefresh != nil {
		return nil, errRefresh
	}
	out := make([]Rule, len(r.ordered))
	copy(out, r.ordered)
	return out, nil
}

// Invalidate drops the cached snapshot so the next lookup reloads.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = nil
	r.ordered = nil
	r.loadedAt = time.Time{}
}
