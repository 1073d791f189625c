package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cloudez/cloudez/internal/config"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const redisBreakerDuration = 30 * time.Second

// RedisClientFactory constructs a redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Manager routes counter operations to the redis store when configured and
// healthy, falling back to the shared database store behind a breaker. Both
// backends are shared across instances, so the fallback stays correct for
// multi-instance deployments.
type Manager struct {
	primary  Store
	fallback Store
	nowFn    func() time.Time

	mu           sync.Mutex
	breakerUntil time.Time
}

// NewManager constructs a Manager. fallback must be a shared store; primary
// may be nil when redis is not configured.
func NewManager(primary, fallback Store, nowFn func() time.Time) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Manager{primary: primary, fallback: fallback, nowFn: nowFn}
}

// NewManagerFromConfig wires a Manager from config: redis primary when
// enabled, database fallback always.
func NewManagerFromConfig(cfg config.RedisConfig, fallback Store, factory RedisClientFactory) *Manager {
	if factory == nil {
		factory = redis.NewClient
	}
	var primary Store
	if cfg.Enabled && cfg.Addr != "" {
		client := factory(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		primary = NewRedisStore(client, cfg.Prefix)
	}
	return NewManager(primary, fallback, nil)
}

func (m *Manager) isBreakerActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if m.nowFn().Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFn()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("rate limit: redis unavailable, falling back to database store")
}

// active returns the store to use for the next operation.
func (m *Manager) active() Store {
	if m.primary == nil || m.isBreakerActive() {
		return m.fallback
	}
	return m.primary
}

// CheckAndRecord delegates to the active backend, tripping the breaker and
// retrying on the fallback when the primary fails.
func (m *Manager) CheckAndRecord(ctx context.Context, userID uint64, rule Rule) (Result, error) {
	store := m.active()
	result, errCheck := store.CheckAndRecord(ctx, userID, rule)
	if errCheck != nil && store == m.primary {
		m.tripBreaker(errCheck)
		return m.fallback.CheckAndRecord(ctx, userID, rule)
	}
	return result, errCheck
}

// Status delegates to the active backend.
func (m *Manager) Status(ctx context.Context, userID uint64, rules []Rule) ([]OperationStatus, error) {
	store := m.active()
	statuses, errStatus := store.Status(ctx, userID, rules)
	if errStatus != nil && store == m.primary {
		m.tripBreaker(errStatus)
		return m.fallback.Status(ctx, userID, rules)
	}
	return statuses, errStatus
}

// Reset clears counters in every backend so a fallback flip cannot revive
// stale counts.
func (m *Manager) Reset(ctx context.Context, userID uint64, rules []Rule) error {
	if m.primary != nil {
		if errReset := m.primary.Reset(ctx, userID, rules); errReset != nil {
			m.tripBreaker(errReset)
		}
	}
	return m.fallback.Reset(ctx, userID, rules)
}

// Sweep prunes the database store; redis keys expire on their own.
func (m *Manager) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	return m.fallback.Sweep(ctx, retention)
}
