package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkAndIncrScript reads the counter first and only increments below the
// limit, so a denied request never consumes budget. The key carries the
// window start, and the TTL outlives the window by a slack so late status
// reads still see the closing window.
var checkAndIncrScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= limit then
  return {0, current}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return {1, current}
`)

const redisTTLSlackSeconds = 60

// RedisStore keeps fixed-window counters in redis. Window alignment uses the
// redis server's clock so all application instances agree on boundaries, and
// expiry replaces sweeping.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: strings.TrimSpace(prefix)}
}

func (s *RedisStore) key(userID uint64, op string, windowStart int64) string {
	base := op + ":" + strconv.FormatUint(userID, 10) + ":" + strconv.FormatInt(windowStart, 10)
	if s.prefix == "" {
		return base
	}
	return s.prefix + ":" + base
}

// serverNow reads the redis server clock as unix seconds.
func (s *RedisStore) serverNow(ctx context.Context) (int64, error) {
	now, errTime := s.client.Time(ctx).Result()
	if errTime != nil {
		return 0, fmt.Errorf("%w: read clock: %v", ErrStoreUnavailable, errTime)
	}
	return now.Unix(), nil
}

// CheckAndRecord records one request in the current window unless it is full.
func (s *RedisStore) CheckAndRecord(ctx context.Context, userID uint64, rule Rule) (Result, error) {
	if s == nil || s.client == nil {
		return Result{}, fmt.Errorf("%w: store not initialized", ErrStoreUnavailable)
	}
	now, errNow := s.serverNow(ctx)
	if errNow != nil {
		return Result{}, errNow
	}
	start, end := windowBounds(now, rule.WindowSeconds)
	reset := time.Unix(end, 0).UTC()
	ttl := int64(end-now) + redisTTLSlackSeconds

	raw, errEval := checkAndIncrScript.Run(ctx, s.client,
		[]string{s.key(userID, rule.OperationType, start)},
		rule.MaxRequests, ttl,
	).Result()
	if errEval != nil {
		return Result{}, fmt.Errorf("%w: check and record: %v", ErrStoreUnavailable, errEval)
	}
	reply, ok := raw.([]any)
	if !ok || len(reply) != 2 {
		return Result{}, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}
	allowed, okAllowed := reply[0].(int64)
	count, okCount := reply[1].(int64)
	if !okAllowed || !okCount {
		return Result{}, fmt.Errorf("%w: unexpected script reply type", ErrStoreUnavailable)
	}

	if allowed == 0 {
		return Result{Allowed: false, Remaining: 0, Current: int(count), ResetAt: reset}, nil
	}
	remaining := rule.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, Current: int(count), ResetAt: reset}, nil
}

// Status reports current usage for the given rules.
func (s *RedisStore) Status(ctx context.Context, userID uint64, rules []Rule) ([]OperationStatus, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("%w: store not initialized", ErrStoreUnavailable)
	}
	now, errNow := s.serverNow(ctx)
	if errNow != nil {
		return nil, errNow
	}

	keys := make([]string, 0, len(rules))
	ends := make([]int64, 0, len(rules))
	for _, rule := range rules {
		start, end := windowBounds(now, rule.WindowSeconds)
		keys = append(keys, s.key(userID, rule.OperationType, start))
		ends = append(ends, end)
	}

	var values []any
	if len(keys) > 0 {
		var errMGet error
		values, errMGet = s.client.MGet(ctx, keys...).Result()
		if errMGet != nil {
			return nil, fmt.Errorf("%w: status: %v", ErrStoreUnavailable, errMGet)
		}
	}

	out := make([]OperationStatus, 0, len(rules))
	for i, rule := range rules {
		current := 0
		if i < len(values) && values[i] != nil {
			if str, okStr := values[i].(string); okStr {
				if parsed, errParse := strconv.Atoi(str); errParse == nil {
					current = parsed
				}
			}
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
			ResetAt:       time.Unix(ends[i], 0).UTC(),
		})
	}
	return out, nil
}

// Reset clears the user's counters for the current window of every rule.
// Closed windows expire on their own.
func (s *RedisStore) Reset(ctx context.Context, userID uint64, rules []Rule) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("%w: store not initialized", ErrStoreUnavailable)
	}
	now, errNow := s.serverNow(ctx)
	if errNow != nil {
		return errNow
	}
	keys := make([]string, 0, len(rules))
	for _, rule := range rules {
		start, _ := windowBounds(now, rule.WindowSeconds)
		keys = append(keys, s.key(userID, rule.OperationType, start))
	}
	if len(keys) == 0 {
		return nil
	}
	if errDel := s.client.Del(ctx, keys...).Err(); errDel != nil {
		return fmt.Errorf("%w: reset: %v", ErrStoreUnavailable, errDel)
	}
	return nil
}

// Sweep is a no-op: redis keys expire via TTL.
func (s *RedisStore) Sweep(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}
