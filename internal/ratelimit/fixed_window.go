package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "elib:ratelimit"
	redisTimeout  = 2 * time.Second
)

// incrWindow bumps the counter for the current slot and returns the new count
// together with the remaining lifetime of the slot in milliseconds.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// FixedWindowLimiter counts requests per key in fixed windows kept in Redis so
// all replicas share one quota.
type FixedWindowLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 {
		return nil, errors.New("rate limit must be positive")
	}
	if window < time.Millisecond {
		return nil, errors.New("rate limit window must be at least 1ms")
	}
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &FixedWindowLimiter{
		client: redis.NewClient(&redis.Options{Addr: strings.TrimSpace(addr), Password: password}),
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}, nil
}

func (l *FixedWindowLimiter) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}

// Allow counts one request for key. Redis errors deny the request and are
// returned so the caller can log them.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	d := Decision{Limit: l.limit, RetryAfter: l.window}
	if key = strings.TrimSpace(key); key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	slot := l.now().UTC().UnixMilli() / windowMs

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	res, err := incrWindow.Run(ctx, l.client, []string{l.slotKey(key, slot)}, windowMs).Int64Slice()
	if err != nil {
		return d, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return d, fmt.Errorf("rate limit %s: unexpected reply %v", key, res)
	}
	count, ttlMs := res[0], res[1]
	if ttlMs > 0 {
		d.RetryAfter = time.Duration(ttlMs) * time.Millisecond
	}
	d.Remaining = max(l.limit-int(count), 0)
	d.Allowed = count <= int64(l.limit)
	return d, nil
}

func (l *FixedWindowLimiter) slotKey(key string, slot int64) string {
	return fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)
}
