package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRevokedPrefix = "elib:revoked"
	redisRevokerTimeout  = 3 * time.Second
)

// TokenRevoker remembers logged-out token ids (jti) until the token would have
// expired anyway.
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryTokenRevoker is a process-local revoker for tests and single-node runs.
type MemoryTokenRevoker struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{expires: make(map[string]time.Time), now: time.Now}
}

func (r *MemoryTokenRevoker) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 || tokenID == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	r.expires[tokenID] = r.now().Add(ttl)
	return nil
}

func (r *MemoryTokenRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.expires[tokenID]
	if !ok {
		return false, nil
	}
	if !r.now().Before(until) {
		delete(r.expires, tokenID)
		return false, nil
	}
	return true, nil
}

// sweepLocked drops entries whose token has expired.
func (r *MemoryTokenRevoker) sweepLocked() {
	now := r.now()
	for id, until := range r.expires {
		if !now.Before(until) {
			delete(r.expires, id)
		}
	}
}

// RedisTokenRevoker shares revocations across replicas. Each revoked jti is a
// key that Redis expires together with the token.
type RedisTokenRevoker struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenRevoker connects lazily; the first command dials Redis.
func NewRedisTokenRevoker(addr, password string) *RedisTokenRevoker {
	return &RedisTokenRevoker{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: defaultRevokedPrefix,
	}
}

func (r *RedisTokenRevoker) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 || tokenID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisRevokerTimeout)
	defer cancel()
	return r.client.SetArgs(ctx, r.key(tokenID), time.Now().UTC().Format(time.RFC3339), redis.SetArgs{TTL: ttl}).Err()
}

func (r *RedisTokenRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisRevokerTimeout)
	defer cancel()
	n, err := r.client.Exists(ctx, r.key(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Ping checks connectivity; used at startup so a bad REDIS_ADDR fails fast.
func (r *RedisTokenRevoker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisTokenRevoker) Close() error {
	return r.client.Close()
}

func (r *RedisTokenRevoker) key(tokenID string) string {
	return r.prefix + ":" + strings.TrimSpace(tokenID)
}
