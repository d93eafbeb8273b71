package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryTokenRevoker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewMemoryTokenRevoker()
	r.now = func() time.Time { return now }

	if err := r.Revoke(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked, err := r.IsRevoked(ctx, "jti-1"); err != nil || !revoked {
		t.Fatalf("expected jti-1 revoked, got revoked=%v err=%v", revoked, err)
	}
	if revoked, _ := r.IsRevoked(ctx, "jti-2"); revoked {
		t.Fatalf("unknown jti reported as revoked")
	}

	now = now.Add(time.Minute)
	if revoked, _ := r.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatalf("revocation should end with the token lifetime")
	}
	if len(r.expires) != 0 {
		t.Fatalf("expired entry should be dropped, have %d", len(r.expires))
	}
}

func TestMemoryTokenRevokerSkipsExpiredTokens(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryTokenRevoker()
	for _, ttl := range []time.Duration{0, -time.Second} {
		if err := r.Revoke(ctx, "jti-1", ttl); err != nil {
			t.Fatalf("revoke ttl=%v: %v", ttl, err)
		}
	}
	if revoked, _ := r.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatalf("non-positive ttl must not record a revocation")
	}
}

func TestRedisTokenRevoker(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	r := NewRedisTokenRevoker(mr.Addr(), "")
	t.Cleanup(func() { _ = r.Close() })

	if err := r.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := r.Revoke(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !mr.Exists("elib:revoked:jti-1") {
		t.Fatalf("expected revocation key, have %v", mr.Keys())
	}
	if ttl := mr.TTL("elib:revoked:jti-1"); ttl != time.Minute {
		t.Fatalf("revocation ttl = %v, want 1m", ttl)
	}
	if revoked, err := r.IsRevoked(ctx, "jti-1"); err != nil || !revoked {
		t.Fatalf("expected revoked, got revoked=%v err=%v", revoked, err)
	}

	mr.FastForward(2 * time.Minute)
	if revoked, err := r.IsRevoked(ctx, "jti-1"); err != nil || revoked {
		t.Fatalf("expected key expiry to lift revocation, got revoked=%v err=%v", revoked, err)
	}
}

func TestRedisTokenRevokerReportsOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedisTokenRevoker(mr.Addr(), "")
	t.Cleanup(func() { _ = r.Close() })
	mr.Close()

	if _, err := r.IsRevoked(context.Background(), "jti-1"); err == nil {
		t.Fatalf("expected error while redis is down")
	}
}
