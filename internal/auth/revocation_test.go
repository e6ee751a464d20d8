package auth

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestRevocationStore requires a running Redis on localhost:6379 and
// cleans up test revocation keys.
func newTestRevocationStore(t *testing.T) *RedisRevocationStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	cleanup := func() {
		iter := client.Scan(ctx, 0, RevocationPrefix+"test_*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		client.Close()
	})
	return NewRedisRevocationStore(client)
}

func TestIsRevoked_UnknownToken(t *testing.T) {
	store := newTestRevocationStore(t)

	revoked, err := store.IsRevoked(context.Background(), "test_unknown")
	if err != nil {
		t.Fatalf("IsRevoked() error: %v", err)
	}
	if revoked {
		t.Error("unknown token reported revoked")
	}
}

func TestRevokeAndCheck(t *testing.T) {
	store := newTestRevocationStore(t)
	ctx := context.Background()

	if err := store.Revoke(ctx, "test_revoked", time.Minute); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}

	revoked, err := store.IsRevoked(ctx, "test_revoked")
	if err != nil {
		t.Fatalf("IsRevoked() error: %v", err)
	}
	if !revoked {
		t.Error("revoked token not reported revoked")
	}
}
