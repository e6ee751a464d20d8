package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationPrefix is the Redis key prefix for revoked tokens. A key's
// presence marks the token revoked; the TTL matches the token's remaining
// lifetime so entries expire on their own.
const RevocationPrefix = "revoked:"

// RevocationStore answers whether a token has been revoked.
type RevocationStore interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// RedisRevocationStore is the Redis-backed revocation store.
type RedisRevocationStore struct {
	client *redis.Client
}

// NewRedisRevocationStore creates a revocation store using the given client.
func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

// IsRevoked checks for a revocation entry. Redis errors are returned so the
// caller can decide the policy; the authenticator fails the handshake closed.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	err := s.client.Get(ctx, RevocationPrefix+token).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Revoke marks a token revoked for the given duration. Used by the account
// service on logout; exposed here for tests and tooling.
func (s *RedisRevocationStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	return s.client.Set(ctx, RevocationPrefix+token, "1", ttl).Err()
}
