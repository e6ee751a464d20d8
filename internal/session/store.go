// Package session maintains the Redis registry of authenticated connections
// so operators (and other instances) can see which user is connected to
// which server. Entries are ephemeral: created after a successful handshake,
// deleted on disconnect, and TTL-bounded as a safety net.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Prefix is the Redis key prefix for all connection session hashes.
	Prefix = "session:"

	// TTL is the safety-net time-to-live for session keys. A live
	// connection refreshes it via the heartbeat path.
	TTL = 1 * time.Hour
)

// Session is the registry record for one authenticated connection.
type Session struct {
	ID          string `redis:"id"`
	UserID      string `redis:"user_id"`
	Username    string `redis:"username"`
	Role        string `redis:"role"`
	Server      string `redis:"server"`
	ConnectedAt int64  `redis:"connected_at"`
}

// Store manages connection sessions in Redis.
type Store struct {
	client     *redis.Client
	serverName string
}

// NewStore creates a session store using the given Redis client. serverName
// identifies this server instance in the registry.
func NewStore(client *redis.Client, serverName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}
	return &Store{client: client, serverName: serverName}, nil
}

// Create records an authenticated connection in the registry.
func (s *Store) Create(ctx context.Context, sessionID, userID, username, role string) error {
	key := Prefix + sessionID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"id":           sessionID,
		"user_id":      userID,
		"username":     username,
		"role":         role,
		"server":       s.serverName,
		"connected_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, key, TTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a session. Returns nil if not found.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	if err := s.client.HGetAll(ctx, Prefix+sessionID).Scan(&sess); err != nil {
		return nil, err
	}
	if sess.ID == "" {
		return nil, nil
	}
	return &sess, nil
}

// RefreshTTL extends the session's TTL. Called from the heartbeat path.
func (s *Store) RefreshTTL(ctx context.Context, sessionID string) error {
	return s.client.Expire(ctx, Prefix+sessionID, TTL).Err()
}

// Delete removes a session from the registry.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, Prefix+sessionID).Err()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
