// Package auth gates new WebSocket connections. It parses the handshake's
// Authorization header, consults the Redis revocation store, verifies the JWT
// and populates the per-connection identity context used by every subsequent
// frame handler on that connection.
package auth

// ConnectionContext is the per-connection identity established once at
// handshake. It is attached to the connection for its lifetime, read by every
// frame handler on that connection, and never shared across connections.
type ConnectionContext struct {
	UserID        string
	Username      string
	Role          string
	Authenticated bool
}
