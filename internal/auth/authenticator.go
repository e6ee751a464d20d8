package auth

import (
	"context"
	"log"
	"strings"

	"github.com/ideahub/chat-service/internal/apperr"
)

const bearerPrefix = "Bearer "

// DefaultRole is assigned when the verified token carries no role claim.
const DefaultRole = "USER"

// Authenticator gates connection establishment. It only inspects the
// handshake frame; per-frame re-checks are the dispatcher's job.
type Authenticator struct {
	revocations RevocationStore
	verifier    TokenVerifier
}

// NewAuthenticator creates an Authenticator from its collaborator ports.
func NewAuthenticator(revocations RevocationStore, verifier TokenVerifier) *Authenticator {
	return &Authenticator{revocations: revocations, verifier: verifier}
}

// Authenticate validates the Authorization header of the handshake and
// returns the populated ConnectionContext. It has no side effects beyond
// that; it never writes to the connection.
func (a *Authenticator) Authenticate(ctx context.Context, authHeader string) (*ConnectionContext, error) {
	if authHeader == "" || !strings.HasPrefix(authHeader, bearerPrefix) {
		return nil, apperr.New(apperr.CodeTokenMissing, "missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
	if token == "" {
		return nil, apperr.New(apperr.CodeTokenMissing, "missing bearer token")
	}

	revoked, err := a.revocations.IsRevoked(ctx, token)
	if err != nil {
		// Fail closed: an unreachable revocation store must not let a
		// possibly revoked token through.
		log.Printf("auth: revocation lookup failed: %v", err)
		return nil, apperr.New(apperr.CodeAuthFailed, "authentication unavailable")
	}
	if revoked {
		return nil, apperr.New(apperr.CodeTokenBlacklisted, "token has been revoked")
	}

	username, role, err := a.verifier.Verify(token)
	if err != nil {
		return nil, apperr.New(apperr.CodeTokenInvalid, "token verification failed")
	}
	if username == "" {
		return nil, apperr.New(apperr.CodeTokenInvalid, "token has no subject")
	}

	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		role = DefaultRole
	}

	return &ConnectionContext{
		UserID:        username,
		Username:      username,
		Role:          role,
		Authenticated: true,
	}, nil
}
