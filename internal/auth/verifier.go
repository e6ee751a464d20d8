package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates a signed token and extracts the subject (username)
// and role claim.
type TokenVerifier interface {
	Verify(token string) (username, role string, err error)
}

// claims is the JWT claim set issued by the account service. Only the
// registered subject and the role claim are consumed here.
type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HMAC-signed JWTs with a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for tokens signed with the given secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify parses and validates the token signature and expiry, returning the
// subject and role claims.
func (v *JWTVerifier) Verify(token string) (string, string, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("auth: token parse: %w", err)
	}
	if !parsed.Valid {
		return "", "", fmt.Errorf("auth: token invalid")
	}
	return c.Subject, c.Role, nil
}
