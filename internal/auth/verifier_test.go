package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, subject, role string, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerify_ValidToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, testSecret, "alice", "ADMIN", time.Hour)

	username, role, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if username != "alice" {
		t.Errorf("username = %q, want alice", username)
	}
	if role != "ADMIN" {
		t.Errorf("role = %q, want ADMIN", role)
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, testSecret, "alice", "USER", -time.Minute)

	if _, _, err := v.Verify(token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	token := signToken(t, []byte("other-secret"), "alice", "USER", time.Hour)

	if _, _, err := v.Verify(token); err == nil {
		t.Fatal("expected error for wrong signing secret")
	}
}

func TestVerify_WrongAlgorithm(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	// alg=none tokens must never validate.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "alice"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, _, err := v.Verify(signed); err == nil {
		t.Fatal("expected error for unsigned token")
	}
}

func TestVerify_Garbage(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	if _, _, err := v.Verify("not.a.jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
