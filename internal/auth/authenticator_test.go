package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/ideahub/chat-service/internal/apperr"
)

type fakeVerifier struct {
	username string
	role     string
	err      error
}

func (f *fakeVerifier) Verify(_ string) (string, string, error) {
	return f.username, f.role, f.err
}

type fakeRevocations struct {
	revoked map[string]bool
	err     error
}

func (f *fakeRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[token], nil
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		verifier    *fakeVerifier
		revocations *fakeRevocations
		wantCode    string
		wantRole    string
	}{
		{
			name:        "valid token",
			header:      "Bearer good-token",
			verifier:    &fakeVerifier{username: "alice", role: "user"},
			revocations: &fakeRevocations{},
			wantRole:    "USER",
		},
		{
			name:        "admin role preserved",
			header:      "Bearer good-token",
			verifier:    &fakeVerifier{username: "alice", role: "ADMIN"},
			revocations: &fakeRevocations{},
			wantRole:    "ADMIN",
		},
		{
			name:        "missing role defaults",
			header:      "Bearer good-token",
			verifier:    &fakeVerifier{username: "alice"},
			revocations: &fakeRevocations{},
			wantRole:    DefaultRole,
		},
		{
			name:        "no header",
			header:      "",
			verifier:    &fakeVerifier{username: "alice"},
			revocations: &fakeRevocations{},
			wantCode:    apperr.CodeTokenMissing,
		},
		{
			name:        "no bearer prefix",
			header:      "Basic abc123",
			verifier:    &fakeVerifier{username: "alice"},
			revocations: &fakeRevocations{},
			wantCode:    apperr.CodeTokenMissing,
		},
		{
			name:        "empty token after prefix",
			header:      "Bearer ",
			verifier:    &fakeVerifier{username: "alice"},
			revocations: &fakeRevocations{},
			wantCode:    apperr.CodeTokenMissing,
		},
		{
			name:        "revoked token",
			header:      "Bearer revoked-token",
			verifier:    &fakeVerifier{username: "alice"},
			revocations: &fakeRevocations{revoked: map[string]bool{"revoked-token": true}},
			wantCode:    apperr.CodeTokenBlacklisted,
		},
		{
			name:        "revocation store down fails closed",
			header:      "Bearer good-token",
			verifier:    &fakeVerifier{username: "alice"},
			revocations: &fakeRevocations{err: errors.New("connection refused")},
			wantCode:    apperr.CodeAuthFailed,
		},
		{
			name:        "verification failure",
			header:      "Bearer bad-token",
			verifier:    &fakeVerifier{err: errors.New("signature mismatch")},
			revocations: &fakeRevocations{},
			wantCode:    apperr.CodeTokenInvalid,
		},
		{
			name:        "empty subject",
			header:      "Bearer good-token",
			verifier:    &fakeVerifier{username: ""},
			revocations: &fakeRevocations{},
			wantCode:    apperr.CodeTokenInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAuthenticator(tt.revocations, tt.verifier)
			cctx, err := a.Authenticate(context.Background(), tt.header)

			if tt.wantCode != "" {
				if !apperr.Is(err, tt.wantCode) {
					t.Fatalf("error = %v, want code %s", err, tt.wantCode)
				}
				if cctx != nil {
					t.Error("context must be nil on failure")
				}
				return
			}

			if err != nil {
				t.Fatalf("Authenticate() error: %v", err)
			}
			if !cctx.Authenticated {
				t.Error("Authenticated = false")
			}
			if cctx.Username != tt.verifier.username {
				t.Errorf("Username = %q, want %q", cctx.Username, tt.verifier.username)
			}
			if cctx.Role != tt.wantRole {
				t.Errorf("Role = %q, want %q", cctx.Role, tt.wantRole)
			}
		})
	}
}
