package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ideahub/chat-service/internal/auth"
	"github.com/ideahub/chat-service/internal/chat"
)

type fakeVerifier struct{}

func (fakeVerifier) Verify(token string) (string, string, error) {
	return token, "USER", nil
}

type noRevocations struct{}

func (noRevocations) IsRevoked(context.Context, string) (bool, error) { return false, nil }

type fakeMessageStore struct {
	unread []*chat.Message
}

func (f *fakeMessageStore) Create(_ context.Context, m *chat.Message) (*chat.Message, error) {
	return m, nil
}

func (f *fakeMessageStore) UnreadByRecipient(_ context.Context, _ string) ([]*chat.Message, error) {
	return f.unread, nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, []byte) error { return nil }

func newTestHandler(unread []*chat.Message) *UnreadHandler {
	authenticator := auth.NewAuthenticator(noRevocations{}, fakeVerifier{})
	service := chat.NewService(&fakeMessageStore{unread: unread}, noopPublisher{})
	return NewUnreadHandler(authenticator, service)
}

func TestUnreadHandler(t *testing.T) {
	handler := newTestHandler([]*chat.Message{
		{ID: "m1", Content: "Hello", SenderUsername: "alice", RecipientID: "bob", Status: chat.StatusSent, SentAt: time.Now().UTC()},
	})

	req := httptest.NewRequest(http.MethodGet, "/unread", nil)
	req.Header.Set("Authorization", "Bearer bob")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body)
	}
	var got []chat.MessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "m1" {
		t.Errorf("response = %+v", got)
	}
}

func TestUnreadHandler_EmptyIsArrayNotNull(t *testing.T) {
	handler := newTestHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/unread", nil)
	req.Header.Set("Authorization", "Bearer bob")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want empty JSON array", body)
	}
}

func TestUnreadHandler_MissingToken(t *testing.T) {
	handler := newTestHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/unread", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != "TOKEN_MISSING" {
		t.Errorf("code = %q, want TOKEN_MISSING", body.Code)
	}
}

func TestUnreadHandler_MethodNotAllowed(t *testing.T) {
	handler := newTestHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/unread", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
