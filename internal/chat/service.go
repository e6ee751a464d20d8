package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ideahub/chat-service/internal/apperr"
	"github.com/ideahub/chat-service/internal/auth"
	"github.com/ideahub/chat-service/internal/metrics"
)

// MessageStore is the persistence surface the ingest service depends on.
// *Store satisfies it.
type MessageStore interface {
	Create(ctx context.Context, m *Message) (*Message, error)
	UnreadByRecipient(ctx context.Context, userID string) ([]*Message, error)
}

// Publisher hands persisted messages to the durable log. Publish is
// fire-and-forget from the caller's perspective: it returns once the message
// is enqueued with the broker client, not when a consumer has seen it.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Service implements message ingest: validate, persist, publish.
type Service struct {
	store     MessageStore
	publisher Publisher
}

// NewService creates the ingest service.
func NewService(store MessageStore, publisher Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// Send validates and persists an outbound chat message, then publishes the
// persisted entity to the durable log keyed by recipient id. Persistence and
// publication are not atomic: a crash between the two loses the fan-out while
// the message stays durably stored. That gap is accepted; hardening it would
// take an outbox, which is out of scope.
func (s *Service) Send(ctx context.Context, cmd SendCommand, sender *auth.ConnectionContext) (*Message, error) {
	start := time.Now()

	if err := cmd.Validate(); err != nil {
		metrics.MessagesIngested.WithLabelValues("rejected").Inc()
		return nil, apperr.New(apperr.CodeValidationFailed, err.Error())
	}

	msg := &Message{
		Content:        cmd.Content,
		SenderID:       sender.UserID,
		SenderUsername: sender.Username,
		RecipientID:    cmd.RecipientID,
		MessageType:    cmd.MessageType,
	}

	stored, err := s.store.Create(ctx, msg)
	if err != nil {
		metrics.MessagesIngested.WithLabelValues("store_error").Inc()
		if errors.Is(err, ErrConstraint) {
			return nil, apperr.New(apperr.CodeConstraintViolation, "message violates a storage constraint")
		}
		log.Printf("chat: persist failed sender=%s recipient=%s: %v", sender.UserID, cmd.RecipientID, err)
		return nil, apperr.New(apperr.CodeInvalidMessage, "failed to store message")
	}

	data, err := json.Marshal(stored)
	if err != nil {
		// The entity is already durable; only the fan-out is lost.
		log.Printf("chat: marshal for publish failed id=%s: %v", stored.ID, err)
		return nil, apperr.New(apperr.CodeInvalidMessage, "failed to encode message")
	}
	if err := s.publisher.Publish(ctx, stored.RecipientID, data); err != nil {
		log.Printf("chat: publish failed id=%s recipient=%s: %v", stored.ID, stored.RecipientID, err)
		return nil, apperr.New(apperr.CodeInvalidMessage, "failed to publish message")
	}

	metrics.MessagesIngested.WithLabelValues("accepted").Inc()
	metrics.IngestLatency.Observe(time.Since(start).Seconds())
	return stored, nil
}

// Unread returns the caller's unread message projections, oldest first.
// Read-only, no side effects.
func (s *Service) Unread(ctx context.Context, userID string) ([]MessageResponse, error) {
	msgs, err := s.store.UnreadByRecipient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("chat: unread for %s: %w", userID, err)
	}
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewResponse(m))
	}
	return out, nil
}
