// Package status mutates per-message delivery and read state and notifies
// the original sender through their private status queue.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/ideahub/chat-service/internal/apperr"
	"github.com/ideahub/chat-service/internal/chat"
	"github.com/ideahub/chat-service/internal/metrics"
)

// MessageStore is the persistence surface the tracker depends on.
// *chat.Store satisfies it.
type MessageStore interface {
	Get(ctx context.Context, id string) (*chat.Message, error)
	Update(ctx context.Context, m *chat.Message) error
}

// Notifier pushes status-update projections to a user's private status
// queue. *messaging.Client satisfies it.
type Notifier interface {
	PublishUserStatus(username string, data []byte) error
}

// Tracker implements the markDelivered and markRead operations. Each call is
// an independent per-message transaction; there is no version guard, so
// concurrent calls on the same id are last-writer-wins.
type Tracker struct {
	store    MessageStore
	notifier Notifier
}

// NewTracker creates a Tracker.
func NewTracker(store MessageStore, notifier Notifier) *Tracker {
	return &Tracker{store: store, notifier: notifier}
}

// MarkDelivered sets the message to DELIVERED with the current time and
// notifies the sender. Repeated calls re-set the timestamp; the status stays
// DELIVERED.
func (t *Tracker) MarkDelivered(ctx context.Context, messageID string) (*chat.Message, error) {
	msg, err := t.load(ctx, messageID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg.Status = chat.StatusDelivered
	msg.DeliveredAt = &now
	if err := t.persistAndNotify(ctx, msg); err != nil {
		return nil, err
	}
	metrics.StatusTransitions.WithLabelValues(chat.StatusDelivered).Inc()
	return msg, nil
}

// MarkRead sets the message to READ with the current time and notifies the
// sender. Only the recipient may mark a message read; an ownership mismatch
// is reported as NOT_FOUND, deliberately indistinguishable from a missing id
// so non-recipients cannot probe for message existence. A message may be
// marked READ directly from SENT; no prior DELIVERED transition is required.
func (t *Tracker) MarkRead(ctx context.Context, messageID, requestingUserID string) (*chat.Message, error) {
	msg, err := t.load(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.RecipientID != requestingUserID {
		return nil, apperr.New(apperr.CodeNotFound, "message not found")
	}

	now := time.Now().UTC()
	msg.Status = chat.StatusRead
	msg.ReadAt = &now
	if err := t.persistAndNotify(ctx, msg); err != nil {
		return nil, err
	}
	metrics.StatusTransitions.WithLabelValues(chat.StatusRead).Inc()
	return msg, nil
}

func (t *Tracker) load(ctx context.Context, messageID string) (*chat.Message, error) {
	msg, err := t.store.Get(ctx, messageID)
	if errors.Is(err, chat.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "message not found")
	}
	if err != nil {
		log.Printf("status: load %s: %v", messageID, err)
		return nil, apperr.New(apperr.CodeUnexpected, "failed to load message")
	}
	return msg, nil
}

func (t *Tracker) persistAndNotify(ctx context.Context, msg *chat.Message) error {
	if err := t.store.Update(ctx, msg); err != nil {
		log.Printf("status: update %s: %v", msg.ID, err)
		return apperr.New(apperr.CodeUnexpected, "failed to update message")
	}

	data, err := json.Marshal(chat.NewResponse(msg))
	if err != nil {
		log.Printf("status: encode projection %s: %v", msg.ID, err)
		return apperr.New(apperr.CodeUnexpected, "failed to encode status update")
	}
	// Best-effort: the state change is durable even if the sender is offline
	// or the push fails.
	if err := t.notifier.PublishUserStatus(msg.SenderUsername, data); err != nil {
		log.Printf("status: notify sender=%s id=%s: %v", msg.SenderUsername, msg.ID, err)
	}
	return nil
}
