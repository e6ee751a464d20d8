package status

import (
	"context"
	"testing"
	"time"

	"github.com/ideahub/chat-service/internal/apperr"
	"github.com/ideahub/chat-service/internal/chat"
)

type fakeStore struct {
	messages map[string]*chat.Message
	updated  []*chat.Message
}

func (f *fakeStore) Get(_ context.Context, id string) (*chat.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) Update(_ context.Context, m *chat.Message) error {
	f.messages[m.ID] = m
	f.updated = append(f.updated, m)
	return nil
}

type fakeNotifier struct {
	usernames []string
	payloads  [][]byte
}

func (f *fakeNotifier) PublishUserStatus(username string, data []byte) error {
	f.usernames = append(f.usernames, username)
	f.payloads = append(f.payloads, data)
	return nil
}

func storeWith(msgs ...*chat.Message) *fakeStore {
	s := &fakeStore{messages: make(map[string]*chat.Message)}
	for _, m := range msgs {
		s.messages[m.ID] = m
	}
	return s
}

func sentMessage(id string) *chat.Message {
	return &chat.Message{
		ID:             id,
		Content:        "Hello",
		SenderID:       "alice",
		SenderUsername: "alice",
		RecipientID:    "bob",
		MessageType:    chat.TypeText,
		Status:         chat.StatusSent,
		SentAt:         time.Now().UTC().Add(-time.Minute),
	}
}

func TestMarkDelivered(t *testing.T) {
	store := storeWith(sentMessage("m1"))
	notifier := &fakeNotifier{}
	tracker := NewTracker(store, notifier)

	msg, err := tracker.MarkDelivered(context.Background(), "m1")
	if err != nil {
		t.Fatalf("MarkDelivered() error: %v", err)
	}
	if msg.Status != chat.StatusDelivered {
		t.Errorf("status = %q, want %q", msg.Status, chat.StatusDelivered)
	}
	if msg.DeliveredAt == nil {
		t.Fatal("deliveredAt not set")
	}
	if msg.ReadAt != nil {
		t.Error("readAt must stay nil")
	}
	if len(notifier.usernames) != 1 || notifier.usernames[0] != "alice" {
		t.Errorf("notified = %v, want the sender", notifier.usernames)
	}
}

func TestMarkDelivered_RepeatedCallResetsTimestamp(t *testing.T) {
	store := storeWith(sentMessage("m1"))
	tracker := NewTracker(store, &fakeNotifier{})

	first, err := tracker.MarkDelivered(context.Background(), "m1")
	if err != nil {
		t.Fatalf("first MarkDelivered() error: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := tracker.MarkDelivered(context.Background(), "m1")
	if err != nil {
		t.Fatalf("second MarkDelivered() error: %v", err)
	}

	if second.Status != chat.StatusDelivered {
		t.Errorf("status = %q, want %q", second.Status, chat.StatusDelivered)
	}
	if !second.DeliveredAt.After(*first.DeliveredAt) {
		t.Error("repeated call must re-set deliveredAt")
	}
}

func TestMarkDelivered_UnknownID(t *testing.T) {
	tracker := NewTracker(storeWith(), &fakeNotifier{})

	_, err := tracker.MarkDelivered(context.Background(), "missing")
	if !apperr.Is(err, apperr.CodeNotFound) {
		t.Fatalf("error = %v, want code %s", err, apperr.CodeNotFound)
	}
}

func TestMarkRead_ByRecipient(t *testing.T) {
	store := storeWith(sentMessage("m1"))
	notifier := &fakeNotifier{}
	tracker := NewTracker(store, notifier)

	msg, err := tracker.MarkRead(context.Background(), "m1", "bob")
	if err != nil {
		t.Fatalf("MarkRead() error: %v", err)
	}
	if msg.Status != chat.StatusRead {
		t.Errorf("status = %q, want %q", msg.Status, chat.StatusRead)
	}
	if msg.ReadAt == nil {
		t.Error("readAt not set")
	}
	if len(notifier.usernames) != 1 || notifier.usernames[0] != "alice" {
		t.Errorf("notified = %v, want the sender", notifier.usernames)
	}
}

func TestMarkRead_SkipsDeliveredState(t *testing.T) {
	// READ directly from SENT is allowed: no DELIVERED transition required.
	store := storeWith(sentMessage("m1"))
	tracker := NewTracker(store, &fakeNotifier{})

	msg, err := tracker.MarkRead(context.Background(), "m1", "bob")
	if err != nil {
		t.Fatalf("MarkRead() error: %v", err)
	}
	if msg.Status != chat.StatusRead {
		t.Errorf("status = %q, want %q", msg.Status, chat.StatusRead)
	}
	if msg.DeliveredAt != nil {
		t.Error("deliveredAt must stay nil when DELIVERED was skipped")
	}
}

func TestMarkRead_OwnershipMismatchLooksLikeMissing(t *testing.T) {
	store := storeWith(sentMessage("m1"))
	tracker := NewTracker(store, &fakeNotifier{})

	_, errMismatch := tracker.MarkRead(context.Background(), "m1", "mallory")
	_, errMissing := tracker.MarkRead(context.Background(), "no-such-id", "mallory")

	if !apperr.Is(errMismatch, apperr.CodeNotFound) {
		t.Fatalf("ownership mismatch error = %v, want code %s", errMismatch, apperr.CodeNotFound)
	}
	if !apperr.Is(errMissing, apperr.CodeNotFound) {
		t.Fatalf("missing id error = %v, want code %s", errMissing, apperr.CodeNotFound)
	}
	if apperr.From(errMismatch).Message != apperr.From(errMissing).Message {
		t.Error("mismatch and missing must be indistinguishable to the caller")
	}
	if len(store.updated) != 0 {
		t.Error("ownership mismatch must not persist anything")
	}
}

func TestMarkRead_SenderCannotMarkOwnMessage(t *testing.T) {
	store := storeWith(sentMessage("m1"))
	tracker := NewTracker(store, &fakeNotifier{})

	_, err := tracker.MarkRead(context.Background(), "m1", "alice")
	if !apperr.Is(err, apperr.CodeNotFound) {
		t.Fatalf("error = %v, want code %s", err, apperr.CodeNotFound)
	}
}
