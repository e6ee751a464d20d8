package presence

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ideahub/chat-service/internal/chat"
)

type fakeBroadcaster struct {
	payloads [][]byte
	err      error
}

func (f *fakeBroadcaster) PublishPresence(data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, data)
	return nil
}

func TestOnConnect(t *testing.T) {
	b := &fakeBroadcaster{}
	n := NewNotifier(b)

	n.OnConnect("alice")

	if len(b.payloads) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(b.payloads))
	}
	var event chat.PresenceEvent
	if err := json.Unmarshal(b.payloads[0], &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.SenderUsername != "alice" {
		t.Errorf("senderUsername = %q, want alice", event.SenderUsername)
	}
	if event.EventType != chat.TypeConnect {
		t.Errorf("eventType = %q, want %q", event.EventType, chat.TypeConnect)
	}
	if event.Status != chat.StatusSent {
		t.Errorf("status = %q, want %q", event.Status, chat.StatusSent)
	}
	if event.SentAt.IsZero() {
		t.Error("sentAt not set")
	}
}

func TestOnDisconnect(t *testing.T) {
	b := &fakeBroadcaster{}
	n := NewNotifier(b)

	n.OnDisconnect("bob")

	if len(b.payloads) != 1 {
		t.Fatalf("broadcasts = %d, want 1", len(b.payloads))
	}
	var event chat.PresenceEvent
	if err := json.Unmarshal(b.payloads[0], &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.EventType != chat.TypeDisconnect {
		t.Errorf("eventType = %q, want %q", event.EventType, chat.TypeDisconnect)
	}
}

func TestBroadcastFailureDoesNotPanic(t *testing.T) {
	n := NewNotifier(&fakeBroadcaster{err: errors.New("nats down")})
	n.OnConnect("alice")
	n.OnDisconnect("alice")
}
