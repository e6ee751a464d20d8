// Package presence broadcasts transient connect/disconnect events. Nothing
// is persisted; the event exists only as a broadcast payload.
package presence

import (
	"encoding/json"
	"log"
	"time"

	"github.com/ideahub/chat-service/internal/chat"
)

// Broadcaster publishes presence events to the public broadcast destination.
// *messaging.Client satisfies it.
type Broadcaster interface {
	PublishPresence(data []byte) error
}

// Notifier emits presence events for connecting and disconnecting users.
type Notifier struct {
	broadcaster Broadcaster
}

// NewNotifier creates a Notifier.
func NewNotifier(b Broadcaster) *Notifier {
	return &Notifier{broadcaster: b}
}

// OnConnect broadcasts a CONNECT event for username.
func (n *Notifier) OnConnect(username string) {
	n.broadcast(username, chat.TypeConnect)
}

// OnDisconnect broadcasts a DISCONNECT event for username.
func (n *Notifier) OnDisconnect(username string) {
	n.broadcast(username, chat.TypeDisconnect)
}

func (n *Notifier) broadcast(username, eventType string) {
	event := chat.PresenceEvent{
		SenderUsername: username,
		EventType:      eventType,
		Status:         chat.StatusSent,
		SentAt:         time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("presence: encode %s for %s: %v", eventType, username, err)
		return
	}
	if err := n.broadcaster.PublishPresence(data); err != nil {
		log.Printf("presence: broadcast %s for %s: %v", eventType, username, err)
	}
}
