// Package chat holds the chat message domain model, validation rules, the
// PostgreSQL-backed message store, and the ingest service that persists
// outbound messages and hands them to the durable log for fan-out.
package chat

import "time"

// Message status values. Status only ever advances SENT -> DELIVERED -> READ;
// the corresponding timestamp is set when the status is reached and is never
// unset.
const (
	StatusSent      = "SENT"
	StatusDelivered = "DELIVERED"
	StatusRead      = "READ"
)

// Message type values. CONNECT and DISCONNECT are transport signals used for
// presence events and are never persisted.
const (
	TypeText       = "TEXT"
	TypeSystem     = "SYSTEM"
	TypeConnect    = "CONNECT"
	TypeDisconnect = "DISCONNECT"
)

// ValidTypes is the set of message types accepted by ingest.
var ValidTypes = map[string]bool{
	TypeText:       true,
	TypeSystem:     true,
	TypeConnect:    true,
	TypeDisconnect: true,
}

// Message is a persisted chat message. The JSON shape is the wire shape used
// on the durable log topic.
type Message struct {
	ID             string     `json:"id"`
	Content        string     `json:"content"`
	SenderID       string     `json:"senderId"`
	SenderUsername string     `json:"senderUsername"`
	RecipientID    string     `json:"recipientId"`
	MessageType    string     `json:"messageType"`
	Status         string     `json:"status"`
	SentAt         time.Time  `json:"sentAt"`
	DeliveredAt    *time.Time `json:"deliveredAt"`
	ReadAt         *time.Time `json:"readAt"`
	Deleted        bool       `json:"deleted"`
}

// MessageResponse is the outward projection of a Message pushed to per-user
// destinations. Same fields as the entity, minus the soft-delete flag.
type MessageResponse struct {
	ID             string     `json:"id"`
	Content        string     `json:"content"`
	SenderID       string     `json:"senderId"`
	SenderUsername string     `json:"senderUsername"`
	RecipientID    string     `json:"recipientId"`
	MessageType    string     `json:"messageType"`
	Status         string     `json:"status"`
	SentAt         time.Time  `json:"sentAt"`
	DeliveredAt    *time.Time `json:"deliveredAt"`
	ReadAt         *time.Time `json:"readAt"`
}

// NewResponse projects a stored message into its outward response shape.
func NewResponse(m *Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		Content:        m.Content,
		SenderID:       m.SenderID,
		SenderUsername: m.SenderUsername,
		RecipientID:    m.RecipientID,
		MessageType:    m.MessageType,
		Status:         m.Status,
		SentAt:         m.SentAt,
		DeliveredAt:    m.DeliveredAt,
		ReadAt:         m.ReadAt,
	}
}

// PresenceEvent is the transient connect/disconnect broadcast payload. It is
// never persisted.
type PresenceEvent struct {
	SenderUsername string    `json:"senderUsername"`
	EventType      string    `json:"eventType"` // CONNECT | DISCONNECT
	Status         string    `json:"status"`    // always SENT
	SentAt         time.Time `json:"sentAt"`
}
