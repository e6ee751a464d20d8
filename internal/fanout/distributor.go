// Package fanout consumes persisted-message events from the durable log and
// delivers their projections to the per-user destinations. It carries no
// retry logic of its own: recovery is entirely the broker pipeline's job.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ideahub/chat-service/internal/broker"
	"github.com/ideahub/chat-service/internal/chat"
	"github.com/ideahub/chat-service/internal/metrics"
)

// Destinations is the delivery surface the distributor pushes projections to.
// *messaging.Client satisfies it.
type Destinations interface {
	PublishUserMessage(userID string, data []byte) error
}

// Distributor projects stored chat messages and fans them out to the
// recipient's and the sender's message queues. The sender receives their own
// sent message so every connection of the same user stays consistent.
type Distributor struct {
	dest Destinations
}

// NewDistributor creates a Distributor delivering to dest.
func NewDistributor(dest Destinations) *Distributor {
	return &Distributor{dest: dest}
}

// Handle is the broker pipeline handler for one persisted-message event.
// Malformed events can never succeed and are marked non-retryable so the
// pipeline dead-letters them without burning retry attempts; destination
// errors are transient and left retryable.
func (d *Distributor) Handle(ctx context.Context, key string, value []byte) error {
	var msg chat.Message
	if err := json.Unmarshal(value, &msg); err != nil {
		return broker.NonRetryable(fmt.Errorf("fanout: decode event: %w", err))
	}
	if msg.ID == "" || msg.RecipientID == "" || msg.SenderUsername == "" {
		return broker.NonRetryable(fmt.Errorf("fanout: event missing id/recipient/sender (key=%s)", key))
	}

	data, err := json.Marshal(chat.NewResponse(&msg))
	if err != nil {
		return broker.NonRetryable(fmt.Errorf("fanout: encode projection: %w", err))
	}

	if err := d.dest.PublishUserMessage(msg.RecipientID, data); err != nil {
		return fmt.Errorf("fanout: deliver to recipient %s: %w", msg.RecipientID, err)
	}
	metrics.FanoutDelivered.Inc()

	if err := d.dest.PublishUserMessage(msg.SenderUsername, data); err != nil {
		return fmt.Errorf("fanout: deliver to sender %s: %w", msg.SenderUsername, err)
	}
	metrics.FanoutDelivered.Inc()

	log.Printf("fanout: delivered id=%s recipient=%s sender=%s", msg.ID, msg.RecipientID, msg.SenderUsername)
	return nil
}
