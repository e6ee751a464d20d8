// Package messaging provides the NATS client carrying server-pushed
// destinations: per-user message and status queues plus the public presence
// broadcast. It handles connection lifecycle and keyed subscription cleanup
// so a closing WebSocket connection can drop all of its subscriptions at once.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns for server-pushed destinations.
const (
	subjectUserMessages = "chat.user.%s.messages" // per-user message queue
	subjectUserStatus   = "chat.user.%s.status"   // per-user status queue
	SubjectPresence     = "chat.presence"         // public presence broadcast
)

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "chat-service",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Client wraps the NATS connection with helpers for the chat destinations.
// Delivery is best-effort push: publishing to a subject nobody is subscribed
// to succeeds and the payload is simply dropped, which is the intended
// semantics for offline users.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Connect dials NATS with the given config and returns a ready client.
func Connect(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// PublishUserMessage pushes a message projection to userID's message queue.
func (c *Client) PublishUserMessage(userID string, data []byte) error {
	return c.conn.Publish(fmt.Sprintf(subjectUserMessages, userID), data)
}

// PublishUserStatus pushes a status-update projection to username's private
// status queue.
func (c *Client) PublishUserStatus(username string, data []byte) error {
	return c.conn.Publish(fmt.Sprintf(subjectUserStatus, username), data)
}

// PublishPresence broadcasts a presence event to all server instances.
func (c *Client) PublishPresence(data []byte) error {
	return c.conn.Publish(SubjectPresence, data)
}

// SubscribeUserMessages subscribes connID to userID's message queue. The
// subscription is keyed by connection so multiple connections of the same
// user each get their own delivery.
func (c *Client) SubscribeUserMessages(connID, userID string, handler func(data []byte)) error {
	return c.subscribe("msg:"+connID, fmt.Sprintf(subjectUserMessages, userID), handler)
}

// SubscribeUserStatus subscribes connID to username's status queue.
func (c *Client) SubscribeUserStatus(connID, username string, handler func(data []byte)) error {
	return c.subscribe("status:"+connID, fmt.Sprintf(subjectUserStatus, username), handler)
}

// SubscribePresence subscribes this server instance to the presence
// broadcast. Called once per process.
func (c *Client) SubscribePresence(handler func(data []byte)) error {
	return c.subscribe("presence", SubjectPresence, handler)
}

// UnsubscribeConnection drops the message and status subscriptions held on
// behalf of a closing connection.
func (c *Client) UnsubscribeConnection(connID string) {
	for _, key := range []string{"msg:" + connID, "status:" + connID} {
		if err := c.unsubscribe(key); err != nil {
			log.Printf("[nats] unsubscribe %s: %v", key, err)
		}
	}
}

// subscribe registers a handler under the given key, replacing any previous
// subscription held under the same key.
func (c *Client) subscribe(key, subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	if old, ok := c.subs[key]; ok {
		_ = old.Unsubscribe()
	}
	c.subs[key] = sub
	c.mu.Unlock()
	return nil
}

// unsubscribe removes the subscription held under key. Missing keys are not
// an error: a connection may close before it ever subscribed.
func (c *Client) unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	delete(c.subs, key)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return sub.Unsubscribe()
}

// Close drains all active subscriptions and the connection.
func (c *Client) Close() {
	c.mu.Lock()
	for key, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", key, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)
	c.mu.Unlock()

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}
}
