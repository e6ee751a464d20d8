// Package broker wraps the Kafka durable log: a fire-and-forget publisher on
// the ingest side, and a consumer pipeline that applies the subsystem's
// uniform retry/backoff/dead-letter policy on the fan-out side.
package broker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Topic is the single well-known topic carrying persisted chat messages.
const Topic = "chat.messages"

// DLTSuffix is appended to a topic name to form its dead-letter topic.
const DLTSuffix = ".DLT"

// Publisher produces persisted messages to the durable log. Publish returns
// once the message is enqueued with the client; delivery reports are consumed
// asynchronously and only logged, so callers never block on broker acks.
type Publisher struct {
	producer *kafka.Producer
	topic    string
	done     chan struct{}
}

// NewPublisher creates a Kafka producer for the given topic, ensuring the
// topic exists with the requested partition count first.
func NewPublisher(brokers, topic string, partitions int) (*Publisher, error) {
	if err := EnsureTopic(brokers, topic, partitions); err != nil {
		log.Printf("broker: ensure topic %s: %v (may already exist)", topic, err)
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "1",
		"linger.ms":         5,
	})
	if err != nil {
		return nil, fmt.Errorf("broker: create producer: %w", err)
	}

	pub := &Publisher{
		producer: p,
		topic:    topic,
		done:     make(chan struct{}),
	}
	go pub.deliveryReports()
	return pub, nil
}

// deliveryReports drains the producer event channel, logging failed
// deliveries. Fire-and-forget publish means failures are visible in logs and
// metrics only.
func (p *Publisher) deliveryReports() {
	for e := range p.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			log.Printf("broker: delivery failed key=%s: %v", string(m.Key), m.TopicPartition.Error)
		}
	}
	close(p.done)
}

// Publish enqueues value on the topic keyed by key. Messages with the same
// key land on the same partition, preserving per-recipient order.
func (p *Publisher) Publish(_ context.Context, key string, value []byte) error {
	err := p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &p.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(key),
		Value: value,
	}, nil)
	if err != nil {
		return fmt.Errorf("broker: produce: %w", err)
	}
	return nil
}

// Close flushes outstanding messages and shuts the producer down.
func (p *Publisher) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
	<-p.done
}

// EnsureTopic creates the topic and its dead-letter twin with the given
// partition count. Existing topics are left untouched. The DLT mirrors the
// partition count so dead-lettered messages keep their partition number.
func EnsureTopic(brokers, topic string, partitions int) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return fmt.Errorf("broker: create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{Topic: topic, NumPartitions: partitions, ReplicationFactor: 1},
		{Topic: topic + DLTSuffix, NumPartitions: partitions, ReplicationFactor: 1},
	})
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("broker: create topic %s: %v", r.Topic, r.Error)
		}
	}
	return nil
}
