package broker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/ideahub/chat-service/internal/metrics"
)

// RetryPolicy defines the exponential backoff applied to retryable handler
// failures before a message is dead-lettered.
type RetryPolicy struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	MaxRetries   int
}

// DefaultRetryPolicy is the subsystem-wide recovery policy: 1s initial delay
// doubling up to a 15s cap, five retries, then the dead-letter topic.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     15 * time.Second,
		MaxRetries:   5,
	}
}

// Delay returns the backoff before the given retry (1-based), capped at
// MaxDelay.
func (p RetryPolicy) Delay(retry int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < retry; i++ {
		d *= p.Multiplier
	}
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Handler processes one consumed message. Returning nil commits the offset.
// Errors wrapped with NonRetryable dead-letter immediately; any other error
// is retried per the policy and dead-lettered on exhaustion.
type Handler func(ctx context.Context, key, value []byte) error

// PipelineConfig holds the Kafka consumer-group settings for a pipeline.
type PipelineConfig struct {
	Brokers         string
	Topic           string
	GroupID         string
	AutoOffsetReset string // "earliest" or "latest"
	Policy          RetryPolicy
}

// Pipeline wraps durable-log consumption with the uniform retry/recovery
// policy. Offsets are committed manually, and only after the handler (or the
// dead-letter produce) has succeeded, trading possible duplicate delivery for
// zero silent loss.
type Pipeline struct {
	consumer *kafka.Consumer
	producer *kafka.Producer
	topic    string
	dlt      string
	policy   RetryPolicy
	handler  Handler
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPipeline creates a consumer-group pipeline for cfg.Topic whose failures
// drain to cfg.Topic + ".DLT".
func NewPipeline(cfg PipelineConfig, handler Handler) (*Pipeline, error) {
	if cfg.AutoOffsetReset == "" {
		cfg.AutoOffsetReset = "earliest"
	}
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.GroupID,
		"auto.offset.reset":  cfg.AutoOffsetReset,
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("broker: create consumer: %w", err)
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "all",
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("broker: create DLT producer: %w", err)
	}

	return &Pipeline{
		consumer: c,
		producer: p,
		topic:    cfg.Topic,
		dlt:      cfg.Topic + DLTSuffix,
		policy:   cfg.Policy,
		handler:  handler,
		sleep:    sleepCtx,
	}, nil
}

// Run subscribes and consumes until ctx is cancelled or a fatal broker error
// occurs. Each message is fully resolved (handled, or dead-lettered) before
// its offset is committed and the next message is processed.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.consumer.Subscribe(p.topic, nil); err != nil {
		return fmt.Errorf("broker: subscribe %s: %w", p.topic, err)
	}
	log.Printf("broker: pipeline started topic=%s dlt=%s", p.topic, p.dlt)

	for {
		select {
		case <-ctx.Done():
			log.Printf("broker: pipeline stopping topic=%s", p.topic)
			return nil
		default:
		}

		ev := p.consumer.Poll(500)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			if err := p.processMessage(ctx, e); err != nil {
				// Dead-letter produce failed: leave the offset uncommitted
				// so the message is redelivered rather than silently lost.
				log.Printf("broker: dead-letter failed partition=%d offset=%v: %v",
					e.TopicPartition.Partition, e.TopicPartition.Offset, err)
				continue
			}
			if _, err := p.consumer.CommitMessage(e); err != nil {
				log.Printf("broker: commit failed partition=%d offset=%v: %v",
					e.TopicPartition.Partition, e.TopicPartition.Offset, err)
			}
		case kafka.Error:
			log.Printf("broker: kafka error: %v (code=%d fatal=%v)", e, e.Code(), e.IsFatal())
			if e.IsFatal() {
				return fmt.Errorf("broker: fatal kafka error: %w", e)
			}
		default:
			// Rebalance and stats events need no action.
		}
	}
}

// processMessage runs the handler with retries and dead-letters terminal
// failures. It returns an error only when the dead-letter produce itself
// failed, meaning the offset must not be committed.
func (p *Pipeline) processMessage(ctx context.Context, msg *kafka.Message) error {
	err := p.runWithRetry(ctx, string(msg.Key), msg.Value)
	if err == nil {
		return nil
	}
	if IsNonRetryable(err) {
		log.Printf("broker: non-retryable failure key=%s: %v (dead-lettering)", string(msg.Key), err)
	} else {
		log.Printf("broker: retries exhausted key=%s: %v (dead-lettering)", string(msg.Key), err)
	}
	return p.deadLetter(msg)
}

// runWithRetry invokes the handler, applying the backoff policy to retryable
// failures. Non-retryable failures return immediately without consuming
// retry attempts.
func (p *Pipeline) runWithRetry(ctx context.Context, key string, value []byte) error {
	err := p.handler(ctx, []byte(key), value)
	if err == nil || IsNonRetryable(err) {
		return err
	}

	for retry := 1; retry <= p.policy.MaxRetries; retry++ {
		delay := p.policy.Delay(retry)
		log.Printf("broker: handler failed key=%s attempt=%d: %v (retrying in %s)", key, retry, err, delay)
		metrics.ConsumerRetries.Inc()

		if serr := p.sleep(ctx, delay); serr != nil {
			return err
		}
		err = p.handler(ctx, []byte(key), value)
		if err == nil || IsNonRetryable(err) {
			return err
		}
	}
	return err
}

// deadLetter produces msg to the dead-letter topic on the same partition
// number and waits for the delivery report.
func (p *Pipeline) deadLetter(msg *kafka.Message) error {
	deliveryCh := make(chan kafka.Event, 1)
	err := p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &p.dlt,
			Partition: msg.TopicPartition.Partition,
		},
		Key:   msg.Key,
		Value: msg.Value,
	}, deliveryCh)
	if err != nil {
		return fmt.Errorf("broker: DLT produce: %w", err)
	}

	ev := <-deliveryCh
	if m, ok := ev.(*kafka.Message); ok && m.TopicPartition.Error != nil {
		return fmt.Errorf("broker: DLT delivery: %w", m.TopicPartition.Error)
	}

	metrics.DeadLettered.Inc()
	log.Printf("broker: dead-lettered key=%s partition=%d", string(msg.Key), msg.TopicPartition.Partition)
	return nil
}

// Close shuts down the consumer and the dead-letter producer.
func (p *Pipeline) Close() {
	if err := p.consumer.Close(); err != nil {
		log.Printf("broker: consumer close: %v", err)
	}
	p.producer.Flush(5000)
	p.producer.Close()
}

// sleepCtx sleeps for d unless ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
