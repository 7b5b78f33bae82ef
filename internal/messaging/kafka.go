// Package messaging wraps the Kafka clients used for trigger and
// completion events.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Sender publishes JSON events; satisfied by Producer and by test fakes.
type Sender interface {
	Send(ctx context.Context, topic string, value any, key string) error
}

// Producer publishes JSON messages with full-ISR acknowledgement. Start is
// idempotent and serialised, so concurrent callers share one writer.
type Producer struct {
	mu      sync.Mutex
	brokers []string
	writer  *kafka.Writer
}

// NewProducer creates a producer for the given comma-separated broker list.
// The connection is established lazily on first Send.
func NewProducer(bootstrapServers string) *Producer {
	return &Producer{brokers: strings.Split(bootstrapServers, ",")}
}

// Start initialises the underlying writer if it is not running yet.
func (p *Producer) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startLocked()
}

func (p *Producer) startLocked() {
	if p.writer != nil {
		return
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		BatchBytes:   32 * 1024,
	}
	log.Printf("Kafka producer started: %s", strings.Join(p.brokers, ","))
}

// Send serialises value as JSON and publishes it, returning once the broker
// has acknowledged the write on all replicas.
func (p *Producer) Send(ctx context.Context, topic string, value any, key string) error {
	p.mu.Lock()
	p.startLocked()
	writer := p.writer
	p.mu.Unlock()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode message for %s: %w", topic, err)
	}
	msg := kafka.Message{Topic: topic, Value: data}
	if key != "" {
		msg.Key = []byte(key)
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("send message to %s: %w", topic, err)
	}
	log.Printf("Message sent to %s: %s", topic, data)
	return nil
}

// Stop flushes pending batches and releases the writer.
func (p *Producer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	log.Printf("Kafka producer stopped")
	return err
}

// Handler processes one message value. Returning nil advances the offset;
// an error is logged and the message stays uncommitted (at-least-once).
type Handler func(ctx context.Context, value []byte) error

// Consumer subscribes to one topic under a consumer group, starting from
// the earliest offset for a new group.
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// NewConsumer creates a consumer for the given topic and group.
func NewConsumer(bootstrapServers, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     strings.Split(bootstrapServers, ","),
		GroupID:     groupID,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10 * 1024 * 1024,
	})
	log.Printf("Kafka consumer started: topic=%s, group=%s", topic, groupID)
	return &Consumer{reader: reader, topic: topic}
}

// Consume invokes the handler once per message in partition order until ctx
// is cancelled. Offsets are committed only after the handler succeeds; an
// in-flight handler always completes before the loop exits.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	log.Printf("Starting to consume from %s...", c.topic)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fetch from %s: %w", c.topic, err)
		}
		if err := handler(ctx, msg.Value); err != nil {
			log.Printf("Error processing message from %s: %v", c.topic, err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("Warning: commit offset for %s: %v", c.topic, err)
		}
	}
}

// Close releases the reader; a blocked FetchMessage returns with an error.
func (c *Consumer) Close() error {
	log.Printf("Kafka consumer stopped: topic=%s", c.topic)
	return c.reader.Close()
}
