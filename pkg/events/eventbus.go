package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event is the envelope published on node lifecycle transitions.
type Event struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	AggregateID   string                 `json:"aggregateId"`
	AggregateType string                 `json:"aggregateType"`
	Timestamp     time.Time              `json:"timestamp"`
	Payload       map[string]interface{} `json:"payload"`
}

type EventHandler func(ctx context.Context, event Event) error

type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType string, handler EventHandler) error
	Close() error
}

// Node lifecycle event types.
const (
	NodeExecutionStarted   = "node.execution.started"
	NodeExecutionCompleted = "node.execution.completed"
	NodeExecutionFailed    = "node.execution.failed"
	NodeExecutionRetried   = "node.execution.retried"
)

type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// KafkaEventBus publishes events to a Kafka topic and consumes them by
// event-type header.
type KafkaEventBus struct {
	config   KafkaConfig
	writer   *kafka.Writer
	mu       sync.Mutex
	readers  []*kafka.Reader
	cancelFn context.CancelFunc
	ctx      context.Context
}

func NewKafkaEventBus(config KafkaConfig) (*KafkaEventBus, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka event bus requires at least one broker")
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      config.Brokers,
		Topic:        config.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaEventBus{
		config:   config,
		writer:   writer,
		ctx:      ctx,
		cancelFn: cancel,
	}, nil
}

func (k *KafkaEventBus) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}

	return k.writer.WriteMessages(ctx, msg)
}

func (k *KafkaEventBus) Subscribe(eventType string, handler EventHandler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.config.Brokers,
		Topic:       k.config.Topic,
		GroupID:     k.config.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
		MaxWait:     time.Second,
	})

	k.mu.Lock()
	k.readers = append(k.readers, reader)
	k.mu.Unlock()

	go k.consume(reader, eventType, handler)
	return nil
}

func (k *KafkaEventBus) consume(reader *kafka.Reader, eventType string, handler EventHandler) {
	for {
		msg, err := reader.ReadMessage(k.ctx)
		if err != nil {
			return
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			continue
		}
		if event.Type != eventType {
			continue
		}

		// Handler errors are the subscriber's problem; the bus keeps going.
		_ = handler(k.ctx, event)
	}
}

func (k *KafkaEventBus) Close() error {
	k.cancelFn()

	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for _, reader := range k.readers {
		if err := reader.Close(); err != nil {
			return fmt.Errorf("failed to close reader: %w", err)
		}
	}
	return nil
}

// InMemoryEventBus dispatches events synchronously to subscribed handlers.
// Used in tests and single-process deployments.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	closed   bool
}

func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{handlers: make(map[string][]EventHandler)}
}

func (b *InMemoryEventBus) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("event bus is closed")
	}
	handlers := append([]EventHandler(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (b *InMemoryEventBus) Subscribe(eventType string, handler EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("event bus is closed")
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// EventBuilder assembles events fluently.
type EventBuilder struct {
	event Event
}

func NewEventBuilder(eventType string) *EventBuilder {
	return &EventBuilder{
		event: Event{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now().UTC(),
			Payload:   make(map[string]interface{}),
		},
	}
}

func (b *EventBuilder) WithAggregateID(id string) *EventBuilder {
	b.event.AggregateID = id
	return b
}

func (b *EventBuilder) WithAggregateType(aggregateType string) *EventBuilder {
	b.event.AggregateType = aggregateType
	return b
}

func (b *EventBuilder) WithPayload(key string, value interface{}) *EventBuilder {
	b.event.Payload[key] = value
	return b
}

func (b *EventBuilder) Build() Event {
	return b.event
}
