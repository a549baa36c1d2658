package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mamadbah2/packflow/internal/domain/models"
)

// MessageWriter is the subset of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes each event once, keyed by its reference id so events of the
// same request stay ordered within a partition.
type KafkaSink struct {
	writer MessageWriter
}

var _ Sink = (*KafkaSink)(nil)

// NewKafkaSink wraps writer.
func NewKafkaSink(writer MessageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

// NewKafkaWriter builds a writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

type eventEnvelope struct {
	models.Event
	Recipients []string `json:"recipients"`
}

// Name identifies the sink in logs.
func (k *KafkaSink) Name() string { return "kafka" }

// Deliver publishes the event with its resolved recipient ids.
func (k *KafkaSink) Deliver(ctx context.Context, event models.Event, recipients []models.User) error {
	env := eventEnvelope{Event: event, Recipients: make([]string, 0, len(recipients))}
	for _, u := range recipients {
		env.Recipients = append(env.Recipients, u.ID)
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.ReferenceID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}
