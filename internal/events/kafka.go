package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic, keyed by recipient so all
// events for one user land on the same partition.
type KafkaPublisher struct {
	w     messageWriter
	topic string
}

// NewKafkaPublisher creates a synchronous writer acknowledged by all replicas.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
	return &KafkaPublisher{w: w, topic: topic}
}

// Publish sends ev with the current trace context carried in message headers.
func (p *KafkaPublisher) Publish(ctx context.Context, ev NotificationEvent) error {
	ctx, span := otel.Tracer("events/kafka").Start(ctx, "kafka.publish.notification_created",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", p.topic),
			attribute.Int64("notification.id", int64(ev.NotificationID)),
			attribute.Int64("recipient.id", int64(ev.RecipientID)),
		),
	)
	defer span.End()

	body, err := encode(&ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal")
		return err
	}

	// Inject trace context into Kafka headers
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(ev.EventType)},
		{Key: "event_id", Value: []byte(ev.EventID)},
	}
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Key:     []byte(strconv.FormatUint(uint64(ev.RecipientID), 10)),
		Value:   body,
		Headers: headers,
		Time:    ev.CreatedAt,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write")
		return fmt.Errorf("events: kafka write: %w", err)
	}
	return nil
}

// Close flushes pending writes and releases connections.
func (p *KafkaPublisher) Close() error { return p.w.Close() }
