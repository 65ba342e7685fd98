package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// redisPublisher is the subset of *redis.Client the publisher needs.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes each event on a per-recipient channel
// "<prefix>:<recipient_id>", so a user's open sessions can subscribe to
// exactly their own stream.
type RedisPublisher struct {
	rdb    redisPublisher
	prefix string
}

// NewRedisPublisher connects lazily; the first Publish dials.
func NewRedisPublisher(addr, password string, db int, prefix string) *RedisPublisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

// Channel returns the pub/sub channel for a recipient.
func (p *RedisPublisher) Channel(recipientID uint) string {
	return fmt.Sprintf("%s:%d", p.prefix, recipientID)
}

// Publish sends ev as JSON on the recipient's channel.
func (p *RedisPublisher) Publish(ctx context.Context, ev NotificationEvent) error {
	channel := p.Channel(ev.RecipientID)
	ctx, span := otel.Tracer("events/redis").Start(ctx, "redis.publish.notification_created",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "redis"),
			attribute.String("messaging.destination", channel),
			attribute.Int64("notification.id", int64(ev.NotificationID)),
		),
	)
	defer span.End()

	body, err := encode(&ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal")
		return err
	}
	if err := p.rdb.Publish(ctx, channel, body).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish")
		return fmt.Errorf("events: redis publish: %w", err)
	}
	return nil
}

// Close releases the client's connection pool.
func (p *RedisPublisher) Close() error { return p.rdb.Close() }
