// Package events publishes domain events after their database transaction
// has committed. Delivery is best effort: the notification row is the source
// of truth and a failed publish never rolls it back.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/campus-market-backend/internal/config"
)

// EventTypeNotificationCreated marks a new row in the notification store.
const EventTypeNotificationCreated = "notification.created"

// NotificationEvent is the wire payload for EventTypeNotificationCreated.
type NotificationEvent struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	NotificationID uint      `json:"notification_id"`
	RecipientID    uint      `json:"recipient_id"`
	ActorID        uint      `json:"actor_id"`
	ProductID      uint      `json:"product_id"`
	Message        string    `json:"message"`
	Link           *string   `json:"link,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Publisher fans notification events out to an external broker.
type Publisher interface {
	Publish(ctx context.Context, ev NotificationEvent) error
	Close() error
}

// New builds the publisher selected by cfg.Sink.
func New(cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Sink {
	case "", "none":
		return NopPublisher{}, nil
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "redis":
		return NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("events: unknown sink %q", cfg.Sink)
	}
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, NotificationEvent) error { return nil }
func (NopPublisher) Close() error                                   { return nil }

// encode stamps the event metadata and marshals it.
func encode(ev *NotificationEvent) ([]byte, error) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	ev.EventType = EventTypeNotificationCreated
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("events: marshal: %w", err)
	}
	return b, nil
}
