// Package services – MessageService
//
// This file implements the messaging ledger: directed messages between two
// users, their read state, and the unread counters derived from them. It
// validates and normalizes text, enforces the no-self-message and
// receiver-must-exist rules, and supports Idempotency-Key replays for send.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// carry the caller and counterpart identifiers.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/campus-market-backend/internal/domain"
	"github.com/tbourn/campus-market-backend/internal/repo"
)

const (
	// selfLabel replaces the sender name on the caller's own messages.
	selfLabel = "You"

	defaultIdempotencyTTL = 24 * time.Hour

	// sentStatus is the HTTP status recorded with an idempotency claim.
	sentStatus = 201
)

// ConversationMessage is one entry of a conversation as seen by the caller.
type ConversationMessage struct {
	ID        uint      `json:"id"`
	Sender    string    `json:"sender"`
	SenderID  uint      `json:"sender_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
}

// Conversation is the chronological exchange between the caller and one
// counterpart, plus the caller's unread total across all senders.
type Conversation struct {
	Messages    []ConversationMessage `json:"messages"`
	UnreadCount int64                 `json:"unread_count"`
}

// MessageService coordinates message persistence and read-state tracking.
type MessageService struct {
	DB *gorm.DB

	// MaxMessageRunes caps the normalized text length. <= 0 disables the cap.
	MaxMessageRunes int

	// IdempotencyTTL is how long a send can be replayed by Idempotency-Key.
	IdempotencyTTL time.Duration
}

// Send validates and stores a message from callerID to receiverID.
//
// Validation order: text (empty, too long), receiver presence, self-message,
// then receiver existence.
func (s *MessageService) Send(ctx context.Context, callerID, receiverID uint, text string) (*domain.Message, error) {
	m, _, err := s.send(ctx, callerID, receiverID, text, "", "")
	return m, err
}

// SendOnce is Send guarded by an Idempotency-Key. The key is claimed in the
// same transaction that stores the message, so concurrent retries carrying
// one key store at most one message. A caller that loses the claim gets the
// winner's message back with replayed=true.
func (s *MessageService) SendOnce(ctx context.Context, callerID, receiverID uint, text, scope, key string) (msg *domain.Message, replayed bool, err error) {
	return s.send(ctx, callerID, receiverID, text, scope, key)
}

func (s *MessageService) send(ctx context.Context, callerID, receiverID uint, text, scope, key string) (*domain.Message, bool, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(callerID)),
			attribute.Int64("receiver.id", int64(receiverID)),
			attribute.Bool("idempotency.keyed", key != ""),
		),
	)
	defer span.End()

	text = SanitizeText(text)
	if text == "" {
		return nil, false, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(text) > s.MaxMessageRunes {
		return nil, false, ErrMessageTooLong
	}
	if receiverID == 0 {
		return nil, false, ErrReceiverRequired
	}
	if receiverID == callerID {
		return nil, false, ErrSelfMessage
	}

	var out *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetUser(ctx, tx, receiverID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrReceiverNotFound
			}
			return err
		}
		now := time.Now().UTC()
		m, err := repo.CreateMessage(ctx, tx, callerID, receiverID, text, now)
		if err != nil {
			return err
		}
		if key != "" {
			// An expired claim still holds the unique slot until the sweeper runs.
			if _, err := repo.ReleaseExpiredIdempotency(ctx, tx, callerID, scope, key, now); err != nil {
				return err
			}
			if _, err := repo.CreateIdempotency(ctx, tx, callerID, scope, key, m.ID, sentStatus, s.idempotencyTTL()); err != nil {
				return err
			}
		}
		out = m
		return nil
	})
	if key != "" && errors.Is(err, repo.ErrDuplicate) {
		prev, found, rerr := s.Replay(ctx, callerID, scope, key)
		switch {
		case rerr != nil:
			err = rerr
		case found:
			span.SetAttributes(attribute.Bool("idempotency.replayed", true))
			return prev, true, nil
		default:
			err = ErrIdempotencyInFlight
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}

	messagesSent.Inc()
	return out, false, nil
}

// Conversation returns every message between callerID and counterpartID in
// chronological order, labelling the caller's own messages "You". An unknown
// counterpart yields an empty conversation.
func (s *MessageService) Conversation(ctx context.Context, callerID, counterpartID uint) (*Conversation, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Conversation",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(callerID)),
			attribute.Int64("counterpart.id", int64(counterpartID)),
		),
	)
	defer span.End()

	rows, err := repo.ListConversation(ctx, s.DB, callerID, counterpartID)
	if err != nil {
		return nil, err
	}
	unread, err := repo.CountUnread(ctx, s.DB, callerID)
	if err != nil {
		return nil, err
	}

	msgs := make([]ConversationMessage, 0, len(rows))
	for _, r := range rows {
		label := r.SenderUsername
		switch {
		case r.SenderID == callerID:
			label = selfLabel
		case label == "":
			label = fmt.Sprintf("user #%d", r.SenderID)
		}
		msgs = append(msgs, ConversationMessage{
			ID:        r.ID,
			Sender:    label,
			SenderID:  r.SenderID,
			Message:   r.Message,
			Timestamp: r.Timestamp,
			IsRead:    r.IsRead,
		})
	}
	return &Conversation{Messages: msgs, UnreadCount: unread}, nil
}

// ConversationTag returns a weak ETag that changes whenever the conversation
// payload for callerID would change: a new message in the pair, a read-state
// flip, or a change in the caller's overall unread total.
func (s *MessageService) ConversationTag(ctx context.Context, callerID, counterpartID uint) (string, error) {
	count, read, last, err := repo.ConversationStats(ctx, s.DB, callerID, counterpartID)
	if err != nil {
		return "", err
	}
	unread, err := repo.CountUnread(ctx, s.DB, callerID)
	if err != nil {
		return "", err
	}
	var ts int64
	if last != nil {
		ts = last.UnixNano()
	}
	return fmt.Sprintf(`W/"conversation:%d:%d:%d:%d:%d:%d"`, callerID, counterpartID, count, read, unread, ts), nil
}

// MarkRead flips every unread message from senderID to callerID and returns
// how many changed. Messages in the other direction are untouched.
func (s *MessageService) MarkRead(ctx context.Context, callerID, senderID uint) (int64, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(callerID)),
			attribute.Int64("sender.id", int64(senderID)),
		),
	)
	defer span.End()

	var updated int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := repo.MarkMessagesRead(ctx, tx, senderID, callerID)
		updated = n
		return err
	})
	if err != nil {
		return 0, err
	}
	messagesMarkedRead.Add(float64(updated))
	return updated, nil
}

// UnreadCount returns the caller's unread messages across all senders.
func (s *MessageService) UnreadCount(ctx context.Context, callerID uint) (int64, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "UnreadCount",
		trace.WithAttributes(attribute.Int64("user.id", int64(callerID))),
	)
	defer span.End()

	return repo.CountUnread(ctx, s.DB, callerID)
}

// Replay returns the message previously created for (callerID, scope, key)
// while its idempotency window is open. found is false when there is nothing
// to replay.
func (s *MessageService) Replay(ctx context.Context, callerID uint, scope, key string) (msg *domain.Message, found bool, err error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, callerID, scope, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	m, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func (s *MessageService) idempotencyTTL() time.Duration {
	if s.IdempotencyTTL <= 0 {
		return defaultIdempotencyTTL
	}
	return s.IdempotencyTTL
}

// SanitizeText normalizes user text: CRLF/CR become LF, the result is NFC
// normalized and surrounding whitespace is trimmed.
func SanitizeText(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = norm.NFC.String(s)
	return strings.TrimSpace(s)
}
