package services

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/campus-market-backend/internal/repo"
)

// ConversationSummary is one counterpart in the caller's roster.
type ConversationSummary struct {
	UserID      uint   `json:"user_id"`
	Username    string `json:"username"`
	UnreadCount int64  `json:"unread_count"`
}

// ConversationService derives conversation rosters from the messaging ledger.
type ConversationService struct {
	DB *gorm.DB
}

// List returns every user the caller has sent a message to or received one
// from, exactly once each, with the number of unread messages from them.
// Entries are ordered by ascending user id. Counterparts whose account no
// longer resolves keep an empty username.
func (s *ConversationService) List(ctx context.Context, callerID uint) ([]ConversationSummary, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "List",
		trace.WithAttributes(attribute.Int64("user.id", int64(callerID))),
	)
	defer span.End()

	ids, err := repo.CounterpartIDs(ctx, s.DB, callerID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []ConversationSummary{}, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	unread, err := repo.UnreadBySender(ctx, s.DB, callerID)
	if err != nil {
		return nil, err
	}
	names, err := repo.UsernamesByID(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ConversationSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, ConversationSummary{
			UserID:      id,
			Username:    names[id],
			UnreadCount: unread[id],
		})
	}
	span.SetAttributes(attribute.Int("conversations", len(out)))
	return out, nil
}
