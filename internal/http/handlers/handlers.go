// Package handlers implements the marketplace HTTP endpoints: interests,
// direct messages, conversation rosters and notifications.
//
// Handlers are transport-thin. They parse path ids and JSON bodies, read the
// caller id resolved by middleware.Authenticate, delegate to the services
// and translate service errors through failService.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/campus-market-backend/internal/domain"
	"github.com/tbourn/campus-market-backend/internal/http/middleware"
	"github.com/tbourn/campus-market-backend/internal/services"
	"github.com/tbourn/campus-market-backend/internal/utils"
)

// InterestService is the interest ledger as seen by the HTTP layer.
type InterestService interface {
	Toggle(ctx context.Context, callerID, productID uint) (services.ToggleResult, error)
	Count(ctx context.Context, productID uint) (int64, error)
	Status(ctx context.Context, callerID, productID uint) (bool, error)
	ListForUser(ctx context.Context, callerID uint) ([]services.InterestedProduct, error)
	MyListings(ctx context.Context, callerID uint) ([]services.ListingCount, error)
	MarkSeen(ctx context.Context, callerID uint) (int64, error)
	UnseenCount(ctx context.Context, callerID uint) (int64, error)
}

// MessageService is the messaging ledger as seen by the HTTP layer.
type MessageService interface {
	Send(ctx context.Context, callerID, receiverID uint, text string) (*domain.Message, error)
	SendOnce(ctx context.Context, callerID, receiverID uint, text, scope, key string) (*domain.Message, bool, error)
	Conversation(ctx context.Context, callerID, counterpartID uint) (*services.Conversation, error)
	ConversationTag(ctx context.Context, callerID, counterpartID uint) (string, error)
	MarkRead(ctx context.Context, callerID, senderID uint) (int64, error)
	UnreadCount(ctx context.Context, callerID uint) (int64, error)
	Replay(ctx context.Context, callerID uint, scope, key string) (*domain.Message, bool, error)
}

// ConversationService builds the caller's conversation roster.
type ConversationService interface {
	List(ctx context.Context, callerID uint) ([]services.ConversationSummary, error)
}

// NotificationService reads the caller's notifications.
type NotificationService interface {
	List(ctx context.Context, callerID uint) ([]domain.Notification, error)
}

// Handlers groups the HTTP endpoints. Fields are interfaces so tests can
// substitute fakes.
type Handlers struct {
	interests     InterestService
	messages      MessageService
	conversations ConversationService
	notifications NotificationService
}

// New constructs a Handlers bound to the given services.
func New(interests InterestService, messages MessageService, conversations ConversationService, notifications NotificationService) *Handlers {
	return &Handlers{
		interests:     interests,
		messages:      messages,
		conversations: conversations,
		notifications: notifications,
	}
}

// caller returns the authenticated user id or writes 401 and reports false.
// Routes are normally guarded by middleware.RequireUser already.
func caller(c *gin.Context) (uint, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return 0, false
	}
	return id, true
}

// pathID parses a positive integer path parameter. Anything else is a 404,
// as an integer-typed route would not have matched.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, ok := utils.ParseID(c.Param(name))
	if !ok {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found")
		return 0, false
	}
	return id, true
}
