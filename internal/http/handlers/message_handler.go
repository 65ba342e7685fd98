// Message HTTP handlers.
//
// This file exposes the direct-messaging endpoints:
//   - POST /send_message             send a message (JSON only)
//   - GET  /{receiver_id}            conversation with one counterpart
//   - POST /mark_read/{sender_id}    mark a counterpart's messages read
//   - GET  /history                  conversation roster
//   - GET  /unread_count             unread total
//
// Idempotency: when the client sends an Idempotency-Key and the validator
// middleware found a stored result for the same caller and route, the stored
// message is returned again with `Idempotency-Replayed: true` instead of
// sending a duplicate.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/campus-market-backend/internal/domain"
	"github.com/tbourn/campus-market-backend/internal/http/middleware"
	"github.com/tbourn/campus-market-backend/internal/services"
)

// HeaderIdempotencyReplayed marks a response served from a stored result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// SendMessageRequest is the JSON payload for sending a direct message.
type SendMessageRequest struct {
	ReceiverID uint   `json:"receiver_id" example:"2"`
	Message    string `json:"message" example:"Is the desk lamp still available?"`
}

// SendMessageResponse confirms a stored message.
type SendMessageResponse struct {
	Success bool            `json:"success" example:"true"`
	Message string          `json:"message" example:"Message sent successfully!"`
	Data    *domain.Message `json:"data"`
}

// MarkReadResponse reports how many messages were marked read.
type MarkReadResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Messages marked as read"`
	Updated int64  `json:"updated" example:"2"`
}

// ConversationsResponse is the caller's conversation roster.
type ConversationsResponse struct {
	Chats []services.ConversationSummary `json:"chats"`
}

// UnreadCountResponse carries the caller's unread message total.
type UnreadCountResponse struct {
	UnreadCount int64 `json:"unread_count" example:"1"`
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a direct message
// @Description Stores a message from the caller to receiver_id. Text is normalized (CRLF to LF, NFC, trimmed) before validation.
// @Description Supports safe retries via the Idempotency-Key header: the key is claimed in the same transaction as the message,
// @Description so concurrent retries store one message and the rest replay it with Idempotency-Replayed: true.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.SendMessageRequest  true  "Message payload"
// @Success     201  {object}  handlers.SendMessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing or invalid fields"
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     403  {object}  handlers.ErrorResponse  "Message to self"
// @Failure     404  {object}  handlers.ErrorResponse  "Receiver not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Idempotency-Key claimed by a request still in flight"
// @Failure     415  {object}  handlers.ErrorResponse  "Body is not JSON"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /send_message [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	if c.ContentType() != gin.MIMEJSON {
		fail(c, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia, "Content-Type must be application/json")
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "receiver_id and message are required")
		return
	}

	ctx := c.Request.Context()
	scope := c.FullPath()
	key, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey && middleware.IsReplay(c) {
		prev, found, err := h.messages.Replay(ctx, uid, scope, key)
		if err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency replay lookup failed")
		}
		if found {
			c.Header(HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusCreated, sentResponse(prev))
			return
		}
	}

	var (
		m        *domain.Message
		replayed bool
		err      error
	)
	if hasKey {
		m, replayed, err = h.messages.SendOnce(ctx, uid, req.ReceiverID, req.Message, scope, key)
	} else {
		m, err = h.messages.Send(ctx, uid, req.ReceiverID, req.Message)
	}
	if err != nil {
		failService(c, err)
		return
	}
	if replayed {
		c.Header(HeaderIdempotencyReplayed, "true")
	}
	ok(c, http.StatusCreated, sentResponse(m))
}

func sentResponse(m *domain.Message) SendMessageResponse {
	return SendMessageResponse{Success: true, Message: "Message sent successfully!", Data: m}
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Conversation with one user
// @Description Messages between the caller and receiver_id, oldest first; the caller's own messages are labelled "You".
// @Description unread_count is the caller's unread total across all senders. Supports If-None-Match.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       receiver_id    path    int     true   "Counterpart user ID"  minimum(1)
// @Param       If-None-Match  header  string  false  "ETag from a previous response"
// @Success     200  {object}  services.Conversation
// @Success     304  "Not modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     404  {object}  handlers.ErrorResponse  "Malformed id"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /{receiver_id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	other, okID := pathID(c, "receiver_id")
	if !okID {
		return
	}
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if etag, err := h.messages.ConversationTag(ctx, uid, other); err == nil {
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	conv, err := h.messages.Conversation(ctx, uid, other)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// MarkMessagesRead godoc
// @ID          markMessagesRead
// @Summary     Mark messages from a sender as read
// @Description Only messages sent by sender_id to the caller are affected.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       sender_id  path  int  true  "Sender user ID"  minimum(1)
// @Success     200  {object}  handlers.MarkReadResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     404  {object}  handlers.ErrorResponse  "Malformed id"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /mark_read/{sender_id} [post]
func (h *Handlers) MarkMessagesRead(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	sender, okID := pathID(c, "sender_id")
	if !okID {
		return
	}
	n, err := h.messages.MarkRead(c.Request.Context(), uid, sender)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Success: true, Message: "Messages marked as read", Updated: n})
}

// ListConversations godoc
// @ID          listConversations
// @Summary     Conversation roster
// @Description Every user the caller has exchanged messages with, once each, ordered by user id.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ConversationsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /history [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	chats, err := h.conversations.List(c.Request.Context(), uid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ConversationsResponse{Chats: chats})
}

// UnreadCount godoc
// @ID          unreadCount
// @Summary     Unread message total
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.UnreadCountResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /unread_count [get]
func (h *Handlers) UnreadCount(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	n, err := h.messages.UnreadCount(c.Request.Context(), uid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, UnreadCountResponse{UnreadCount: n})
}
