package handlers

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/campus-market-backend/internal/domain"
	"github.com/tbourn/campus-market-backend/internal/services"
)

const sendPath = "/api/v1/send_message"

func TestSendMessage_Created(t *testing.T) {
	f := newFixture(t)

	w := f.do(call{method: http.MethodPost, path: sendPath, user: "1", body: `{"receiver_id":2,"message":"hello"}`})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	got := decode[SendMessageResponse](t, w)
	assert.True(t, got.Success)
	assert.Equal(t, "Message sent successfully!", got.Message)
	require.NotNil(t, got.Data)
	assert.Equal(t, uint(1), got.Data.SenderID)
	assert.Equal(t, uint(2), got.Data.ReceiverID)
	assert.Equal(t, "hello", got.Data.Message)
	assert.False(t, got.Data.IsRead)
	assert.Empty(t, w.Header().Get(HeaderIdempotencyReplayed))
}

func TestSendMessage_RejectsNonJSON(t *testing.T) {
	f := newFixture(t)

	w := f.do(call{
		method:  http.MethodPost,
		path:    sendPath,
		user:    "1",
		body:    "receiver_id=2&message=hi",
		headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
	})
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, ErrCodeUnsupportedMedia, decode[ErrorResponse](t, w).Code)
	assert.Empty(t, f.messages.sent)
}

func TestSendMessage_MalformedBody(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{`{`, `{"receiver_id":"two","message":"hi"}`, `{"receiver_id":-1,"message":"hi"}`} {
		w := f.do(call{method: http.MethodPost, path: sendPath, user: "1", body: body})
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Empty(t, f.messages.sent)
}

func TestSendMessage_ServiceErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{services.ErrEmptyMessage, http.StatusBadRequest},
		{services.ErrReceiverRequired, http.StatusBadRequest},
		{services.ErrMessageTooLong, http.StatusBadRequest},
		{services.ErrSelfMessage, http.StatusForbidden},
		{services.ErrReceiverNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		f := newFixture(t)
		f.messages.sendErr = tc.err
		w := f.do(call{method: http.MethodPost, path: sendPath, user: "1", body: `{"receiver_id":2,"message":"x"}`})
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
		assert.Equal(t, tc.err.Error(), decode[ErrorResponse](t, w).Message)
	}
}

func TestSendMessage_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	req := call{
		method:  http.MethodPost,
		path:    sendPath,
		user:    "1",
		body:    `{"receiver_id":2,"message":"only once"}`,
		headers: map[string]string{"Idempotency-Key": "k-123"},
	}

	first := f.do(req)
	require.Equal(t, http.StatusCreated, first.Code)
	second := f.do(req)
	require.Equal(t, http.StatusCreated, second.Code)

	assert.Len(t, f.messages.sent, 1, "retry must not send twice")
	assert.Equal(t, "true", second.Header().Get(HeaderIdempotencyReplayed))
	assert.Equal(t, decode[SendMessageResponse](t, first).Data.ID, decode[SendMessageResponse](t, second).Data.ID)

	// Another user with the same key gets their own message.
	req.user = "3"
	third := f.do(req)
	require.Equal(t, http.StatusCreated, third.Code)
	assert.Len(t, f.messages.sent, 2)
	assert.Empty(t, third.Header().Get(HeaderIdempotencyReplayed))
}

func TestSendMessage_LostClaimIsReplayed(t *testing.T) {
	f := newFixture(t)
	f.messages.lostClaim = &domain.Message{ID: 41, SenderID: 1, ReceiverID: 2, Message: "hi"}

	w := f.do(call{
		method:  http.MethodPost,
		path:    sendPath,
		user:    "1",
		body:    `{"receiver_id":2,"message":"hi"}`,
		headers: map[string]string{"Idempotency-Key": "k-9"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "true", w.Header().Get(HeaderIdempotencyReplayed))
	assert.Equal(t, uint(41), decode[SendMessageResponse](t, w).Data.ID)
	assert.Empty(t, f.messages.sent)
}

func TestSendMessage_KeyInFlightConflict(t *testing.T) {
	f := newFixture(t)
	f.messages.sendErr = services.ErrIdempotencyInFlight

	w := f.do(call{
		method:  http.MethodPost,
		path:    sendPath,
		user:    "1",
		body:    `{"receiver_id":2,"message":"hi"}`,
		headers: map[string]string{"Idempotency-Key": "k-10"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ErrCodeConflict, decode[ErrorResponse](t, w).Code)
}

func TestSendMessage_BadIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	w := f.do(call{
		method:  http.MethodPost,
		path:    sendPath,
		user:    "1",
		body:    `{"receiver_id":2,"message":"hi"}`,
		headers: map[string]string{"Idempotency-Key": "bad key!"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.messages.sent)
}

func TestGetConversation_BodyAndETag(t *testing.T) {
	f := newFixture(t)
	f.messages.tag = `W/"conversation:1:2:1:1714564800000000000:1"`
	f.messages.conv = &services.Conversation{
		Messages: []services.ConversationMessage{
			{ID: 1, Sender: "You", SenderID: 1, Message: "hi bob", Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		},
		UnreadCount: 1,
	}

	w := f.do(call{method: http.MethodGet, path: "/api/v1/2", user: "1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, f.messages.tag, w.Header().Get("ETag"))
	got := decode[services.Conversation](t, w)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "You", got.Messages[0].Sender)
	assert.Equal(t, int64(1), got.UnreadCount)
	assert.Equal(t, uint(1), f.messages.gotCaller)
	assert.Equal(t, uint(2), f.messages.gotOther)

	w = f.do(call{method: http.MethodGet, path: "/api/v1/2", user: "1", headers: map[string]string{"If-None-Match": f.messages.tag}})
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Zero(t, w.Body.Len())
	assert.Equal(t, 1, f.messages.convCalls, "304 skips the conversation query")
}

func TestGetConversation_TagErrorFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.messages.tagErr = errors.New("tag query failed")
	f.messages.conv = &services.Conversation{Messages: []services.ConversationMessage{}}

	w := f.do(call{method: http.MethodGet, path: "/api/v1/2", user: "1", headers: map[string]string{"If-None-Match": `W/"x"`}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("ETag"))
	assert.JSONEq(t, `{"messages":[],"unread_count":0}`, w.Body.String())
}

func TestGetConversation_StaticRoutesWin(t *testing.T) {
	f := newFixture(t)
	f.conversations.chats = []services.ConversationSummary{{UserID: 2, Username: "bob", UnreadCount: 1}}
	f.messages.unread = 5

	w := f.do(call{method: http.MethodGet, path: "/api/v1/history", user: "1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"chats":[{"user_id":2,"username":"bob","unread_count":1}]}`, w.Body.String())

	w = f.do(call{method: http.MethodGet, path: "/api/v1/unread_count", user: "1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unread_count":5}`, w.Body.String())

	assert.Zero(t, f.messages.convCalls)

	w = f.do(call{method: http.MethodGet, path: "/api/v1/not-a-user", user: "1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkMessagesRead(t *testing.T) {
	f := newFixture(t)
	f.messages.marked = 2

	w := f.do(call{method: http.MethodPost, path: "/api/v1/mark_read/1", user: "2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"message":"Messages marked as read","updated":2}`, w.Body.String())
	assert.Equal(t, uint(2), f.messages.gotCaller)
	assert.Equal(t, uint(1), f.messages.gotOther)
}

func TestListConversations_Error(t *testing.T) {
	f := newFixture(t)
	f.conversations.err = errors.New("db down")

	w := f.do(call{method: http.MethodGet, path: "/api/v1/history", user: "1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decode[ErrorResponse](t, w).Message)
}
