package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/campus-market-backend/internal/domain"
)

// NotificationsResponse lists the caller's notifications, newest first.
type NotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     The caller's notifications
// @Description Newest first. Read-only; notifications are created by interest toggles.
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.NotificationsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	items, err := h.notifications.List(c.Request.Context(), uid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, NotificationsResponse{Notifications: items})
}
