package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/campus-market-backend/internal/services"
)

// ToggleInterestResponse reports the toggle outcome.
type ToggleInterestResponse struct {
	Status  services.ToggleResult `json:"status" example:"added" enums:"added,removed"`
	Message string                `json:"message" example:"Interest added. Seller has been notified."`
}

// InterestCountResponse carries the live interest count of a product.
type InterestCountResponse struct {
	InterestCount int64 `json:"interest_count" example:"3"`
}

// InterestStatusResponse tells whether the caller is interested in a product.
type InterestStatusResponse struct {
	IsInterested bool `json:"is_interested"`
}

// InterestedProductsResponse lists the products the caller is interested in.
type InterestedProductsResponse struct {
	Products []services.InterestedProduct `json:"products"`
}

// MyListingsResponse lists the caller's products with interest counts.
type MyListingsResponse struct {
	Listings []services.ListingCount `json:"listings"`
}

// MarkSeenResponse reports how many interests were marked seen.
type MarkSeenResponse struct {
	Success bool  `json:"success"`
	Updated int64 `json:"updated"`
}

// UnseenCountResponse carries the unseen interest count on the caller's products.
type UnseenCountResponse struct {
	UnseenCount int64 `json:"unseen_count"`
}

var toggleMessages = map[services.ToggleResult]string{
	services.ToggleAdded:   "Interest added. Seller has been notified.",
	services.ToggleRemoved: "Interest removed.",
}

// ToggleInterest godoc
// @ID          toggleInterest
// @Summary     Toggle interest in a product
// @Description Adds the caller's interest if absent (notifying the seller) or removes it if present.
// @Tags        Interests
// @Produce     json
// @Security    BearerAuth
// @Param       product_id  path  int  true  "Product ID"  minimum(1)
// @Success     200  {object}  handlers.ToggleInterestResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     403  {object}  handlers.ErrorResponse  "Own product"
// @Failure     404  {object}  handlers.ErrorResponse  "Product not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Concurrent toggle, retry"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /interest/toggle/{product_id} [post]
func (h *Handlers) ToggleInterest(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	pid, okID := pathID(c, "product_id")
	if !okID {
		return
	}

	res, err := h.interests.Toggle(c.Request.Context(), uid, pid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ToggleInterestResponse{Status: res, Message: toggleMessages[res]})
}

// CountInterest godoc
// @ID          countInterest
// @Summary     Interest count of a product
// @Description Public. Unknown products count zero.
// @Tags        Interests
// @Produce     json
// @Param       product_id  path  int  true  "Product ID"  minimum(1)
// @Success     200  {object}  handlers.InterestCountResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Malformed id"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /interest/count/{product_id} [get]
func (h *Handlers) CountInterest(c *gin.Context) {
	pid, okID := pathID(c, "product_id")
	if !okID {
		return
	}
	n, err := h.interests.Count(c.Request.Context(), pid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, InterestCountResponse{InterestCount: n})
}

// ListInterests godoc
// @ID          listInterests
// @Summary     Products the caller is interested in
// @Tags        Interests
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.InterestedProductsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /interest [get]
func (h *Handlers) ListInterests(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	items, err := h.interests.ListForUser(c.Request.Context(), uid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, InterestedProductsResponse{Products: items})
}

// InterestStatus godoc
// @ID          interestStatus
// @Summary     Whether the caller is interested in a product
// @Tags        Interests
// @Produce     json
// @Security    BearerAuth
// @Param       product_id  path  int  true  "Product ID"  minimum(1)
// @Success     200  {object}  handlers.InterestStatusResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /interest/status/{product_id} [get]
func (h *Handlers) InterestStatus(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	pid, okID := pathID(c, "product_id")
	if !okID {
		return
	}
	yes, err := h.interests.Status(c.Request.Context(), uid, pid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, InterestStatusResponse{IsInterested: yes})
}

// UnseenInterests godoc
// @ID          unseenInterests
// @Summary     Unseen interests on the caller's products
// @Tags        Interests
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.UnseenCountResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /interest/unseen_count [get]
func (h *Handlers) UnseenInterests(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	n, err := h.interests.UnseenCount(c.Request.Context(), uid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, UnseenCountResponse{UnseenCount: n})
}

// MyListings godoc
// @ID          myListings
// @Summary     The caller's products with interest counts
// @Tags        Interests
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.MyListingsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /my_listings [get]
func (h *Handlers) MyListings(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	items, err := h.interests.MyListings(c.Request.Context(), uid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, MyListingsResponse{Listings: items})
}

// MarkInterestsSeen godoc
// @ID          markInterestsSeen
// @Summary     Mark interests on the caller's products as seen
// @Tags        Interests
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.MarkSeenResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /mark_seen [post]
func (h *Handlers) MarkInterestsSeen(c *gin.Context) {
	uid, okUser := caller(c)
	if !okUser {
		return
	}
	n, err := h.interests.MarkSeen(c.Request.Context(), uid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, MarkSeenResponse{Success: true, Updated: n})
}
