// Package services defines the business logic for interests, notifications,
// direct messages and conversation rosters. This file centralizes the
// service-level error values so they can be returned consistently by service
// methods and classified by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer; KindOf gives it a coarse taxonomy to switch on.
package services

import "errors"

// Interest-related errors.
var (
	// ErrProductNotFound indicates the referenced product does not exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrSelfInterest is returned when a seller toggles interest in their own
	// product.
	ErrSelfInterest = errors.New("cannot express interest in your own product")

	// ErrToggleConflict is returned when a concurrent toggle for the same
	// (user, product) pair won the race. The caller may retry the toggle.
	ErrToggleConflict = errors.New("concurrent interest toggle, retry")
)

// Message-related errors.
var (
	ErrReceiverRequired = errors.New("receiver_id is required")
	ErrReceiverNotFound = errors.New("receiver not found")
	ErrSelfMessage      = errors.New("cannot send a message to yourself")
	ErrEmptyMessage     = errors.New("message text is required")

	// ErrMessageTooLong is returned when the text exceeds the configured
	// maximum rune count.
	ErrMessageTooLong = errors.New("message too long")

	// ErrIdempotencyInFlight is returned when another send already claimed
	// the Idempotency-Key but its message cannot be read back.
	ErrIdempotencyInFlight = errors.New("a request with this Idempotency-Key is already being processed")
)

// Kind is the coarse failure class of a service error.
type Kind string

const (
	KindBadRequest Kind = "bad_request"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

// KindOf classifies err. Unknown errors (including raw DB failures) are
// KindInternal.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrReceiverRequired),
		errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrMessageTooLong):
		return KindBadRequest
	case errors.Is(err, ErrSelfInterest),
		errors.Is(err, ErrSelfMessage):
		return KindForbidden
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrReceiverNotFound):
		return KindNotFound
	case errors.Is(err, ErrToggleConflict),
		errors.Is(err, ErrIdempotencyInFlight):
		return KindConflict
	default:
		return KindInternal
	}
}
