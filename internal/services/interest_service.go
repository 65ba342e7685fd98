// Package services – InterestService
//
// This file implements the interest ledger: the set of (user, product)
// interest pairs, the toggle that flips membership, and the per-product and
// per-seller aggregates derived from it. Adding an interest appends a
// notification for the seller in the same transaction; after commit the
// notification is handed to the configured events.Publisher.
//
// Concurrency: the (user_id, product_id) unique index is the arbiter. A
// toggle that loses a race (duplicate insert, or a delete that finds its row
// already gone) fails with ErrToggleConflict and leaves no partial writes.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/campus-market-backend/internal/domain"
	"github.com/tbourn/campus-market-backend/internal/events"
	"github.com/tbourn/campus-market-backend/internal/repo"
)

const (
	defaultLinkFormat = "/products/%d"

	// maxNotificationRunes mirrors the notifications.message column width.
	maxNotificationRunes = 255

	publishTimeout = 5 * time.Second
)

// ToggleResult is the outcome of a successful toggle.
type ToggleResult string

const (
	ToggleAdded   ToggleResult = "added"
	ToggleRemoved ToggleResult = "removed"
)

// ListingCount is one of the caller's products with its live interest count.
type ListingCount struct {
	ProductID     uint    `json:"product_id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	InterestCount int64   `json:"interest_count"`
}

// InterestedProduct summarizes a product the caller is interested in.
type InterestedProduct struct {
	ProductID   uint    `json:"product_id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Image       string  `json:"image_filename"`
}

// InterestService implements the interest ledger use-cases.
type InterestService struct {
	DB *gorm.DB

	// Publisher receives a notification.created event after each committed
	// "added" toggle. Nil disables publishing.
	Publisher events.Publisher

	// LinkFormat renders the notification link from the product id.
	// Defaults to "/products/%d".
	LinkFormat string
}

// Toggle adds the caller's interest in productID if absent, or removes it if
// present.
//
// Errors:
//   - ErrProductNotFound when the product does not exist
//   - ErrSelfInterest when the caller owns the product
//   - ErrToggleConflict when a concurrent toggle for the same pair won
func (s *InterestService) Toggle(ctx context.Context, callerID, productID uint) (ToggleResult, error) {
	tr := otel.Tracer("services/InterestService")
	ctx, span := tr.Start(ctx, "Toggle",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(callerID)),
			attribute.Int64("product.id", int64(productID)),
		),
	)
	defer span.End()

	var (
		result ToggleResult
		note   *domain.Notification
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := repo.GetProduct(ctx, tx, productID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrProductNotFound
			}
			return err
		}
		if product.UserID == callerID {
			return ErrSelfInterest
		}

		existing, err := repo.FindInterest(ctx, tx, callerID, productID)
		switch {
		case err == nil:
			n, err := repo.DeleteInterest(ctx, tx, existing.ID)
			if err != nil {
				return err
			}
			if n == 0 {
				return ErrToggleConflict
			}
			result = ToggleRemoved
			return nil
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}

		if _, err := repo.CreateInterest(ctx, tx, callerID, productID); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrToggleConflict
			}
			return err
		}

		link := fmt.Sprintf(s.linkFormat(), productID)
		msg := fmt.Sprintf("%s is interested in your product: %s", displayName(ctx, tx, callerID), product.Name)
		note, err = repo.CreateNotification(ctx, tx, product.UserID, clipRunes(msg, maxNotificationRunes), &link)
		if err != nil {
			return err
		}
		result = ToggleAdded
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrToggleConflict) {
			interestToggles.WithLabelValues("conflict").Inc()
		}
		span.RecordError(err)
		return "", err
	}

	interestToggles.WithLabelValues(string(result)).Inc()
	span.SetAttributes(attribute.String("toggle.result", string(result)))

	if note != nil {
		notificationsCreated.Inc()
		s.publish(ctx, callerID, productID, note)
	}
	return result, nil
}

// Count returns the number of users interested in productID. Unknown
// products yield 0.
func (s *InterestService) Count(ctx context.Context, productID uint) (int64, error) {
	ctx, span := otel.Tracer("services/InterestService").Start(ctx, "Count",
		trace.WithAttributes(attribute.Int64("product.id", int64(productID))),
	)
	defer span.End()

	return repo.CountInterests(ctx, s.DB, productID)
}

// Status reports whether the caller is interested in productID. A missing
// product is simply "not interested".
func (s *InterestService) Status(ctx context.Context, callerID, productID uint) (bool, error) {
	ctx, span := otel.Tracer("services/InterestService").Start(ctx, "Status",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(callerID)),
			attribute.Int64("product.id", int64(productID)),
		),
	)
	defer span.End()

	return repo.InterestExists(ctx, s.DB, callerID, productID)
}

// ListForUser returns the products the caller is interested in, in the order
// the interests were recorded.
func (s *InterestService) ListForUser(ctx context.Context, callerID uint) ([]InterestedProduct, error) {
	ctx, span := otel.Tracer("services/InterestService").Start(ctx, "ListForUser",
		trace.WithAttributes(attribute.Int64("user.id", int64(callerID))),
	)
	defer span.End()

	rows, err := repo.ListInterestedProducts(ctx, s.DB, callerID)
	if err != nil {
		return nil, err
	}
	out := make([]InterestedProduct, 0, len(rows))
	for _, r := range rows {
		out = append(out, InterestedProduct{
			ProductID:   r.ProductID,
			Name:        r.Name,
			Price:       r.Price,
			Description: r.Description,
			Image:       r.Image,
		})
	}
	return out, nil
}

// MyListings returns every product the caller sells with its interest count.
func (s *InterestService) MyListings(ctx context.Context, callerID uint) ([]ListingCount, error) {
	ctx, span := otel.Tracer("services/InterestService").Start(ctx, "MyListings",
		trace.WithAttributes(attribute.Int64("user.id", int64(callerID))),
	)
	defer span.End()

	rows, err := repo.ListingInterestCounts(ctx, s.DB, callerID)
	if err != nil {
		return nil, err
	}
	out := make([]ListingCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, ListingCount{
			ProductID:     r.ProductID,
			Name:          r.Name,
			Price:         r.Price,
			InterestCount: r.InterestCount,
		})
	}
	return out, nil
}

// MarkSeen acknowledges every unseen interest in the caller's own products
// and returns how many were flipped. Interests the caller expressed in other
// sellers' products are not affected.
func (s *InterestService) MarkSeen(ctx context.Context, callerID uint) (int64, error) {
	ctx, span := otel.Tracer("services/InterestService").Start(ctx, "MarkSeen",
		trace.WithAttributes(attribute.Int64("user.id", int64(callerID))),
	)
	defer span.End()

	var updated int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := repo.MarkInterestsSeen(ctx, tx, callerID)
		updated = n
		return err
	})
	return updated, err
}

// UnseenCount returns how many interests in the caller's products are unseen.
func (s *InterestService) UnseenCount(ctx context.Context, callerID uint) (int64, error) {
	ctx, span := otel.Tracer("services/InterestService").Start(ctx, "UnseenCount",
		trace.WithAttributes(attribute.Int64("user.id", int64(callerID))),
	)
	defer span.End()

	return repo.CountUnseenInterests(ctx, s.DB, callerID)
}

func (s *InterestService) linkFormat() string {
	if s.LinkFormat != "" {
		return s.LinkFormat
	}
	return defaultLinkFormat
}

// publish hands a committed notification to the publisher. Failures are
// logged and dropped; the stored row remains authoritative.
func (s *InterestService) publish(ctx context.Context, actorID, productID uint, n *domain.Notification) {
	if s.Publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	ev := events.NotificationEvent{
		NotificationID: n.ID,
		RecipientID:    n.UserID,
		ActorID:        actorID,
		ProductID:      productID,
		Message:        n.Message,
		Link:           n.Link,
		CreatedAt:      n.CreatedAt,
	}
	if err := s.Publisher.Publish(pctx, ev); err != nil {
		log.Warn().Err(err).
			Uint("notification_id", n.ID).
			Uint("recipient_id", n.UserID).
			Msg("notification event not published")
	}
}

// displayName resolves the caller's username, falling back to a stable
// placeholder when the account row is missing.
func displayName(ctx context.Context, db *gorm.DB, userID uint) string {
	if u, err := repo.GetUser(ctx, db, userID); err == nil && u.Username != "" {
		return u.Username
	}
	return fmt.Sprintf("user #%d", userID)
}

// clipRunes truncates s to at most n runes.
func clipRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
