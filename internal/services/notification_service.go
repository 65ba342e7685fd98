package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/campus-market-backend/internal/domain"
	"github.com/tbourn/campus-market-backend/internal/repo"
)

// NotificationService is the read side of the notification store. Rows are
// written only by InterestService.Toggle.
type NotificationService struct {
	DB *gorm.DB
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, callerID uint) ([]domain.Notification, error) {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "List",
		trace.WithAttributes(attribute.Int64("user.id", int64(callerID))),
	)
	defer span.End()

	return repo.ListNotifications(ctx, s.DB, callerID)
}
