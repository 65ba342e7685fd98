// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// append-only Notification store.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/campus-market-backend/internal/domain"
)

// CreateNotification appends a notification addressed to userID.
func CreateNotification(ctx context.Context, db *gorm.DB, userID uint, message string, link *string) (*domain.Notification, error) {
	n := &domain.Notification{
		UserID:    userID,
		Message:   message,
		Link:      link,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotifications returns userID's notifications, newest first.
func ListNotifications(ctx context.Context, db *gorm.DB, userID uint) ([]domain.Notification, error) {
	out := []domain.Notification{}
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}
