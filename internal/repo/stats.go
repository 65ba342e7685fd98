// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/campus-market-backend/internal/domain"
)

// ConversationStats summarizes the messages exchanged between a and b: the
// total count, how many of them are read, and the newest timestamp. Any new
// message or read-state change alters at least one of the three.
//
// When the pair has no messages, count is 0 and last is nil.
func ConversationStats(ctx context.Context, db *gorm.DB, a, b uint) (count, read int64, last *time.Time, err error) {
	pair := func() *gorm.DB {
		return db.WithContext(ctx).
			Model(&domain.Message{}).
			Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))", a, b, b, a)
	}

	if err = pair().Count(&count).Error; err != nil {
		return 0, 0, nil, err
	}
	if count == 0 {
		return 0, 0, nil, nil
	}
	if err = pair().Where("is_read = ?", true).Count(&read).Error; err != nil {
		return 0, 0, nil, err
	}

	// Latest timestamp (avoid MAX() -> TEXT in SQLite)
	var row struct {
		Timestamp time.Time
	}
	if err = pair().Select("timestamp").Order("timestamp DESC, id DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}
	return count, read, &row.Timestamp, nil
}
