// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model: inserts, conversation reads, read-state updates and the unread
// aggregates the conversation roster is built from.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/campus-market-backend/internal/domain"
)

// ConversationEntry is a message joined with its sender's username.
// SenderUsername is empty when the sender no longer resolves.
type ConversationEntry struct {
	ID             uint
	SenderID       uint
	ReceiverID     uint
	Message        string
	Timestamp      time.Time
	IsRead         bool
	SenderUsername string
}

// CreateMessage inserts a new unread message row.
func CreateMessage(ctx context.Context, db *gorm.DB, senderID, receiverID uint, text string, at time.Time) (*domain.Message, error) {
	m := &domain.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Message:    text,
		Timestamp:  at.UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id uint) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListConversation returns every message exchanged between a and b in either
// direction, ordered deterministically (timestamp ASC, id ASC).
func ListConversation(ctx context.Context, db *gorm.DB, a, b uint) ([]ConversationEntry, error) {
	out := []ConversationEntry{}
	err := db.WithContext(ctx).
		Table("messages AS m").
		Select("m.id AS id, m.sender_id AS sender_id, m.receiver_id AS receiver_id, m.message AS message, " +
			"m.timestamp AS timestamp, m.is_read AS is_read, COALESCE(u.username, '') AS sender_username").
		Joins("LEFT JOIN users AS u ON u.id = m.sender_id").
		Where("(m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?)", a, b, b, a).
		Order("m.timestamp ASC, m.id ASC").
		Scan(&out).Error
	return out, err
}

// MarkMessagesRead flips is_read on unread messages from senderID to
// receiverID only and returns how many rows changed.
func MarkMessagesRead(ctx context.Context, db *gorm.DB, senderID, receiverID uint) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND is_read = ?", senderID, receiverID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// CountUnread returns the number of unread messages addressed to receiverID
// across all senders.
func CountUnread(ctx context.Context, db *gorm.DB, receiverID uint) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		Count(&n).Error
	return n, err
}

// CounterpartIDs returns the distinct users userID has sent a message to or
// received one from. The result is unordered.
func CounterpartIDs(ctx context.Context, db *gorm.DB, userID uint) ([]uint, error) {
	var sentTo, heardFrom []uint
	if err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("sender_id = ?", userID).
		Distinct().
		Pluck("receiver_id", &sentTo).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("receiver_id = ?", userID).
		Distinct().
		Pluck("sender_id", &heardFrom).Error; err != nil {
		return nil, err
	}

	seen := make(map[uint]struct{}, len(sentTo)+len(heardFrom))
	out := make([]uint, 0, len(sentTo)+len(heardFrom))
	for _, id := range append(sentTo, heardFrom...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// UnreadBySender groups receiverID's unread messages by sender.
func UnreadBySender(ctx context.Context, db *gorm.DB, receiverID uint) (map[uint]int64, error) {
	var rows []struct {
		SenderID uint
		Unread   int64
	}
	if err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("sender_id, COUNT(*) AS unread").
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		Group("sender_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]int64, len(rows))
	for _, r := range rows {
		out[r.SenderID] = r.Unread
	}
	return out, nil
}
