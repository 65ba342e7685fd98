package domain

import "time"

// Idempotency records the message produced by a previously processed
// request, keyed by (user_id, scope, key). Scope is the route that consumed
// the key, so the same key may be reused across unrelated endpoints.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	UserID    uint      `gorm:"not null;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope     string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_user_scope_key,priority:2"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_user_scope_key,priority:3"`
	MessageID uint      `gorm:"not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
