// Package domain defines the persistence models for the campus marketplace.
// These types are mapped with GORM and shared by the repository, service and
// HTTP layers.
//
// Users and products are owned by collaborators outside the interest and
// messaging core (accounts, catalog). The core only reads their ids, owner
// ids and display fields; it never writes those tables.
package domain

import "time"

// User is an account holder. The core references users by id and reads
// Username to label messages and notifications.
type User struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	Username  string    `json:"username"   gorm:"type:varchar(150);not null;uniqueIndex"`
	Email     string    `json:"email"      gorm:"type:varchar(150);not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Product is a listing owned by a user (UserID is the seller).
type Product struct {
	ID                uint      `json:"id"                 gorm:"primaryKey"`
	UserID            uint      `json:"user_id"            gorm:"not null;index:idx_products_owner"`
	Name              string    `json:"name"               gorm:"type:varchar(255);not null"`
	Category          string    `json:"category"           gorm:"type:varchar(100);not null;default:''"`
	Description       string    `json:"description"        gorm:"type:text"`
	Price             float64   `json:"price"              gorm:"not null"`
	Color             string    `json:"color,omitempty"    gorm:"type:varchar(50)"`
	QuantityAvailable int       `json:"quantity_available" gorm:"not null;default:1"`
	Condition         string    `json:"condition"          gorm:"type:varchar(20);not null;default:'used'"`
	Image             string    `json:"image_filename"     gorm:"type:varchar(255);default:'nb.png'"`
	CreatedAt         time.Time `json:"created_at"`

	// Owner is the seller. Products are removed with their owner.
	Owner User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

// Interest records one user's declared interest in one product.
//
// At most one row exists per (user_id, product_id); the composite unique
// index ux_interest_user_product backs the toggle so concurrent inserts for
// the same pair fail instead of duplicating. Seen is flipped by the seller.
type Interest struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	UserID    uint      `json:"user_id"    gorm:"not null;uniqueIndex:ux_interest_user_product,priority:1"`
	ProductID uint      `json:"product_id" gorm:"not null;uniqueIndex:ux_interest_user_product,priority:2;index:idx_interest_product"`
	Seen      bool      `json:"seen"       gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`

	// Interests disappear with the product they reference.
	Product Product `json:"-" gorm:"foreignKey:ProductID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Interest.
func (Interest) TableName() string { return "interests" }

// Notification is an append-only record addressed to UserID. Link optionally
// points at the resource that triggered it (e.g. a product detail view).
type Notification struct {
	ID        uint      `json:"id"             gorm:"primaryKey"`
	UserID    uint      `json:"user_id"        gorm:"not null;index:idx_notifications_recipient"`
	Message   string    `json:"message"        gorm:"type:varchar(255);not null"`
	Link      *string   `json:"link,omitempty" gorm:"type:varchar(255)"`
	IsRead    bool      `json:"is_read"        gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"     gorm:"index:idx_notifications_recipient"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// Message is one directed communication unit from SenderID to ReceiverID.
// Only IsRead changes after creation.
type Message struct {
	ID         uint      `json:"id"          gorm:"primaryKey"`
	SenderID   uint      `json:"sender_id"   gorm:"not null;index:idx_messages_pair,priority:1"`
	ReceiverID uint      `json:"receiver_id" gorm:"not null;index:idx_messages_pair,priority:2;index:idx_messages_inbox,priority:1"`
	Message    string    `json:"message"     gorm:"type:text;not null"`
	Timestamp  time.Time `json:"timestamp"   gorm:"not null;index"`
	IsRead     bool      `json:"is_read"     gorm:"not null;default:false;index:idx_messages_inbox,priority:2"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
