// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Interest
// model and the aggregates derived from it.
//
// All functions are context-aware and accept a *gorm.DB handle, so they can
// run inside the transaction opened by services.InterestService.Toggle.
//
// Error semantics:
//   - FindInterest returns ErrNotFound when the pair has no row.
//   - CreateInterest returns ErrDuplicate when the (user_id, product_id)
//     unique index rejects the insert, i.e. a concurrent toggle won.
//   - Other DB errors are propagated raw.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/campus-market-backend/internal/domain"
)

// InterestedProduct is a product summary for a user's interest list.
type InterestedProduct struct {
	ProductID   uint
	Name        string
	Price       float64
	Description string
	Image       string
}

// ListingInterest pairs one of a seller's products with its live interest count.
type ListingInterest struct {
	ProductID     uint
	Name          string
	Price         float64
	InterestCount int64
}

// FindInterest returns the interest row for (userID, productID), or ErrNotFound.
func FindInterest(ctx context.Context, db *gorm.DB, userID, productID uint) (*domain.Interest, error) {
	var in domain.Interest
	err := db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		First(&in).Error
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// CreateInterest inserts an unseen interest row.
func CreateInterest(ctx context.Context, db *gorm.DB, userID, productID uint) (*domain.Interest, error) {
	in := &domain.Interest{UserID: userID, ProductID: productID}
	if err := db.WithContext(ctx).Create(in).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return in, nil
}

// DeleteInterest removes the interest row with the given id and reports how
// many rows went away (0 when another request already removed it).
func DeleteInterest(ctx context.Context, db *gorm.DB, id uint) (int64, error) {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Interest{})
	return res.RowsAffected, res.Error
}

// CountInterests returns how many users are interested in productID.
// Unknown products yield 0.
func CountInterests(ctx context.Context, db *gorm.DB, productID uint) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Interest{}).
		Where("product_id = ?", productID).
		Count(&n).Error
	return n, err
}

// InterestExists reports whether userID is interested in productID.
func InterestExists(ctx context.Context, db *gorm.DB, userID, productID uint) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Interest{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Count(&n).Error
	return n > 0, err
}

// ListInterestedProducts returns the products userID is interested in,
// in the order the interests were recorded.
func ListInterestedProducts(ctx context.Context, db *gorm.DB, userID uint) ([]InterestedProduct, error) {
	out := []InterestedProduct{}
	err := db.WithContext(ctx).
		Table("interests AS i").
		Select("p.id AS product_id, p.name AS name, p.price AS price, p.description AS description, p.image AS image").
		Joins("JOIN products AS p ON p.id = i.product_id").
		Where("i.user_id = ?", userID).
		Order("i.id ASC").
		Scan(&out).Error
	return out, err
}

// ListingInterestCounts returns every product owned by ownerID with the
// number of interests referencing it. Products without interest report 0.
func ListingInterestCounts(ctx context.Context, db *gorm.DB, ownerID uint) ([]ListingInterest, error) {
	out := []ListingInterest{}
	err := db.WithContext(ctx).
		Table("products AS p").
		Select("p.id AS product_id, p.name AS name, p.price AS price, COUNT(i.id) AS interest_count").
		Joins("LEFT JOIN interests AS i ON i.product_id = p.id").
		Where("p.user_id = ?", ownerID).
		Group("p.id, p.name, p.price").
		Order("p.id ASC").
		Scan(&out).Error
	return out, err
}

// MarkInterestsSeen flips seen=true on every unseen interest in a product
// owned by ownerID and returns the number of rows updated. The interested
// users' own rows on other sellers' products are untouched.
func MarkInterestsSeen(ctx context.Context, db *gorm.DB, ownerID uint) (int64, error) {
	owned := db.WithContext(ctx).Model(&domain.Product{}).Select("id").Where("user_id = ?", ownerID)
	res := db.WithContext(ctx).
		Model(&domain.Interest{}).
		Where("seen = ? AND product_id IN (?)", false, owned).
		Update("seen", true)
	return res.RowsAffected, res.Error
}

// CountUnseenInterests returns how many interests in ownerID's products the
// seller has not acknowledged yet.
func CountUnseenInterests(ctx context.Context, db *gorm.DB, ownerID uint) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Table("interests AS i").
		Joins("JOIN products AS p ON p.id = i.product_id").
		Where("p.user_id = ? AND i.seen = ?", ownerID, false).
		Count(&n).Error
	return n, err
}
