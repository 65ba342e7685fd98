package services

import (
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/campus-market-backend/internal/domain"
	"github.com/tbourn/campus-market-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open sqlite")
	require.NoError(t, repo.AutoMigrate(db), "automigrate")
	return db
}

// seedMarket creates users 1 (alice), 2 (bob), 3 (carol) and products
// 10 and 11 owned by bob.
func seedMarket(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, u := range []domain.User{
		{ID: 1, Username: "alice", Email: "alice@campus.edu"},
		{ID: 2, Username: "bob", Email: "bob@campus.edu"},
		{ID: 3, Username: "carol", Email: "carol@campus.edu"},
	} {
		require.NoError(t, db.Create(&u).Error)
	}
	for _, p := range []domain.Product{
		{ID: 10, UserID: 2, Name: "Desk lamp", Price: 12.5, Description: "warm light"},
		{ID: 11, UserID: 2, Name: "Chair", Price: 30},
	} {
		require.NoError(t, db.Create(&p).Error)
	}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}
