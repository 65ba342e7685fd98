package repo

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/campus-market-backend/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}

	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	if db, err := Open("oracle", "", ""); err == nil || db != nil {
		t.Fatalf("expected unsupported driver error, got db=%v err=%v", db, err)
	}
}

func TestOpenPostgres_EmptyDSN(t *testing.T) {
	if db, err := OpenPostgres(""); err == nil || db != nil {
		t.Fatalf("expected error for empty dsn, got db=%v err=%v", db, err)
	}
}

func TestOpen_SQLite_WithTracingPlugin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traced.db")
	db, err := Open("sqlite", path, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	if _, ok := db.Config.Plugins["otelgorm"]; !ok {
		t.Fatalf("expected otelgorm plugin to be registered, got %v", db.Config.Plugins)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndAutoMigrate(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "app.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var (
		journalMode string
		syncVal     int
		busyMS      int
	)

	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}

	if err := db.Raw("PRAGMA synchronous;").Row().Scan(&syncVal); err != nil {
		t.Fatalf("PRAGMA synchronous: %v", err)
	}
	// NORMAL == 1
	if syncVal != 1 {
		t.Fatalf("expected synchronous=1 (NORMAL), got %d", syncVal)
	}

	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}

	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&domain.User{}, &domain.Product{}, &domain.Interest{}, &domain.Notification{}, &domain.Message{}, &domain.Idempotency{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Quick insert round-trip to prove schema is usable.
	now := time.Now().UTC()
	if err := db.Create(&domain.User{ID: 1, Username: "alice", Email: "a@campus.edu"}).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if err := db.Create(&domain.Product{ID: 10, UserID: 1, Name: "Lamp", Price: 5}).Error; err != nil {
		t.Fatalf("insert product: %v", err)
	}
	msg := &domain.Message{SenderID: 1, ReceiverID: 2, Message: "hi", Timestamp: now}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("insert message: %v", err)
	}
	idem := &domain.Idempotency{ID: "i1", UserID: 1, Scope: "/send_message", Key: "k1", MessageID: msg.ID, Status: 201, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(idem).Error; err != nil {
		t.Fatalf("insert idempotency: %v", err)
	}

	var got domain.Product
	if err := db.First(&got, 10).Error; err != nil || got.Image != "nb.png" {
		t.Fatalf("readback product failed: err=%v got=%+v", err, got)
	}
}

func TestOpenSQLite_PragmasOnEveryPooledConnection(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "pool.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	conns := make([]*sql.Conn, 0, 3)
	t.Cleanup(func() {
		for _, c := range conns {
			_ = c.Close()
		}
	})
	for i := 0; i < 3; i++ {
		c, err := sqlDB.Conn(ctx)
		if err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		conns = append(conns, c)
	}
	if open := sqlDB.Stats().OpenConnections; open < 3 {
		t.Fatalf("expected 3 distinct connections, got %d", open)
	}

	for i, c := range conns {
		var fk, busy int
		if err := c.QueryRowContext(ctx, "PRAGMA foreign_keys;").Scan(&fk); err != nil {
			t.Fatalf("conn %d foreign_keys: %v", i, err)
		}
		if err := c.QueryRowContext(ctx, "PRAGMA busy_timeout;").Scan(&busy); err != nil {
			t.Fatalf("conn %d busy_timeout: %v", i, err)
		}
		if fk != 1 || busy != 5000 {
			t.Fatalf("conn %d: foreign_keys=%d busy_timeout=%d", i, fk, busy)
		}
	}
}

func TestSQLiteDSN(t *testing.T) {
	if got := sqliteDSN("app.db"); !strings.HasPrefix(got, "app.db?_pragma=journal_mode(WAL)&") ||
		!strings.Contains(got, "_pragma=foreign_keys(1)") {
		t.Fatalf("sqliteDSN(app.db) = %q", got)
	}
	if got := sqliteDSN("file:x.db?cache=shared"); !strings.HasPrefix(got, "file:x.db?cache=shared&_pragma=") {
		t.Fatalf("existing query not extended: %q", got)
	}
}

func TestOpenSQLite_RecordNotFoundIsNotLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "quiet.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	buf.Reset()

	ctx := context.Background()
	if _, err := FindInterest(ctx, db, 1, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindInterest = %v; want ErrNotFound", err)
	}
	if _, err := GetIdempotency(ctx, db, 1, "/send_message", "k", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetIdempotency = %v; want ErrNotFound", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("lookup misses must not be logged, got: %s", buf.String())
	}

	// Real errors still reach the log.
	_ = db.Exec("SELECT * FROM no_such_table").Error
	if !strings.Contains(buf.String(), `"component":"gorm"`) {
		t.Fatalf("expected gorm error in log, got: %s", buf.String())
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
