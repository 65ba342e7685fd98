package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/campus-market-backend/internal/config"
	"github.com/tbourn/campus-market-backend/internal/domain"
	"github.com/tbourn/campus-market-backend/internal/events"
	"github.com/tbourn/campus-market-backend/internal/http/handlers"
	"github.com/tbourn/campus-market-backend/internal/http/middleware"
	"github.com/tbourn/campus-market-backend/internal/repo"
)

const testSecret = "router-test-secret"

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	for _, u := range []domain.User{
		{ID: 1, Username: "alice", Email: "alice@campus.edu"},
		{ID: 2, Username: "bob", Email: "bob@campus.edu"},
	} {
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	if err := db.Create(&domain.Product{ID: 10, UserID: 2, Name: "Desk lamp", Price: 12.5}).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:       "/api/v1",
		RateRPS:           100,
		RateBurst:         100,
		MaxMessageRunes:   2000,
		ProductLinkFormat: "/products/%d",
		IdempotencyTTL:    time.Hour,
		LogRedact:         true,
		Auth:              config.AuthConfig{JWTSecret: testSecret, AllowHeader: true},
		OTEL:              config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newRouter(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, events.NopPublisher{}, cfg)
	return r, db
}

func serve(r *gin.Engine, method, path, user string, body []byte, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newRouter(t, testConfig())

	w := serve(r, http.MethodGet, "/health", "", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "private, no-cache" {
		t.Fatalf("Cache-Control = %q", got)
	}

	w = serve(r, http.MethodGet, "/metrics", "", nil, nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	w = serve(r, http.MethodGet, "/nope/deeper", "", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope/deeper expected 404, got %d", w.Code)
	}

	w = serve(r, http.MethodPost, "/health", "", nil, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// swagger stays off unless enabled
	w = serve(r, http.MethodGet, "/swagger/doc.json", "", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled expected 404, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newRouter(t, cfg)

	w := serve(r, http.MethodGet, "/health", "", nil, map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_SwaggerAndGzip(t *testing.T) {
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	cfg.LogRedact = false
	r, _ := newRouter(t, cfg)

	w := serve(r, http.MethodGet, "/swagger/doc.json", "", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /swagger/doc.json = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"/send_message"`)) {
		t.Fatalf("swagger doc misses /send_message")
	}

	w = serve(r, http.MethodGet, "/health", "", nil, map[string]string{"Accept-Encoding": "gzip"})
	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("expected gzip encoding, got %q", got)
	}
}

func TestAuth_PublicAndProtected(t *testing.T) {
	r, _ := newRouter(t, testConfig())

	w := serve(r, http.MethodGet, "/api/v1/interest/count/10", "", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("public count = %d", w.Code)
	}

	w = serve(r, http.MethodGet, "/api/v1/unread_count", "", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous unread_count expected 401, got %d", w.Code)
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	w = serve(r, http.MethodGet, "/api/v1/unread_count", "", nil, map[string]string{"Authorization": "Bearer " + tok})
	if w.Code != http.StatusOK {
		t.Fatalf("bearer unread_count = %d body=%s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodGet, "/api/v1/unread_count", "", nil, map[string]string{"Authorization": "Bearer nope"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad bearer expected 401, got %d", w.Code)
	}
}

func TestFlow_InterestNotifiesSeller(t *testing.T) {
	r, _ := newRouter(t, testConfig())

	w := serve(r, http.MethodPost, "/api/v1/interest/toggle/10", "1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("toggle = %d body=%s", w.Code, w.Body.String())
	}
	var tr handlers.ToggleInterestResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tr)
	if tr.Status != "added" {
		t.Fatalf("toggle status = %q", tr.Status)
	}

	w = serve(r, http.MethodGet, "/api/v1/interest/count/10", "", nil, nil)
	if w.Body.String() != `{"interest_count":1}` {
		t.Fatalf("count body = %s", w.Body.String())
	}

	w = serve(r, http.MethodGet, "/api/v1/notifications", "2", nil, nil)
	var nr handlers.NotificationsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &nr); err != nil || len(nr.Notifications) != 1 {
		t.Fatalf("notifications = %s (%v)", w.Body.String(), err)
	}
	if nr.Notifications[0].Link == nil || *nr.Notifications[0].Link != "/products/10" {
		t.Fatalf("unexpected link: %+v", nr.Notifications[0])
	}

	// Seller cannot show interest in their own product.
	w = serve(r, http.MethodPost, "/api/v1/interest/toggle/10", "2", nil, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("self toggle expected 403, got %d", w.Code)
	}

	w = serve(r, http.MethodPost, "/api/v1/interest/toggle/999", "1", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown product expected 404, got %d", w.Code)
	}
}

func TestFlow_SendReplayAndConversationETag(t *testing.T) {
	r, _ := newRouter(t, testConfig())
	body := []byte(`{"receiver_id":2,"message":"is the lamp available?"}`)
	idem := map[string]string{middleware.HeaderIdempotencyKey: "send-1"}

	first := serve(r, http.MethodPost, "/api/v1/send_message", "1", body, idem)
	if first.Code != http.StatusCreated {
		t.Fatalf("send = %d body=%s", first.Code, first.Body.String())
	}
	second := serve(r, http.MethodPost, "/api/v1/send_message", "1", body, idem)
	if second.Code != http.StatusCreated {
		t.Fatalf("replay = %d", second.Code)
	}
	if second.Header().Get(handlers.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("expected replay header")
	}
	var a, b handlers.SendMessageResponse
	_ = json.Unmarshal(first.Body.Bytes(), &a)
	_ = json.Unmarshal(second.Body.Bytes(), &b)
	if a.Data == nil || b.Data == nil || a.Data.ID != b.Data.ID {
		t.Fatalf("replay returned a different message: %+v vs %+v", a.Data, b.Data)
	}

	w := serve(r, http.MethodGet, "/api/v1/unread_count", "2", nil, nil)
	if w.Body.String() != `{"unread_count":1}` {
		t.Fatalf("unread after replay = %s", w.Body.String())
	}

	w = serve(r, http.MethodGet, "/api/v1/1", "2", nil, nil)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("conversation = %d etag=%q", w.Code, etag)
	}
	w = serve(r, http.MethodGet, "/api/v1/1", "2", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	w = serve(r, http.MethodPost, "/api/v1/mark_read/1", "2", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("mark_read = %d", w.Code)
	}
	w = serve(r, http.MethodGet, "/api/v1/1", "2", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("expected fresh body after mark_read, got %d", w.Code)
	}

	w = serve(r, http.MethodGet, "/api/v1/history", "2", nil, nil)
	if w.Body.String() != `{"chats":[{"user_id":1,"username":"alice","unread_count":0}]}` {
		t.Fatalf("history = %s", w.Body.String())
	}

	w = serve(r, http.MethodGet, "/api/v1/abc", "2", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("non-numeric receiver expected 404, got %d", w.Code)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB"))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func TestRegisterRoutes_IdempotencyLookupError(t *testing.T) {
	r, db := newRouter(t, testConfig())

	// Force queries to fail by closing the underlying connection.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	w := serve(r, http.MethodPost, "/health", "1", []byte("{}"), map[string]string{
		middleware.HeaderIdempotencyKey: "force-error",
	})
	// The lookup error is logged and treated as a miss.
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
