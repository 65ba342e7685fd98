// Package httpapi wires the HTTP transport (Gin) to the marketplace services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, identity, idempotency, rate limiting, CORS and security
// headers.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/campus-market-backend/internal/config"
	"github.com/tbourn/campus-market-backend/internal/events"
	"github.com/tbourn/campus-market-backend/internal/http/docs"
	"github.com/tbourn/campus-market-backend/internal/http/handlers"
	"github.com/tbourn/campus-market-backend/internal/http/middleware"
	"github.com/tbourn/campus-market-backend/internal/repo"
	"github.com/tbourn/campus-market-backend/internal/services"
)

const maxBodyBytes = 1 << 20

var corsAllowHeaders = []string{
	"Origin", "Content-Type", "Accept", "Authorization",
	middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match",
}

var corsExposeHeaders = []string{
	"X-Request-ID", "Content-Length", "ETag", handlers.HeaderIdempotencyReplayed,
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the marketplace API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger (or the plain access Logger when LOG_REDACT=false)
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. gzip
//  8. Authenticate (anonymous requests pass; public routes stay reachable)
//  9. Idempotency validator (needs the caller id; before rate limiter to allow bypass on replay)
//  10. Rate limiter (per user/IP, bypass on replay)
//  11. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, pub events.Publisher, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	if cfg.LogRedact {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{middleware.HeaderUserID},
		}))
	} else {
		r.Use(middleware.Logger())
	}
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	r.Use(middleware.Authenticate(middleware.AuthOptions{
		Secret:      cfg.Auth.JWTSecret,
		AllowHeader: cfg.Auth.AllowHeader,
	}))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID uint, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if err != nil {
				return false, err
			}
			return rec != nil, nil
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		Revalidate:   true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(
		&services.InterestService{
			DB:         db,
			Publisher:  pub,
			LinkFormat: cfg.ProductLinkFormat,
		},
		&services.MessageService{
			DB:              db,
			MaxMessageRunes: cfg.MaxMessageRunes,
			IdempotencyTTL:  cfg.IdempotencyTTL,
		},
		&services.ConversationService{DB: db},
		&services.NotificationService{DB: db},
	)

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.GET("/interest/count/:product_id", h.CountInterest)

	authed := api.Group("")
	authed.Use(middleware.RequireUser())
	{
		// Interests
		authed.POST("/interest/toggle/:product_id", h.ToggleInterest)
		authed.GET("/interest", h.ListInterests)
		authed.GET("/interest/status/:product_id", h.InterestStatus)
		authed.GET("/interest/unseen_count", h.UnseenInterests)
		authed.GET("/my_listings", h.MyListings)
		authed.POST("/mark_seen", h.MarkInterestsSeen)

		// Messages
		authed.POST("/send_message", h.SendMessage)
		authed.GET("/history", h.ListConversations)
		authed.GET("/unread_count", h.UnreadCount)
		authed.POST("/mark_read/:sender_id", h.MarkMessagesRead)
		authed.GET("/:receiver_id", h.GetConversation)

		// Notifications
		authed.GET("/notifications", h.ListNotifications)
	}
}

// corsMiddleware returns the CORS chain. With no allowlist every origin is
// accepted without credentials; otherwise allowed origins are echoed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	methods := []string{"GET", "POST", "OPTIONS"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     corsAllowHeaders,
				ExposeHeaders:    corsExposeHeaders,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     corsAllowHeaders,
			ExposeHeaders:    corsExposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader. Oversized bodies fail on read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
