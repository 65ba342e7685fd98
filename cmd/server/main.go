// Command server runs the campus marketplace backend: interests,
// notifications and direct messaging over HTTP.
//
// @title                      Campus Market API
// @version                    1.0
// @description                Interests, notifications and direct messaging for the campus marketplace.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Type "Bearer" followed by a space and JWT token.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/campus-market-backend/internal/config"
	"github.com/tbourn/campus-market-backend/internal/events"
	httpapi "github.com/tbourn/campus-market-backend/internal/http"
	"github.com/tbourn/campus-market-backend/internal/observability"
	"github.com/tbourn/campus-market-backend/internal/repo"
	"github.com/tbourn/campus-market-backend/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout     = 10 * time.Second
	idempotencySweepGap = time.Hour
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB.Driver, cfg.DB.Path, cfg.DB.URL)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	pub, err := events.New(cfg.Events)
	if err != nil {
		log.Fatal().Err(err).Msg("events publisher")
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn().Err(err).Msg("events publisher close")
		}
	}()

	go sweepIdempotency(ctx, db)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, pub, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("db", cfg.DB.Driver).
			Str("events", sysutil.FirstNonEmpty(cfg.Events.Sink, "none")).
			Str("version", version).
			Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
}

// sweepIdempotency deletes expired Idempotency-Key records at startup and
// then hourly until ctx ends.
func sweepIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(idempotencySweepGap)
	defer t.Stop()
	for {
		n, err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC())
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("idempotency sweep")
		} else if n > 0 {
			log.Debug().Int64("deleted", n).Msg("idempotency sweep")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
