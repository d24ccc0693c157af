// Command server runs the Bitrix24 deal-webhook relay.
//
// Startup order matters: environment, logging, tenant directory, tracing,
// routes, then the HTTP listener. The process exits non-zero when the
// directory cannot be opened; everything after that degrades gracefully.
//
// @title        Bitrix24 Deal Webhook Relay API
// @version      1.0
// @description  Receives Bitrix24 business-process callbacks and closes the open-lines chat attached to a CRM deal.
// @BasePath     /
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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-b24-relay/internal/config"
	httpapi "github.com/tbourn/go-b24-relay/internal/http"
	"github.com/tbourn/go-b24-relay/internal/observability"
	"github.com/tbourn/go-b24-relay/internal/repo"
	"github.com/tbourn/go-b24-relay/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Local development convenience; in production the env is already set.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	gin.SetMode(cfg.GinMode)

	ver := sysutil.FirstNonEmpty(os.Getenv("VERSION"), version)

	db, err := repo.Open(cfg.DBDSN, cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open tenant directory")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate tenant directory")
	}
	if n, err := repo.CountTenants(context.Background(), db); err == nil {
		log.Info().Int64("tenants", n).Msg("tenant directory ready")
	}

	shutdownOTel, err := observability.SetupOTel(context.Background(), cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", ver).
			Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Block until asked to stop, then drain in-flight requests. Background
	// webhook tasks carry their own timeout and are not tracked here; the
	// grace period below is long enough for one full pipeline run.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(ctx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info().Msg("bye")
}
