// Command server runs the vehicle claim intake backend.
//
//	@title						Vehicle Claims API
//	@version					1.0
//	@description				Claim intake wizard, dashboard and passwordless sign-in.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-claims-backend/docs"
	"github.com/tbourn/go-claims-backend/internal/auth"
	"github.com/tbourn/go-claims-backend/internal/config"
	httpapi "github.com/tbourn/go-claims-backend/internal/http"
	"github.com/tbourn/go-claims-backend/internal/observability"
	"github.com/tbourn/go-claims-backend/internal/repo"
	"github.com/tbourn/go-claims-backend/internal/storage"
	"github.com/tbourn/go-claims-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

const shutdownGrace = 15 * time.Second

func main() {
	// A missing .env is fine; the environment wins over it.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	ver := sysutil.Version(version, os.Getenv("APP_VERSION"))
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, ver)
	if cfg.Auth.SecretGenerated {
		log.Warn().Msg("AUTH_JWT_SECRET not set; sessions end on restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, ver); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config, ver string) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	dbSystem := "sqlite"
	if cfg.DB.Driver == "postgres" {
		dbSystem = "postgresql"
	}
	if err := observability.InstrumentDB(db, cfg.OTEL, dbSystem); err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	blob, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	mailer := auth.NewMailer(cfg.Mail)
	if cfg.Mail.TestMode {
		log.Warn().Msg("mail test mode: sign-in links are logged, not sent")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	docs.SwaggerInfo.Version = ver
	httpapi.RegisterRoutes(ctx, r, httpapi.Deps{DB: db, Blob: blob, Mailer: mailer}, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("db", cfg.DB.Driver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(sctx)
}
