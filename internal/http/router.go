// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-claims-backend/internal/auth"
	"github.com/tbourn/go-claims-backend/internal/claimnumber"
	"github.com/tbourn/go-claims-backend/internal/config"
	"github.com/tbourn/go-claims-backend/internal/domain"
	"github.com/tbourn/go-claims-backend/internal/http/handlers"
	"github.com/tbourn/go-claims-backend/internal/http/middleware"
	"github.com/tbourn/go-claims-backend/internal/repo"
	"github.com/tbourn/go-claims-backend/internal/services"
	"github.com/tbourn/go-claims-backend/internal/storage"
	"github.com/tbourn/go-claims-backend/internal/wizard"

	_ "github.com/tbourn/go-claims-backend/docs"
)

// Paths outside the versioned API.
const (
	envPath         = "/api/env"
	createClaimPath = "/api/claims/create"
)

// defaultBodyLimit caps every request body except wizard uploads.
const defaultBodyLimit int64 = 1 << 20

// sweepEvery is how often idle wizard sessions are evicted.
const sweepEvery = time.Minute

// claimRepoShim adapts the repository free functions to services.ClaimRepo.
type claimRepoShim struct{}

// CreateClaim proxies repo.CreateClaim.
func (claimRepoShim) CreateClaim(ctx context.Context, db *gorm.DB, c *domain.Claim, gen repo.ClaimNumberFunc) error {
	return repo.CreateClaim(ctx, db, c, gen)
}

// GetClaim proxies repo.GetClaim.
func (claimRepoShim) GetClaim(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Claim, error) {
	return repo.GetClaim(ctx, db, id, ownerID)
}

// CountClaims proxies repo.CountClaims (pagination support).
func (claimRepoShim) CountClaims(ctx context.Context, db *gorm.DB, ownerID string) (int64, error) {
	return repo.CountClaims(ctx, db, ownerID)
}

// ListClaimsPage proxies repo.ListClaimsPage (pagination support).
func (claimRepoShim) ListClaimsPage(ctx context.Context, db *gorm.DB, ownerID string, offset, limit int) ([]domain.Claim, error) {
	return repo.ListClaimsPage(ctx, db, ownerID, offset, limit)
}

// ClaimsStats proxies repo.ClaimsStats (ETag support).
func (claimRepoShim) ClaimsStats(ctx context.Context, db *gorm.DB, ownerID string) (int64, *time.Time, error) {
	return repo.ClaimsStats(ctx, db, ownerID)
}

// profileRepoShim adapts the repository free functions to services.ProfileRepo.
type profileRepoShim struct{}

func (profileRepoShim) UpsertProfile(ctx context.Context, db *gorm.DB, p *domain.Profile) error {
	return repo.UpsertProfile(ctx, db, p)
}

func (profileRepoShim) GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	return repo.GetProfile(ctx, db, id)
}

// idempotencyStore serves both the handlers (replay payloads) and the
// validator middleware (replay detection) from the idempotency table.
type idempotencyStore struct{ db *gorm.DB }

func (s idempotencyStore) Get(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
}

func (s idempotencyStore) Create(ctx context.Context, userID, scope, key, resourceID string, status int, ttl time.Duration) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resourceID, status, ttl)
	return err
}

// Lookup implements middleware.IdempotencyLookup. A missing or expired
// record is a plain miss; anything else is reported so the validator logs it.
func (s idempotencyStore) Lookup(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
	_, err := s.Get(ctx, userID, scope, key, now)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repo.ErrNotFound):
		return false, nil
	}
	return false, err
}

// purge deletes expired records every interval until ctx is done.
func (s idempotencyStore) purge(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeIdempotency(ctx, s.db, now.UTC())
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				zerolog.Ctx(ctx).Debug().Int64("purged", n).Msg("expired idempotency records removed")
			}
		}
	}
}

// Deps are the collaborators built by the process entry point.
type Deps struct {
	DB     *gorm.DB
	Blob   storage.Blob
	Mailer auth.Mailer
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. Wizard session eviction runs until ctx is cancelled.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (uploads get the wizard limit)
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per user/IP, bypass on replay)
//  9. CORS and Security headers
func RegisterRoutes(ctx context.Context, r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	db := d.DB
	idem := idempotencyStore{db: db}
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	uploadPath := joinPath(apiBase, "/wizard/:id/files")

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"Cookie", "Set-Cookie"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Body size limit
	r.Use(limitBody(defaultBodyLimit, map[string]int64{uploadPath: cfg.Wizard.MaxUploadBytes}))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.Lookup))

	// 8) Token-bucket rate limiter. RequireAuth runs later on the groups,
	// so at this point the key is the client IP.
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())
	go rl.Run(ctx, sweepEvery)
	go idem.purge(ctx, sweepEvery)

	// 9) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	allowMethods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"}
	// /api/env and /api/claims/create answer preflights and foreign
	// origins themselves.
	selfCORS := []string{envPath, createClaimPath}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(except(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}, selfCORS...))
		r.Use(except(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     allowMethods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}), selfCORS...))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(except(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
		}, selfCORS...))
		r.Use(except(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     allowMethods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: true, // session cookie
			MaxAge:           12 * time.Hour,
		}), selfCORS...))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		Cacheable:    []string{envPath, "/files/*filepath"},
		Revalidate:   []string{joinPath(apiBase, "/claims")},
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Locally stored attachments are served from the configured prefix.
	if l, ok := d.Blob.(*storage.Local); ok && strings.HasPrefix(cfg.Storage.LocalPublicBase, "/") {
		r.Static(strings.TrimRight(cfg.Storage.LocalPublicBase, "/"), l.Dir())
	}

	// Dependency injection: services ← repo/db
	claimSvc := services.NewClaimService(db, claimRepoShim{}, claimnumber.New, cfg.Backend.SystemOwnerID, cfg.Wizard.Location)
	profileSvc := services.NewProfileService(db, profileRepoShim{})
	authSvc := auth.NewService(db, d.Mailer, cfg.Auth)
	authSvc.Subscribe(profileSvc.OnAuth)

	mgr := wizard.NewManager(repo.NewGateway(db), d.Blob, wizard.Options{
		IdleTTL:  cfg.Wizard.SessionIdleTTL,
		Location: cfg.Wizard.Location,
	})
	go mgr.Run(ctx, sweepEvery)

	h := handlers.New(handlers.Deps{
		Claims:         claimSvc,
		Auth:           authSvc,
		Profiles:       profileSvc,
		Idempotency:    idem,
		Wizard:         mgr,
		Backend:        cfg.Backend,
		IdempotencyTTL: cfg.IdempotencyTTL,
		SessionTTL:     cfg.Auth.SessionTTL,
		MaxUploadBytes: cfg.Wizard.MaxUploadBytes,
	})

	// Browser configuration and the standalone create endpoint answer every
	// method themselves (405 bodies, CORS preflight).
	r.Any(envPath, h.Env)
	r.Any(createClaimPath, h.CreateClaim)

	// Sign-in
	linkRL := middleware.NewRateLimiter(linkRPS, linkBurst, middleware.KeyByIP("link"))
	go linkRL.Run(ctx, sweepEvery)
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/magic-link", linkRL.Handler(), h.RequestMagicLink)
		authGroup.GET("/verify", h.VerifyMagicLink)
		authGroup.GET("/session", middleware.RequireAuth(authSvc), h.GetSession)
		authGroup.POST("/logout", middleware.RequireAuth(authSvc), h.Logout)
	}

	// Authenticated API
	api := groupWithPrefix(r, apiBase)
	api.Use(middleware.RequireAuth(authSvc))
	{
		// Dashboard
		api.GET("/claims", h.ListClaims)
		api.GET("/claims/:id", h.GetClaim)

		// Wizard
		api.POST("/wizard", h.StartWizard)
		api.GET("/wizard/:id", h.GetWizard)
		api.DELETE("/wizard/:id", h.DiscardWizard)
		api.PATCH("/wizard/:id/fields", h.SetWizardFields)
		api.POST("/wizard/:id/advance", h.AdvanceWizard)
		api.POST("/wizard/:id/retreat", h.RetreatWizard)
		api.POST("/wizard/:id/reset", h.ResetWizard)
		api.POST("/wizard/:id/parties", h.AddWizardParty)
		api.PUT("/wizard/:id/parties/:pid", h.UpdateWizardParty)
		api.DELETE("/wizard/:id/parties/:pid", h.RemoveWizardParty)
		api.POST("/wizard/:id/files", h.UploadWizardFiles)
		api.DELETE("/wizard/:id/files/:fid", h.RemoveWizardFile)
		api.POST("/wizard/:id/draft", h.SaveWizardDraft)
		api.POST("/wizard/:id/submit", h.SubmitWizard)
		api.GET("/wizard/:id/summary", h.GetWizardSummary)
	}
}

// Sign-in link requests: one token every 20s per IP, bursts of 3.
const (
	linkRPS   = 0.05
	linkBurst = 3
)

// limitBody returns a Gin middleware that caps the request body size to
// maxBytes using http.MaxBytesReader. Routes listed in overrides (by
// registered pattern) get their own cap. Requests exceeding the cap will
// cause downstream body reads to error.
func limitBody(maxBytes int64, overrides map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxBytes
		if n, ok := overrides[c.FullPath()]; ok && n > 0 {
			limit = n
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
// except wraps mw so it is skipped on the given route patterns.
func except(mw gin.HandlerFunc, routes ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(routes))
	for _, p := range routes {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skip[c.FullPath()]; ok {
			return
		}
		mw(c)
	}
}

func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(prefix, p string) string {
	if prefix == "" || prefix == "/" {
		return p
	}
	return prefix + p
}
