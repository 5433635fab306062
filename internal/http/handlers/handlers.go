// Package handlers exposes the HTTP endpoints of the claims backend.
//
// Handlers are transport-thin: they validate input, call application services
// or the wizard manager, and translate results into HTTP responses.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-claims-backend/internal/auth"
	"github.com/tbourn/go-claims-backend/internal/config"
	"github.com/tbourn/go-claims-backend/internal/domain"
	"github.com/tbourn/go-claims-backend/internal/http/middleware"
	"github.com/tbourn/go-claims-backend/internal/services"
	"github.com/tbourn/go-claims-backend/internal/utils"
	"github.com/tbourn/go-claims-backend/internal/wizard"
)

//
// Service contracts (context-aware)
//

// ClaimService serves the standalone creation endpoint and the dashboard.
type ClaimService interface {
	// Create validates and inserts a submitted claim owned by the system owner.
	Create(ctx context.Context, in services.CreateClaimInput) (*domain.Claim, error)
	// Created returns a claim previously inserted by Create.
	Created(ctx context.Context, id string) (*domain.Claim, error)
	// ListPage returns a page of owner's claims and the total count.
	ListPage(ctx context.Context, owner string, page, pageSize int) ([]services.ClaimRow, int64, error)
	// Get returns one claim of owner.
	Get(ctx context.Context, owner, id string) (*domain.Claim, error)
	// Stats returns the count and latest update of owner's claims.
	Stats(ctx context.Context, owner string) (int64, *time.Time, error)
}

// AuthService is the passwordless sign-in collaborator.
type AuthService interface {
	RequestLink(ctx context.Context, email, redirectTo string, displayName *string) error
	Verify(ctx context.Context, token string) (*auth.Session, error)
	SignOut(ctx context.Context, id auth.Identity) error
}

// ProfileService reads user profiles.
type ProfileService interface {
	Get(ctx context.Context, id string) (*domain.Profile, error)
}

// IdempotencyStore records and replays the results of keyed requests.
type IdempotencyStore interface {
	// Get returns the live record for (userID, scope, key) or an error when
	// there is none.
	Get(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error)
	// Create stores resourceID under (userID, scope, key) for ttl.
	Create(ctx context.Context, userID, scope, key, resourceID string, status int, ttl time.Duration) error
}

// WizardManager is the registry of wizard sessions.
type WizardManager interface {
	Start(owner string) *wizard.Session
	Snapshot(id, owner string) (wizard.View, error)
	Discard(id, owner string) error
	Do(ctx context.Context, id, owner, action string, fn func(*wizard.Session) error) error
}

//
// Handler wiring
//

// Deps carries the collaborators and settings of the handlers.
type Deps struct {
	Claims      ClaimService
	Auth        AuthService
	Profiles    ProfileService
	Idempotency IdempotencyStore
	Wizard      WizardManager

	// Backend is published by GET /api/env.
	Backend config.BackendConfig
	// IdempotencyTTL bounds how long a keyed create is replayed.
	IdempotencyTTL time.Duration
	// SessionTTL is the lifetime of the session cookie.
	SessionTTL time.Duration
	// MaxUploadBytes caps the multipart body of a file upload.
	MaxUploadBytes int64
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	claims   ClaimService
	auth     AuthService
	profiles ProfileService
	idem     IdempotencyStore
	wiz      WizardManager

	backend        config.BackendConfig
	idemTTL        time.Duration
	sessionTTL     time.Duration
	maxUploadBytes int64
}

// New constructs Handlers from deps.
func New(d Deps) *Handlers {
	if d.IdempotencyTTL <= 0 {
		d.IdempotencyTTL = 24 * time.Hour
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = 24 * time.Hour
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = wizard.MaxFileBytes
	}
	return &Handlers{
		claims:         d.Claims,
		auth:           d.Auth,
		profiles:       d.Profiles,
		idem:           d.Idempotency,
		wiz:            d.Wizard,
		backend:        d.Backend,
		idemTTL:        d.IdempotencyTTL,
		sessionTTL:     d.SessionTTL,
		maxUploadBytes: d.MaxUploadBytes,
	}
}

// userID returns the identity id set by RequireAuth.
func userID(c *gin.Context) string {
	return middleware.UserIDFrom(c)
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination reads page and page_size from the query, bounded by
// utils.ClampPage.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize),
	)
}
