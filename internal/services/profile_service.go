// Package services – ProfileService
//
// ProfileService keeps the profile row of every signed-in identity current.
// It is attached to the auth service as a listener so that each sign-in
// upserts the profile before the session is handed out.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-claims-backend/internal/auth"
	"github.com/tbourn/go-claims-backend/internal/domain"
	"github.com/tbourn/go-claims-backend/internal/repo"
)

// ProfileRepo defines the repository contract required by ProfileService.
type ProfileRepo interface {
	UpsertProfile(ctx context.Context, db *gorm.DB, p *domain.Profile) error
	GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error)
}

// ProfileService manages user profiles.
type ProfileService struct {
	DB   *gorm.DB
	Repo ProfileRepo
}

// NewProfileService constructs a ProfileService.
func NewProfileService(db *gorm.DB, r ProfileRepo) *ProfileService {
	return &ProfileService{DB: db, Repo: r}
}

// Upsert inserts or refreshes the profile of id.
func (s *ProfileService) Upsert(ctx context.Context, id, email string, displayName *string) (*domain.Profile, error) {
	tr := otel.Tracer("services/ProfileService")
	ctx, span := tr.Start(ctx, "Upsert", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	id = strings.TrimSpace(id)
	email = auth.NormalizeEmail(email)
	if id == "" || email == "" {
		return nil, ErrInvalidProfile
	}
	p := &domain.Profile{ID: id, Email: email}
	if displayName != nil {
		if dn := strings.TrimSpace(*displayName); dn != "" {
			p.DisplayName = &dn
		}
	}
	if err := s.Repo.UpsertProfile(ctx, s.DB, p); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return p, nil
}

// Get returns the profile of id.
func (s *ProfileService) Get(ctx context.Context, id string) (*domain.Profile, error) {
	tr := otel.Tracer("services/ProfileService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	p, err := s.Repo.GetProfile(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	return p, err
}

// OnAuth is an auth.Listener that upserts the profile on sign-in.
func (s *ProfileService) OnAuth(ctx context.Context, e auth.Event) error {
	if e.Kind != auth.SignedIn {
		return nil
	}
	_, err := s.Upsert(ctx, e.Identity.ID, e.Identity.Email, e.Identity.DisplayName)
	return err
}
