package services

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-claims-backend/internal/auth"
	"github.com/tbourn/go-claims-backend/internal/domain"
	"github.com/tbourn/go-claims-backend/internal/repo"
)

type sqlProfileRepo struct{}

func (sqlProfileRepo) UpsertProfile(ctx context.Context, db *gorm.DB, p *domain.Profile) error {
	return repo.UpsertProfile(ctx, db, p)
}
func (sqlProfileRepo) GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	return repo.GetProfile(ctx, db, id)
}

func TestProfileService_UpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	svc := NewProfileService(db, sqlProfileRepo{})
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "", "a@example.com", nil); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("missing id: %v", err)
	}
	if _, err := svc.Get(ctx, "u1"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("Get before upsert: %v", err)
	}

	if _, err := svc.Upsert(ctx, "u1", " Anna@Example.COM ", nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	name := "  Anna Schmidt "
	if _, err := svc.Upsert(ctx, "u1", "anna@example.com", &name); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	p, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Email != "anna@example.com" || p.DisplayName == nil || *p.DisplayName != "Anna Schmidt" {
		t.Fatalf("profile = %+v", p)
	}
	var n int64
	db.Model(&domain.Profile{}).Count(&n)
	if n != 1 {
		t.Fatalf("profiles = %d; want 1", n)
	}
}

func TestProfileService_OnAuth(t *testing.T) {
	db := newTestDB(t)
	svc := NewProfileService(db, sqlProfileRepo{})
	ctx := context.Background()

	id := auth.Identity{ID: auth.IdentityID("max@example.com"), Email: "max@example.com"}
	if err := svc.OnAuth(ctx, auth.Event{Kind: auth.SignedOut, Identity: id}); err != nil {
		t.Fatalf("sign-out: %v", err)
	}
	if _, err := svc.Get(ctx, id.ID); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("sign-out must not create a profile")
	}

	if err := svc.OnAuth(ctx, auth.Event{Kind: auth.SignedIn, Identity: id}); err != nil {
		t.Fatalf("sign-in: %v", err)
	}
	if p, err := svc.Get(ctx, id.ID); err != nil || p.Email != "max@example.com" {
		t.Fatalf("profile after sign-in = %+v, %v", p, err)
	}

	bad := auth.Event{Kind: auth.SignedIn, Identity: auth.Identity{ID: "x"}}
	if err := svc.OnAuth(ctx, bad); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("sign-in without email = %v", err)
	}
}
