package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-claims-backend/internal/domain"
)

// UpsertProfile inserts p or, when a profile with the same id exists,
// refreshes its email and display name.
func UpsertProfile(ctx context.Context, db *gorm.DB, p *domain.Profile) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "updated_at"}),
	}).Create(p).Error
}

// GetProfile fetches a profile by identity id.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfileByEmail fetches a profile by its (normalized) email.
func GetProfileByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("email = ?", email).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateLoginToken stores a hashed one-time sign-in token.
func CreateLoginToken(ctx context.Context, db *gorm.DB, email, tokenHash, redirectTo string, displayName *string, ttl time.Duration) (*domain.LoginToken, error) {
	now := time.Now().UTC()
	t := &domain.LoginToken{
		ID:          uuid.NewString(),
		Email:       email,
		TokenHash:   tokenHash,
		RedirectTo:  redirectTo,
		DisplayName: displayName,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// ErrTokenUsed is returned when a sign-in token was already consumed.
var ErrTokenUsed = errors.New("token already used")

// ErrTokenExpired is returned when a sign-in token is past its expiry.
var ErrTokenExpired = errors.New("token expired")

// ConsumeLoginToken marks the token with tokenHash as used and returns it.
// The conditional update makes a second consumption fail with ErrTokenUsed.
func ConsumeLoginToken(ctx context.Context, db *gorm.DB, tokenHash string, now time.Time) (*domain.LoginToken, error) {
	var out *domain.LoginToken
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t domain.LoginToken
		if err := tx.Where("token_hash = ?", tokenHash).First(&t).Error; err != nil {
			return err
		}
		if t.UsedAt != nil {
			return ErrTokenUsed
		}
		if !now.Before(t.ExpiresAt) {
			return ErrTokenExpired
		}
		res := tx.Model(&domain.LoginToken{}).
			Where("id = ? AND used_at IS NULL", t.ID).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenUsed
		}
		t.UsedAt = &now
		out = &t
		return nil
	})
	return out, err
}
