package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-claims-backend/internal/domain"
)

// ErrDuplicate means (user_id, scope, key) already has a record.
var ErrDuplicate = errors.New("repo: duplicate idempotency key")

// GetIdempotency returns the record for (userID, scope, key) that is still
// valid at now, or ErrNotFound. A blank scope never matches.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(scope) == "" {
		return nil, ErrNotFound
	}
	rec := new(domain.Idempotency)
	err := db.WithContext(ctx).
		Where(map[string]any{"user_id": userID, "scope": scope, "key": key}).
		Where("expires_at > ?", now).
		Take(rec).Error
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateIdempotency remembers that key produced resourceID with status for
// ttl. A second record for the same (userID, scope, key) is ErrDuplicate.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key, resourceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	created := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		UserID:     userID,
		Scope:      scope,
		Key:        key,
		ResourceID: resourceID,
		Status:     status,
		CreatedAt:  created,
		ExpiresAt:  created.Add(ttl),
	}
	err := db.WithContext(ctx).Create(rec).Error
	switch {
	case err == nil:
		return rec, nil
	case isUniqueViolation(err):
		return nil, ErrDuplicate
	}
	return nil, err
}

// PurgeIdempotency deletes records that expired at or before now.
func PurgeIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
