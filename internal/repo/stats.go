package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-claims-backend/internal/domain"
)

// ClaimsStats reports how many claims ownerID has and when the most recent
// one changed. The dashboard ETag is derived from both. With no claims the
// timestamp is nil.
func ClaimsStats(ctx context.Context, db *gorm.DB, ownerID string) (int64, *time.Time, error) {
	owned := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Claim{}).Where("owner_id = ?", ownerID)
	}

	var n int64
	if err := owned().Count(&n).Error; err != nil || n == 0 {
		return 0, nil, err
	}

	// Ordered pluck instead of MAX(): SQLite hands MAX over a datetime
	// column back as TEXT.
	var latest []time.Time
	if err := owned().Order("updated_at DESC").Limit(1).Pluck("updated_at", &latest).Error; err != nil {
		return 0, nil, err
	}
	if len(latest) == 0 {
		return n, nil, nil
	}
	return n, &latest[0], nil
}
