// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Claim model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a claim is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateClaim(ctx, db, c, gen) -> error
//     Inserts a claim, drawing a fresh claim number from gen and retrying
//     when the number collides with an existing one.
//
//   - UpdateClaim(ctx, db, id, ownerID, fields) -> error
//     Applies a partial update to a claim owned by ownerID.
//
//   - LinkClaimVehicle(ctx, db, claimID, vehicleID) -> error
//     Points the claim at a vehicle.
//
//   - GetClaim(ctx, db, id, ownerID) -> *domain.Claim, error
//     Fetches one claim with its vehicle joined.
//
//   - CountClaims / ListClaimsPage
//     Dashboard pagination, newest first, vehicle joined.
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

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// MaxClaimNumberAttempts bounds claim number regeneration on collision.
const MaxClaimNumberAttempts = 3

// ClaimNumberFunc produces a claim number for the given instant.
type ClaimNumberFunc func(now time.Time) (string, error)

// ClaimFields is the partial update applied by UpdateClaim.
type ClaimFields struct {
	DateOfLoss         time.Time
	ClaimType          string
	Description        string
	Location           *domain.Location
	ThirdPartyInvolved bool
	Status             domain.ClaimStatus
}

// CreateClaim inserts c. ID and CreatedAt are filled when empty; ClaimNumber
// is always drawn from gen. On a unique violation of the claim number a new
// one is generated, up to MaxClaimNumberAttempts in total.
func CreateClaim(ctx context.Context, db *gorm.DB, c *domain.Claim, gen ClaimNumberFunc) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt

	var lastErr error
	for attempt := 0; attempt < MaxClaimNumberAttempts; attempt++ {
		num, err := gen(now)
		if err != nil {
			return err
		}
		c.ClaimNumber = num
		err = db.WithContext(ctx).Omit("Vehicle").Create(c).Error
		if err == nil {
			return nil
		}
		// The id is a fresh UUID, so a unique violation means the number.
		if !isUniqueViolation(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// UpdateClaim writes fields to the claim identified by id and owned by
// ownerID. OwnerID and ClaimNumber are never touched. It returns ErrNotFound
// when no row matches.
func UpdateClaim(ctx context.Context, db *gorm.DB, id, ownerID string, f ClaimFields) error {
	var loc any
	if f.Location != nil {
		loc = *f.Location
	}
	res := db.WithContext(ctx).
		Model(&domain.Claim{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(map[string]any{
			"date_of_loss":         f.DateOfLoss.UTC(),
			"claim_type":           f.ClaimType,
			"description":          f.Description,
			"location":             loc,
			"third_party_involved": f.ThirdPartyInvolved,
			"status":               f.Status,
			"updated_at":           time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkClaimVehicle sets the claim's vehicle reference, replacing any
// previous link.
func LinkClaimVehicle(ctx context.Context, db *gorm.DB, claimID, vehicleID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Claim{}).
		Where("id = ?", claimID).
		Updates(map[string]any{"vehicle_id": vehicleID, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetClaim fetches a claim by id and owner, with the linked vehicle loaded.
func GetClaim(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Claim, error) {
	var c domain.Claim
	err := db.WithContext(ctx).
		Preload("Vehicle").
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetClaimByID fetches a claim by id regardless of owner.
func GetClaimByID(ctx context.Context, db *gorm.DB, id string) (*domain.Claim, error) {
	var c domain.Claim
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CountClaims returns the number of claims owned by ownerID.
func CountClaims(ctx context.Context, db *gorm.DB, ownerID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Claim{}).
		Where("owner_id = ?", ownerID).
		Count(&total).Error
	return total, err
}

// ListClaimsPage returns a page of ownerID's claims, newest first, each
// enriched with its linked vehicle.
func ListClaimsPage(ctx context.Context, db *gorm.DB, ownerID string, offset, limit int) ([]domain.Claim, error) {
	var out []domain.Claim
	err := db.WithContext(ctx).
		Preload("Vehicle").
		Where("owner_id = ?", ownerID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// AppendStatusHistory inserts an audit entry.
func AppendStatusHistory(ctx context.Context, db *gorm.DB, h *domain.StatusHistory) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Omit("Claim").Create(h).Error
}

// ListStatusHistory returns the audit trail of a claim, oldest first.
func ListStatusHistory(ctx context.Context, db *gorm.DB, claimID string) ([]domain.StatusHistory, error) {
	var out []domain.StatusHistory
	err := db.WithContext(ctx).
		Where("claim_id = ?", claimID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// isUniqueViolation recognizes duplicate-key errors from both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}
