// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file holds party and document persistence.
//
// Parties are persisted as a full replacement set: callers delete every row
// of a claim and insert the current list. The two statements are separate,
// so a failed insert after a successful delete leaves the claim without
// parties until the next save.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-claims-backend/internal/domain"
)

// DeleteParties removes every party row of claimID.
func DeleteParties(ctx context.Context, db *gorm.DB, claimID string) error {
	return db.WithContext(ctx).
		Where("claim_id = ?", claimID).
		Delete(&domain.ClaimParty{}).Error
}

// CreateParties bulk-inserts parties. Rows get fresh ids.
func CreateParties(ctx context.Context, db *gorm.DB, parties []domain.ClaimParty) error {
	if len(parties) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range parties {
		parties[i].ID = uuid.NewString()
		// Keep insertion order observable through created_at.
		parties[i].CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
	}
	return db.WithContext(ctx).Omit("Claim").Create(&parties).Error
}

// ListParties returns the persisted parties of claimID in insertion order.
func ListParties(ctx context.Context, db *gorm.DB, claimID string) ([]domain.ClaimParty, error) {
	var out []domain.ClaimParty
	err := db.WithContext(ctx).
		Where("claim_id = ?", claimID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// CreateDocument inserts attachment metadata.
func CreateDocument(ctx context.Context, db *gorm.DB, d *domain.Document) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Omit("Claim").Create(d).Error
}

// DeleteDocument removes one attachment record. It returns ErrNotFound when
// nothing was deleted.
func DeleteDocument(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Document{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDocuments returns a claim's attachments, oldest first.
func ListDocuments(ctx context.Context, db *gorm.DB, claimID string) ([]domain.Document, error) {
	var out []domain.Document
	err := db.WithContext(ctx).
		Where("claim_id = ?", claimID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
