package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-claims-backend/internal/domain"
)

// FindVehicle looks a vehicle up by its natural key (plate, owner). It
// returns ErrNotFound when none exists yet.
func FindVehicle(ctx context.Context, db *gorm.DB, plate, ownerID string) (*domain.Vehicle, error) {
	var v domain.Vehicle
	err := db.WithContext(ctx).
		Where("license_plate = ? AND owner_profile_id = ?", plate, ownerID).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVehicle inserts v, assigning an id when empty.
func CreateVehicle(ctx context.Context, db *gorm.DB, v *domain.Vehicle) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	return db.WithContext(ctx).Create(v).Error
}

// UpdateVehicle overwrites the descriptive fields of an existing vehicle.
// Nil pointers are written as NULL.
func UpdateVehicle(ctx context.Context, db *gorm.DB, v *domain.Vehicle) error {
	res := db.WithContext(ctx).
		Model(&domain.Vehicle{}).
		Where("id = ?", v.ID).
		Updates(map[string]any{
			"vin":        v.VIN,
			"make":       v.Make,
			"model":      v.Model,
			"model_year": v.ModelYear,
			"mileage":    v.Mileage,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateDamage inserts a damage note.
func CreateDamage(ctx context.Context, db *gorm.DB, d *domain.Damage) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Omit("Claim").Create(d).Error
}

// ListDamages returns a claim's damage notes, oldest first.
func ListDamages(ctx context.Context, db *gorm.DB, claimID string) ([]domain.Damage, error) {
	var out []domain.Damage
	err := db.WithContext(ctx).
		Where("claim_id = ?", claimID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
