// Package domain defines the persistence models for claims, vehicles,
// involved parties, attachments and their audit trail. These types are mapped
// with GORM and form the core data layer of the claim intake application.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ClaimStatus is the lifecycle state of a claim.
type ClaimStatus string

const (
	StatusDraft     ClaimStatus = "draft"
	StatusSubmitted ClaimStatus = "submitted"
	StatusInReview  ClaimStatus = "in_review"
	StatusClosed    ClaimStatus = "closed"
)

// Label returns the German display label shown on the dashboard.
func (s ClaimStatus) Label() string {
	switch s {
	case StatusDraft:
		return "Entwurf"
	case StatusSubmitted:
		return "Eingereicht"
	case StatusInReview:
		return "In Bearbeitung"
	case StatusClosed:
		return "Abgeschlossen"
	}
	return string(s)
}

// Valid reports whether s is a known status.
func (s ClaimStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusInReview, StatusClosed:
		return true
	}
	return false
}

// Location is the structured loss location. It is stored as a JSON text
// column and is NULL when no address was entered.
type Location struct {
	Address string `json:"address"`
}

// Value implements driver.Valuer.
func (l Location) Value() (driver.Value, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *Location) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = Location{}
		return nil
	case string:
		return json.Unmarshal([]byte(v), l)
	case []byte:
		return json.Unmarshal(v, l)
	}
	return errors.New("location: unsupported column type")
}

// Claim is the insurance incident record.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ClaimNumber: generated natural key, CL-<timestamp>-<suffix>; unique.
//   - OwnerID: identity of the submitting user; fixed at creation.
//   - VehicleID: optional link to the resolved vehicle.
//   - Location: optional {address}, NULL when empty.
//   - Status: draft → submitted → in_review → closed.
type Claim struct {
	ID                 string      `json:"id"                   gorm:"type:char(36);primaryKey"`
	ClaimNumber        string      `json:"claim_number"         gorm:"type:varchar(32);not null;uniqueIndex"`
	OwnerID            string      `json:"owner_id"             gorm:"type:varchar(64);not null;index:idx_owner_claims,priority:1"`
	DateOfLoss         time.Time   `json:"date_of_loss"         gorm:"not null"`
	ClaimType          string      `json:"claim_type"           gorm:"type:varchar(64);not null"`
	Description        string      `json:"description"          gorm:"type:text;not null"`
	Location           *Location   `json:"location"             gorm:"type:text"`
	VehicleID          *string     `json:"vehicle_id,omitempty" gorm:"type:char(36);index"`
	ThirdPartyInvolved bool        `json:"third_party_involved" gorm:"not null;default:false"`
	Status             ClaimStatus `json:"status"               gorm:"type:varchar(16);not null;default:'draft';check:status IN ('draft','submitted','in_review','closed')"`
	CreatedAt          time.Time   `json:"created_at"           gorm:"index:idx_owner_claims,priority:2"`
	UpdatedAt          time.Time   `json:"updated_at"`

	// Vehicle is the optionally linked vehicle (dashboard join).
	Vehicle *Vehicle `json:"vehicles,omitempty" gorm:"foreignKey:VehicleID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for Claim.
func (Claim) TableName() string { return "claims" }

// Vehicle is keyed naturally by (license plate, owner).
type Vehicle struct {
	ID             string    `json:"id"               gorm:"type:char(36);primaryKey"`
	OwnerProfileID string    `json:"owner_profile_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_vehicle_plate_owner,priority:2"`
	LicensePlate   string    `json:"license_plate"    gorm:"type:varchar(16);not null;uniqueIndex:ux_vehicle_plate_owner,priority:1"`
	VIN            *string   `json:"vin"              gorm:"type:varchar(32)"`
	Make           *string   `json:"make"             gorm:"type:varchar(64)"`
	Model          *string   `json:"model"            gorm:"type:varchar(64)"`
	ModelYear      *int      `json:"model_year"`
	Mileage        *int      `json:"mileage"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for Vehicle.
func (Vehicle) TableName() string { return "vehicles" }

// Damage is a free-text note tied to a claim. The wizard only writes the
// drivability note.
type Damage struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	ClaimID     string    `json:"claim_id"    gorm:"type:char(36);not null;index"`
	Area        string    `json:"area"        gorm:"type:varchar(64);not null"`
	Description string    `json:"description" gorm:"type:text;not null"`
	Drivable    bool      `json:"drivable"    gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`

	Claim Claim `json:"-" gorm:"foreignKey:ClaimID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Damage.
func (Damage) TableName() string { return "damages" }

// StatusHistory is an append-only audit record of status changes.
type StatusHistory struct {
	ID        string      `json:"id"         gorm:"type:char(36);primaryKey"`
	ClaimID   string      `json:"claim_id"   gorm:"type:char(36);not null;index"`
	Status    ClaimStatus `json:"status"     gorm:"type:varchar(16);not null"`
	ChangedBy string      `json:"changed_by" gorm:"type:varchar(64);not null"`
	Note      string      `json:"note"       gorm:"type:text"`
	CreatedAt time.Time   `json:"created_at"`

	Claim Claim `json:"-" gorm:"foreignKey:ClaimID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for StatusHistory.
func (StatusHistory) TableName() string { return "claim_status_history" }

// Profile is upserted on every sign-in, keyed by the identity id.
type Profile struct {
	ID          string    `json:"id"           gorm:"type:varchar(64);primaryKey"`
	Email       string    `json:"email"        gorm:"type:varchar(255);not null;uniqueIndex"`
	DisplayName *string   `json:"display_name" gorm:"type:varchar(255)"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }
