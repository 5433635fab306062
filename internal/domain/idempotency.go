package domain

import "time"

// Idempotency represents a recorded result of a previously processed request,
// keyed by (user_id, scope, key). It lets a retried claim creation return the
// originally created claim without inserting a second one.
type Idempotency struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	UserID     string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope      string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_user_scope_key,priority:2"`
	Key        string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_user_scope_key,priority:3"`
	ResourceID string    `gorm:"type:char(36);not null"`
	Status     int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// LoginToken is a one-time passwordless sign-in token. Only the SHA-256 hash
// of the token is stored.
type LoginToken struct {
	ID         string `gorm:"type:char(36);primaryKey"`
	Email      string `gorm:"type:varchar(255);not null;index"`
	TokenHash  string `gorm:"type:char(64);not null;uniqueIndex"`
	RedirectTo string `gorm:"type:text"`
	// DisplayName is copied onto the profile at sign-in when set.
	DisplayName *string   `gorm:"type:varchar(255)"`
	ExpiresAt   time.Time `gorm:"not null;index"`
	UsedAt      *time.Time
	CreatedAt   time.Time
}

// TableName implements the GORM tabler interface.
func (LoginToken) TableName() string { return "login_tokens" }
