package domain

import "time"

// PartyRole classifies a person or entity involved in an incident.
type PartyRole string

const (
	RoleThirdParty PartyRole = "third_party"
	RoleWitness    PartyRole = "witness"
	RolePolice     PartyRole = "police"
)

// Valid reports whether r is a known role.
func (r PartyRole) Valid() bool {
	switch r {
	case RoleThirdParty, RoleWitness, RolePolice:
		return true
	}
	return false
}

// Label returns the German display label.
func (r PartyRole) Label() string {
	switch r {
	case RoleThirdParty:
		return "Unfallgegner"
	case RoleWitness:
		return "Zeuge"
	case RolePolice:
		return "Polizei"
	}
	return string(r)
}

// ClaimParty is a party row. Rows are replaced as a full set on every save,
// so IDs are not stable across saves.
type ClaimParty struct {
	ID               string    `json:"id"                          gorm:"type:char(36);primaryKey"`
	ClaimID          string    `json:"claim_id"                    gorm:"type:char(36);not null;index"`
	Role             PartyRole `json:"role"                        gorm:"type:varchar(16);not null;check:role IN ('third_party','witness','police')"`
	Name             string    `json:"name"                        gorm:"type:varchar(255)"`
	Phone            string    `json:"phone"                       gorm:"type:varchar(64)"`
	Email            string    `json:"email"                       gorm:"type:varchar(255)"`
	Address          string    `json:"address"                     gorm:"type:text"`
	InsuranceCompany *string   `json:"insurance_company,omitempty" gorm:"type:varchar(255)"`
	CreatedAt        time.Time `json:"created_at"`

	Claim Claim `json:"-" gorm:"foreignKey:ClaimID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ClaimParty.
func (ClaimParty) TableName() string { return "claim_parties" }

// Document is the metadata record of an uploaded attachment. The blob and the
// record are written one after another without a shared transaction.
type Document struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	ClaimID     string    `json:"claim_id"     gorm:"type:char(36);not null;index"`
	UploadedBy  string    `json:"uploaded_by"  gorm:"type:varchar(64);not null"`
	StoragePath string    `json:"storage_path" gorm:"type:varchar(512);not null;uniqueIndex"`
	FileName    string    `json:"file_name"    gorm:"type:varchar(255)"`
	MimeType    string    `json:"mime_type"    gorm:"type:varchar(128);not null"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`

	Claim Claim `json:"-" gorm:"foreignKey:ClaimID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Document.
func (Document) TableName() string { return "documents" }
