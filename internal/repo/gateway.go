package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-claims-backend/internal/claimnumber"
	"github.com/tbourn/go-claims-backend/internal/domain"
)

// Gateway binds the repository functions to one database handle so that the
// claim wizard can stage its writes through a single value.
type Gateway struct {
	DB *gorm.DB
	// Number issues claim numbers; defaults to claimnumber.New.
	Number ClaimNumberFunc
}

// NewGateway returns a Gateway using the standard claim number generator.
func NewGateway(db *gorm.DB) *Gateway {
	return &Gateway{DB: db, Number: claimnumber.New}
}

// CreateClaim inserts c with a generated claim number.
func (g *Gateway) CreateClaim(ctx context.Context, c *domain.Claim) error {
	gen := g.Number
	if gen == nil {
		gen = claimnumber.New
	}
	return CreateClaim(ctx, g.DB, c, gen)
}

// UpdateClaim writes the mutable fields of c to its row.
func (g *Gateway) UpdateClaim(ctx context.Context, c *domain.Claim) error {
	return UpdateClaim(ctx, g.DB, c.ID, c.OwnerID, ClaimFields{
		DateOfLoss:         c.DateOfLoss,
		ClaimType:          c.ClaimType,
		Description:        c.Description,
		Location:           c.Location,
		ThirdPartyInvolved: c.ThirdPartyInvolved,
		Status:             c.Status,
	})
}

// FindVehicle returns (nil, nil) when no vehicle matches.
func (g *Gateway) FindVehicle(ctx context.Context, plate, ownerID string) (*domain.Vehicle, error) {
	v, err := FindVehicle(ctx, g.DB, plate, ownerID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return v, err
}

func (g *Gateway) CreateVehicle(ctx context.Context, v *domain.Vehicle) error {
	return CreateVehicle(ctx, g.DB, v)
}

func (g *Gateway) UpdateVehicle(ctx context.Context, v *domain.Vehicle) error {
	return UpdateVehicle(ctx, g.DB, v)
}

func (g *Gateway) LinkVehicle(ctx context.Context, claimID, vehicleID string) error {
	return LinkClaimVehicle(ctx, g.DB, claimID, vehicleID)
}

func (g *Gateway) CreateDamage(ctx context.Context, d *domain.Damage) error {
	return CreateDamage(ctx, g.DB, d)
}

func (g *Gateway) DeleteParties(ctx context.Context, claimID string) error {
	return DeleteParties(ctx, g.DB, claimID)
}

func (g *Gateway) CreateParties(ctx context.Context, parties []domain.ClaimParty) error {
	return CreateParties(ctx, g.DB, parties)
}

func (g *Gateway) CreateDocument(ctx context.Context, d *domain.Document) error {
	return CreateDocument(ctx, g.DB, d)
}

func (g *Gateway) DeleteDocument(ctx context.Context, id string) error {
	return DeleteDocument(ctx, g.DB, id)
}

func (g *Gateway) AppendHistory(ctx context.Context, h *domain.StatusHistory) error {
	return AppendStatusHistory(ctx, g.DB, h)
}
