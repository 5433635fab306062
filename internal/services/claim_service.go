// Package services – ClaimService
//
// This file implements the ClaimService, which serves the claim operations
// that do not go through the wizard: the standalone creation endpoint used by
// external forms, and the read side of the dashboard (paginated list with the
// linked vehicle, single claim, list statistics for ETags).
//
// Service-level errors (ErrClaimNotFound, ErrMissingFields, ErrInvalidDate)
// are returned for predictable cases so handlers can map them to HTTP
// results consistently.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-claims-backend/internal/domain"
	"github.com/tbourn/go-claims-backend/internal/repo"
	"github.com/tbourn/go-claims-backend/internal/utils"
	"github.com/tbourn/go-claims-backend/internal/wizard"
)

// PublicOwnerID owns claims created through the standalone endpoint when no
// system owner is configured.
const PublicOwnerID = "public"

// excerptRunes bounds the description shown in dashboard rows.
const excerptRunes = 100

// ClaimRepo defines the repository contract required by ClaimService.
type ClaimRepo interface {
	// CreateClaim inserts c, drawing its claim number from gen.
	CreateClaim(ctx context.Context, db *gorm.DB, c *domain.Claim, gen repo.ClaimNumberFunc) error

	// GetClaim fetches a claim by id owned by ownerID, vehicle joined.
	GetClaim(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Claim, error)

	// CountClaims returns the number of claims owned by ownerID.
	CountClaims(ctx context.Context, db *gorm.DB, ownerID string) (int64, error)

	// ListClaimsPage returns a page of ownerID's claims, newest first.
	ListClaimsPage(ctx context.Context, db *gorm.DB, ownerID string, offset, limit int) ([]domain.Claim, error)

	// ClaimsStats returns the claim count and latest update for ETags.
	ClaimsStats(ctx context.Context, db *gorm.DB, ownerID string) (int64, *time.Time, error)
}

// ClaimService provides the non-wizard claim operations.
type ClaimService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the claim repository used by this service.
	Repo ClaimRepo
	// Number issues claim numbers.
	Number repo.ClaimNumberFunc
	// SystemOwnerID owns claims created by Create; PublicOwnerID when empty.
	SystemOwnerID string
	// Location interprets zone-less dates. Nil is UTC.
	Location *time.Location
}

// NewClaimService constructs a ClaimService.
func NewClaimService(db *gorm.DB, r ClaimRepo, number repo.ClaimNumberFunc, systemOwnerID string, loc *time.Location) *ClaimService {
	return &ClaimService{DB: db, Repo: r, Number: number, SystemOwnerID: systemOwnerID, Location: loc}
}

// CreateClaimInput is the payload of the standalone creation endpoint.
type CreateClaimInput struct {
	DateOfLoss         string
	ClaimType          string
	Description        string
	Location           *domain.Location
	VehicleID          string
	ThirdPartyInvolved bool
}

// Create validates the three required fields and inserts a claim with
// status submitted, owned by the system owner.
func (s *ClaimService) Create(ctx context.Context, in CreateClaimInput) (*domain.Claim, error) {
	tr := otel.Tracer("services/ClaimService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("claim.type", in.ClaimType)),
	)
	defer span.End()

	in.DateOfLoss = strings.TrimSpace(in.DateOfLoss)
	in.ClaimType = strings.TrimSpace(in.ClaimType)
	in.Description = strings.TrimSpace(in.Description)
	if in.DateOfLoss == "" || in.ClaimType == "" || in.Description == "" {
		return nil, ErrMissingFields
	}
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	dol, err := wizard.ParseDate(in.DateOfLoss, loc)
	if err != nil {
		return nil, ErrInvalidDate
	}

	c := &domain.Claim{
		OwnerID:            s.createOwner(),
		DateOfLoss:         dol,
		ClaimType:          in.ClaimType,
		Description:        in.Description,
		ThirdPartyInvolved: in.ThirdPartyInvolved,
		Status:             domain.StatusSubmitted,
	}
	if in.Location != nil && strings.TrimSpace(in.Location.Address) != "" {
		c.Location = &domain.Location{Address: strings.TrimSpace(in.Location.Address)}
	}
	if v := strings.TrimSpace(in.VehicleID); v != "" {
		c.VehicleID = &v
	}
	if err := s.Repo.CreateClaim(ctx, s.DB, c, s.Number); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("claim.id", c.ID))
	return c, nil
}

// ClaimRow is one dashboard line.
type ClaimRow struct {
	ID          string             `json:"id"`
	ClaimNumber string             `json:"claim_number"`
	DateOfLoss  time.Time          `json:"date_of_loss"`
	ClaimType   string             `json:"claim_type"`
	Status      domain.ClaimStatus `json:"status"`
	StatusLabel string             `json:"status_label"`
	Excerpt     string             `json:"excerpt"`
	Vehicle     *VehicleRef        `json:"vehicle,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// VehicleRef is the vehicle summary joined into dashboard rows.
type VehicleRef struct {
	LicensePlate string  `json:"license_plate"`
	Make         *string `json:"make,omitempty"`
	Model        *string `json:"model,omitempty"`
}

// ListPage returns a page of owner's claims, newest first, and the total.
// It applies defaults for invalid page/pageSize.
func (s *ClaimService) ListPage(ctx context.Context, owner string, page, pageSize int) ([]ClaimRow, int64, error) {
	tr := otel.Tracer("services/ClaimService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", owner),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	page, pageSize = utils.ClampPage(page, pageSize)
	offset := utils.Offset(page, pageSize)

	total, err := s.Repo.CountClaims(ctx, s.DB, owner)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []ClaimRow{}, 0, nil
	}

	items, err := s.Repo.ListClaimsPage(ctx, s.DB, owner, offset, pageSize)
	if err != nil {
		return nil, 0, err
	}
	rows := make([]ClaimRow, 0, len(items))
	for i := range items {
		rows = append(rows, toRow(&items[i]))
	}
	return rows, total, nil
}

// Get returns one claim of owner with its vehicle.
func (s *ClaimService) Get(ctx context.Context, owner, id string) (*domain.Claim, error) {
	tr := otel.Tracer("services/ClaimService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("user.id", owner),
			attribute.String("claim.id", id),
		),
	)
	defer span.End()

	c, err := s.Repo.GetClaim(ctx, s.DB, id, owner)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrClaimNotFound
	}
	return c, err
}

// Created returns a claim inserted by Create. Idempotent replays use it to
// answer with the original claim number.
func (s *ClaimService) Created(ctx context.Context, id string) (*domain.Claim, error) {
	return s.Get(ctx, s.createOwner(), id)
}

func (s *ClaimService) createOwner() string {
	if s.SystemOwnerID == "" {
		return PublicOwnerID
	}
	return s.SystemOwnerID
}

// Stats returns the claim count and the latest update of owner's claims.
func (s *ClaimService) Stats(ctx context.Context, owner string) (int64, *time.Time, error) {
	return s.Repo.ClaimsStats(ctx, s.DB, owner)
}

func toRow(c *domain.Claim) ClaimRow {
	r := ClaimRow{
		ID:          c.ID,
		ClaimNumber: c.ClaimNumber,
		DateOfLoss:  c.DateOfLoss,
		ClaimType:   c.ClaimType,
		Status:      c.Status,
		StatusLabel: c.Status.Label(),
		Excerpt:     excerpt(c.Description, excerptRunes),
		CreatedAt:   c.CreatedAt,
	}
	if v := c.Vehicle; v != nil {
		r.Vehicle = &VehicleRef{LicensePlate: v.LicensePlate, Make: v.Make, Model: v.Model}
	}
	return r
}

// excerpt clips s to n runes, marking the cut with an ellipsis.
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n])) + "…"
}
