package wizard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/go-claims-backend/internal/domain"
)

// Store is the persistence the wizard writes through. FindVehicle returns
// (nil, nil) when no vehicle matches.
type Store interface {
	CreateClaim(ctx context.Context, c *domain.Claim) error
	UpdateClaim(ctx context.Context, c *domain.Claim) error
	FindVehicle(ctx context.Context, plate, ownerID string) (*domain.Vehicle, error)
	CreateVehicle(ctx context.Context, v *domain.Vehicle) error
	UpdateVehicle(ctx context.Context, v *domain.Vehicle) error
	LinkVehicle(ctx context.Context, claimID, vehicleID string) error
	CreateDamage(ctx context.Context, d *domain.Damage) error
	DeleteParties(ctx context.Context, claimID string) error
	CreateParties(ctx context.Context, parties []domain.ClaimParty) error
	CreateDocument(ctx context.Context, d *domain.Document) error
	DeleteDocument(ctx context.Context, id string) error
	AppendHistory(ctx context.Context, h *domain.StatusHistory) error
}

const (
	damageArea      = "Allgemein"
	noteDrivable    = "Fahrzeug ist fahrbereit"
	noteNotDrivable = "Fahrzeug ist nicht fahrbereit"
	noteSubmitted   = "Schadenfall eingereicht"
)

// ClaimRecord is the claim-shaped projection of the form.
type ClaimRecord struct {
	DateOfLoss         time.Time
	ClaimType          string
	Description        string
	Location           *domain.Location
	ThirdPartyInvolved bool
}

// Collect reads the form into a ClaimRecord. The location is wrapped as
// {address} or nil when blank; date_of_loss becomes a UTC instant.
func (s *Session) Collect() (ClaimRecord, error) {
	dol, err := ParseDate(s.form.DateOfLoss, s.loc)
	if err != nil {
		return ClaimRecord{}, &ValidationError{Step: 1, Field: FieldDateOfLoss, Reason: ReasonDate}
	}
	rec := ClaimRecord{
		DateOfLoss:         dol,
		ClaimType:          strings.TrimSpace(s.form.ClaimType),
		Description:        strings.TrimSpace(s.form.Description),
		ThirdPartyInvolved: s.form.ThirdPartyInvolved,
	}
	if addr := strings.TrimSpace(s.form.Location); addr != "" {
		rec.Location = &domain.Location{Address: addr}
	}
	return rec, nil
}

// collectVehicle returns nil when no plate was entered.
func (s *Session) collectVehicle(owner string) (*domain.Vehicle, error) {
	plate := NormalizePlate(s.form.LicensePlate)
	if plate == "" {
		return nil, nil
	}
	year, err := parseCount(s.form.ModelYear)
	if err != nil {
		return nil, &ValidationError{Step: 2, Field: FieldModelYear, Reason: ReasonNumber}
	}
	mileage, err := parseCount(s.form.Mileage)
	if err != nil {
		return nil, &ValidationError{Step: 2, Field: FieldMileage, Reason: ReasonNumber}
	}
	return &domain.Vehicle{
		OwnerProfileID: owner,
		LicensePlate:   plate,
		VIN:            optional(s.form.VIN),
		Make:           optional(s.form.Make),
		Model:          optional(s.form.Model),
		ModelYear:      year,
		Mileage:        mileage,
	}, nil
}

// Flush writes the claim with the given status: an update when a claim id
// is held, otherwise an insert stamped with owner whose id is kept for the
// rest of the session.
func (s *Session) Flush(ctx context.Context, owner string, status domain.ClaimStatus) error {
	rec, err := s.Collect()
	if err != nil {
		return err
	}
	c := &domain.Claim{
		ID:                 s.claimID,
		OwnerID:            owner,
		DateOfLoss:         rec.DateOfLoss,
		ClaimType:          rec.ClaimType,
		Description:        rec.Description,
		Location:           rec.Location,
		ThirdPartyInvolved: rec.ThirdPartyInvolved,
		Status:             status,
	}
	if s.claimID != "" {
		if err := s.store.UpdateClaim(ctx, c); err != nil {
			return fmt.Errorf("update claim: %w", err)
		}
		s.changed()
		return nil
	}
	if err := s.store.CreateClaim(ctx, c); err != nil {
		return fmt.Errorf("create claim: %w", err)
	}
	s.claimID = c.ID
	s.claimNumber = c.ClaimNumber
	s.changed()
	return nil
}

// FlushVehicle upserts the vehicle by (plate, owner) and links it to the
// held claim. A drivability damage note is added when drivable was answered
// and a claim id is held. Without a plate it does nothing.
func (s *Session) FlushVehicle(ctx context.Context, owner string) error {
	v, err := s.collectVehicle(owner)
	if err != nil || v == nil {
		return err
	}
	existing, err := s.store.FindVehicle(ctx, v.LicensePlate, owner)
	if err != nil {
		return fmt.Errorf("find vehicle: %w", err)
	}
	if existing != nil {
		v.ID = existing.ID
		if err := s.store.UpdateVehicle(ctx, v); err != nil {
			return fmt.Errorf("update vehicle: %w", err)
		}
	} else if err := s.store.CreateVehicle(ctx, v); err != nil {
		return fmt.Errorf("create vehicle: %w", err)
	}

	if s.claimID == "" {
		return nil
	}
	if err := s.store.LinkVehicle(ctx, s.claimID, v.ID); err != nil {
		return fmt.Errorf("link vehicle: %w", err)
	}
	if d := s.form.Drivable; d != nil {
		note := noteNotDrivable
		if *d {
			note = noteDrivable
		}
		dmg := &domain.Damage{ClaimID: s.claimID, Area: damageArea, Description: note, Drivable: *d}
		if err := s.store.CreateDamage(ctx, dmg); err != nil {
			return fmt.Errorf("create damage note: %w", err)
		}
	}
	return nil
}

// FlushParties replaces the persisted parties of the held claim with the
// staged list. It does nothing without a claim id or without parties.
func (s *Session) FlushParties(ctx context.Context) error {
	if s.claimID == "" || len(s.parties) == 0 {
		return nil
	}
	if err := s.store.DeleteParties(ctx, s.claimID); err != nil {
		return fmt.Errorf("delete parties: %w", err)
	}
	rows := make([]domain.ClaimParty, 0, len(s.parties))
	for _, p := range s.parties {
		rows = append(rows, p.row(s.claimID))
	}
	if err := s.store.CreateParties(ctx, rows); err != nil {
		return fmt.Errorf("insert parties: %w", err)
	}
	return nil
}

// SaveDraft flushes claim, vehicle and parties with status draft. Malformed
// input is reported before any write.
func (s *Session) SaveDraft(ctx context.Context, owner string) error {
	if err := s.precheck(owner); err != nil {
		return err
	}
	if err := s.Flush(ctx, owner, domain.StatusDraft); err != nil {
		return err
	}
	if err := s.FlushVehicle(ctx, owner); err != nil {
		return err
	}
	return s.FlushParties(ctx)
}

// SubmitResult identifies the submitted claim.
type SubmitResult struct {
	ClaimID     string `json:"claim_id"`
	ClaimNumber string `json:"claim_number"`
}

// Submit validates every step, requires confirm_accuracy, then flushes the
// claim as submitted, the vehicle and the parties, and appends one status
// history entry. On success the session is reset to a fresh wizard.
func (s *Session) Submit(ctx context.Context, owner string) (SubmitResult, error) {
	for step := FirstStep; step <= LastStep; step++ {
		if err := s.Validate(step); err != nil {
			return SubmitResult{}, err
		}
	}
	if !s.form.ConfirmAccuracy {
		return SubmitResult{}, &ValidationError{Step: LastStep, Field: FieldConfirmAccuracy, Reason: ReasonConfirmation}
	}
	if err := s.precheck(owner); err != nil {
		return SubmitResult{}, err
	}

	if err := s.Flush(ctx, owner, domain.StatusSubmitted); err != nil {
		return SubmitResult{}, err
	}
	if err := s.FlushVehicle(ctx, owner); err != nil {
		return SubmitResult{}, err
	}
	if err := s.FlushParties(ctx); err != nil {
		return SubmitResult{}, err
	}
	h := &domain.StatusHistory{
		ClaimID:   s.claimID,
		Status:    domain.StatusSubmitted,
		ChangedBy: owner,
		Note:      noteSubmitted,
	}
	if err := s.store.AppendHistory(ctx, h); err != nil {
		return SubmitResult{}, fmt.Errorf("append status history: %w", err)
	}

	res := SubmitResult{ClaimID: s.claimID, ClaimNumber: s.claimNumber}
	s.Reset(s.now())
	return res, nil
}

// precheck runs the conversions of every flush so that malformed input
// fails before the first write.
func (s *Session) precheck(owner string) error {
	if _, err := s.Collect(); err != nil {
		return err
	}
	_, err := s.collectVehicle(owner)
	return err
}
