package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-claims-backend/internal/domain"
)

func fixedNumbers(nums ...string) (ClaimNumberFunc, *int) {
	calls := 0
	return func(time.Time) (string, error) {
		n := nums[calls%len(nums)]
		calls++
		return n, nil
	}, &calls
}

func newDraft(owner string) *domain.Claim {
	return &domain.Claim{
		OwnerID:     owner,
		DateOfLoss:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		ClaimType:   "collision",
		Description: "rear-end collision",
		Status:      domain.StatusDraft,
	}
}

func TestCreateClaim_AssignsIDAndNumber(t *testing.T) {
	db := newClaimsDB(t)
	gen, calls := fixedNumbers("CL-20240301100000-AB12")

	c := newDraft("u1")
	if err := CreateClaim(context.Background(), db, c, gen); err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	if c.ID == "" || c.ClaimNumber != "CL-20240301100000-AB12" || *calls != 1 {
		t.Fatalf("unexpected claim %+v calls=%d", c, *calls)
	}
}

func TestCreateClaim_RetriesOnNumberCollision(t *testing.T) {
	db := newClaimsDB(t)
	ctx := context.Background()

	first, _ := fixedNumbers("CL-20240301100000-AAAA")
	if err := CreateClaim(ctx, db, newDraft("u1"), first); err != nil {
		t.Fatalf("seed: %v", err)
	}

	gen, calls := fixedNumbers("CL-20240301100000-AAAA", "CL-20240301100000-BBBB")
	c := newDraft("u2")
	if err := CreateClaim(ctx, db, c, gen); err != nil {
		t.Fatalf("CreateClaim after collision: %v", err)
	}
	if c.ClaimNumber != "CL-20240301100000-BBBB" || *calls != 2 {
		t.Fatalf("expected regenerated number, got %q after %d calls", c.ClaimNumber, *calls)
	}
}

func TestCreateClaim_GivesUpAfterMaxAttempts(t *testing.T) {
	db := newClaimsDB(t)
	ctx := context.Background()

	gen, calls := fixedNumbers("CL-20240301100000-ZZZZ")
	if err := CreateClaim(ctx, db, newDraft("u1"), gen); err != nil {
		t.Fatalf("seed: %v", err)
	}
	*calls = 0
	err := CreateClaim(ctx, db, newDraft("u1"), gen)
	if err == nil || !isUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if *calls != MaxClaimNumberAttempts {
		t.Fatalf("expected %d attempts, got %d", MaxClaimNumberAttempts, *calls)
	}
}

func TestCreateClaim_GeneratorError(t *testing.T) {
	db := newClaimsDB(t)
	boom := errors.New("entropy")
	err := CreateClaim(context.Background(), db, newDraft("u1"), func(time.Time) (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected generator error, got %v", err)
	}
}

func TestUpdateClaim_OwnerScopedAndNullsLocation(t *testing.T) {
	db := newClaimsDB(t)
	ctx := context.Background()
	gen, _ := fixedNumbers("CL-20240301100000-UPD1")

	c := newDraft("u1")
	c.Location = &domain.Location{Address: "Hauptstr. 1"}
	if err := CreateClaim(ctx, db, c, gen); err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}

	f := ClaimFields{
		DateOfLoss:  c.DateOfLoss,
		ClaimType:   "glass",
		Description: "windscreen",
		Status:      domain.StatusSubmitted,
	}
	if err := UpdateClaim(ctx, db, c.ID, "intruder", f); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	if err := UpdateClaim(ctx, db, c.ID, "u1", f); err != nil {
		t.Fatalf("UpdateClaim: %v", err)
	}

	got, err := GetClaim(ctx, db, c.ID, "u1")
	if err != nil {
		t.Fatalf("GetClaim: %v", err)
	}
	if got.Status != domain.StatusSubmitted || got.ClaimType != "glass" || got.ClaimNumber != c.ClaimNumber {
		t.Fatalf("unexpected claim after update: %+v", got)
	}
	var nulls int64
	db.Model(&domain.Claim{}).Where("id = ? AND location IS NULL", c.ID).Count(&nulls)
	if nulls != 1 {
		t.Fatalf("expected location to be NULL after update")
	}
}

func TestListClaimsPage_NewestFirstWithVehicle(t *testing.T) {
	db := newClaimsDB(t)
	ctx := context.Background()

	older := seedClaim(t, db, "c1", "u1", time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	seedClaim(t, db, "c2", "u1", time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC))
	seedClaim(t, db, "c3", "u2", time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))

	mk := "VW"
	v := &domain.Vehicle{OwnerProfileID: "u1", LicensePlate: "HH-AB 1234", Make: &mk}
	if err := CreateVehicle(ctx, db, v); err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}
	if err := LinkClaimVehicle(ctx, db, older.ID, v.ID); err != nil {
		t.Fatalf("LinkClaimVehicle: %v", err)
	}

	total, err := CountClaims(ctx, db, "u1")
	if err != nil || total != 2 {
		t.Fatalf("CountClaims = %d, %v", total, err)
	}
	items, err := ListClaimsPage(ctx, db, "u1", 0, 10)
	if err != nil {
		t.Fatalf("ListClaimsPage: %v", err)
	}
	if len(items) != 2 || items[0].ID != "c2" || items[1].ID != "c1" {
		t.Fatalf("unexpected order: %+v", items)
	}
	if items[0].Vehicle != nil {
		t.Fatalf("c2 has no vehicle")
	}
	if items[1].Vehicle == nil || items[1].Vehicle.LicensePlate != "HH-AB 1234" {
		t.Fatalf("expected joined vehicle on c1, got %+v", items[1].Vehicle)
	}

	page2, err := ListClaimsPage(ctx, db, "u1", 1, 1)
	if err != nil || len(page2) != 1 || page2[0].ID != "c1" {
		t.Fatalf("unexpected second page: %+v %v", page2, err)
	}
}

func TestLinkClaimVehicle_MissingClaim(t *testing.T) {
	db := newClaimsDB(t)
	if err := LinkClaimVehicle(context.Background(), db, "nope", "v1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusHistory_AppendAndList(t *testing.T) {
	db := newClaimsDB(t)
	ctx := context.Background()
	c := seedClaim(t, db, "c1", "u1", time.Now().UTC())

	if err := AppendStatusHistory(ctx, db, &domain.StatusHistory{ClaimID: c.ID, Status: domain.StatusSubmitted, ChangedBy: "u1", Note: "Schadenfall eingereicht"}); err != nil {
		t.Fatalf("AppendStatusHistory: %v", err)
	}
	hist, err := ListStatusHistory(ctx, db, c.ID)
	if err != nil || len(hist) != 1 {
		t.Fatalf("ListStatusHistory = %+v, %v", hist, err)
	}
	if hist[0].Status != domain.StatusSubmitted || !strings.Contains(hist[0].Note, "eingereicht") {
		t.Fatalf("unexpected history: %+v", hist[0])
	}
}
