package wizard

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-claims-backend/internal/domain"
)

// fakeStore records calls in order and can fail selected operations.
type fakeStore struct {
	mu       sync.Mutex
	calls    []string
	fail     map[string]error
	vehicles map[string]*domain.Vehicle // key: plate|owner
	parties  map[string][]domain.ClaimParty
	claims   map[string]*domain.Claim
	docs     map[string]*domain.Document
	damages  []domain.Damage
	history  []domain.StatusHistory
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		fail:     map[string]error{},
		vehicles: map[string]*domain.Vehicle{},
		parties:  map[string][]domain.ClaimParty{},
		claims:   map[string]*domain.Claim{},
		docs:     map[string]*domain.Document{},
	}
}

func (f *fakeStore) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.fail[op]
}

func (f *fakeStore) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeStore) CreateClaim(_ context.Context, c *domain.Claim) error {
	if err := f.record("CreateClaim"); err != nil {
		return err
	}
	c.ID = uuid.NewString()
	c.ClaimNumber = "CL-20240301100000-TEST"
	cp := *c
	f.claims[c.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateClaim(_ context.Context, c *domain.Claim) error {
	if err := f.record("UpdateClaim"); err != nil {
		return err
	}
	old, ok := f.claims[c.ID]
	if !ok || old.OwnerID != c.OwnerID {
		return errors.New("record not found")
	}
	cp := *c
	cp.ClaimNumber = old.ClaimNumber
	f.claims[c.ID] = &cp
	return nil
}

func (f *fakeStore) FindVehicle(_ context.Context, plate, owner string) (*domain.Vehicle, error) {
	if err := f.record("FindVehicle"); err != nil {
		return nil, err
	}
	return f.vehicles[plate+"|"+owner], nil
}

func (f *fakeStore) CreateVehicle(_ context.Context, v *domain.Vehicle) error {
	if err := f.record("CreateVehicle"); err != nil {
		return err
	}
	v.ID = uuid.NewString()
	cp := *v
	f.vehicles[v.LicensePlate+"|"+v.OwnerProfileID] = &cp
	return nil
}

func (f *fakeStore) UpdateVehicle(_ context.Context, v *domain.Vehicle) error {
	if err := f.record("UpdateVehicle"); err != nil {
		return err
	}
	cp := *v
	f.vehicles[v.LicensePlate+"|"+v.OwnerProfileID] = &cp
	return nil
}

func (f *fakeStore) LinkVehicle(_ context.Context, claimID, vehicleID string) error {
	if err := f.record("LinkVehicle"); err != nil {
		return err
	}
	f.claims[claimID].VehicleID = &vehicleID
	return nil
}

func (f *fakeStore) CreateDamage(_ context.Context, d *domain.Damage) error {
	if err := f.record("CreateDamage"); err != nil {
		return err
	}
	f.damages = append(f.damages, *d)
	return nil
}

func (f *fakeStore) DeleteParties(_ context.Context, claimID string) error {
	if err := f.record("DeleteParties"); err != nil {
		return err
	}
	delete(f.parties, claimID)
	return nil
}

func (f *fakeStore) CreateParties(_ context.Context, ps []domain.ClaimParty) error {
	if err := f.record("CreateParties"); err != nil {
		return err
	}
	for _, p := range ps {
		f.parties[p.ClaimID] = append(f.parties[p.ClaimID], p)
	}
	return nil
}

func (f *fakeStore) CreateDocument(_ context.Context, d *domain.Document) error {
	if err := f.record("CreateDocument"); err != nil {
		return err
	}
	d.ID = uuid.NewString()
	cp := *d
	f.docs[d.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, id string) error {
	if err := f.record("DeleteDocument"); err != nil {
		return err
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeStore) AppendHistory(_ context.Context, h *domain.StatusHistory) error {
	if err := f.record("AppendHistory"); err != nil {
		return err
	}
	f.history = append(f.history, *h)
	return nil
}

// fakeBlob keeps objects in memory.
type fakeBlob struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploads   int
	deletes   int
	uploadErr error
	deleteErr error
}

func newFakeBlob() *fakeBlob { return &fakeBlob{objects: map[string][]byte{}} }

func (b *fakeBlob) Upload(_ context.Context, path string, r io.Reader, _ string, _ int64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads++
	if b.uploadErr != nil {
		return "", b.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.objects[path] = data
	return path, nil
}

func (b *fakeBlob) Delete(_ context.Context, paths ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes++
	if b.deleteErr != nil {
		return b.deleteErr
	}
	for _, p := range paths {
		delete(b.objects, p)
	}
	return nil
}

func (b *fakeBlob) PublicURL(path string) string { return "https://files.example/" + path }

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, store Store, blob Blob) *Session {
	t.Helper()
	return NewSession("s1", "owner-1", store, blob, time.UTC, func() time.Time { return fixedNow })
}

// fillStep1 sets the three required loss fields.
func fillStep1(t *testing.T, s *Session) {
	t.Helper()
	err := s.SetFields(map[string]string{
		"date_of_loss": "2024-03-01T10:00",
		"claim_type":   "collision",
		"description":  "rear-end collision",
	})
	if err != nil {
		t.Fatalf("SetFields: %v", err)
	}
}

func pngFile(name string, size int) FileInput {
	return FileInput{Name: name, Size: int64(size), ContentType: "image/png", Body: strings.NewReader(strings.Repeat("x", size))}
}

func mustParty(t *testing.T, s *Session, p Party) Party {
	t.Helper()
	got, err := s.AddParty(p)
	if err != nil {
		t.Fatalf("AddParty(%+v): %v", p, err)
	}
	return got
}

func ctxBG() context.Context { return context.Background() }
