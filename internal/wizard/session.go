// Package wizard hosts the claim wizard: a five-step, linear state machine
// that stages one claim with its optional vehicle, its involved parties and
// its attachments in memory, and commits them through a Store and a Blob
// collaborator when the user saves a draft or submits.
//
// Steps:
//
//	1 loss details    date_of_loss, claim_type, description (required),
//	                  location, third_party_involved
//	2 vehicle         license_plate (pattern-checked when present), vin,
//	                  make, model, model_year, mileage, drivable
//	3 parties         add/update/remove, replaced as a full set on save
//	4 attachments     images and PDFs up to 10 MiB
//	5 summary         read-only recap, confirm_accuracy, submit
//
// Writes are issued one after another and are not transactional: a failure
// aborts the remaining writes of the action and leaves earlier ones in place.
// The caller retries by repeating the action.
//
// A Session is not safe for concurrent use. Manager.Do serializes actions on
// one session.
package wizard

import (
	"sync"
	"time"
)

// Step bounds.
const (
	FirstStep = 1
	LastStep  = 5
)

// Session is the state of one user editing one claim.
type Session struct {
	ID    string
	Owner string

	mu sync.Mutex

	step        int
	claimID     string
	claimNumber string
	form        Form
	parties     []Party
	files       []FileDesc

	// summary is regenerated on every change once step 5 has been reached.
	summary        *Summary
	reachedSummary bool

	store Store
	blob  Blob
	now   func() time.Time
	loc   *time.Location
	// lastUsed is guarded by the owning Manager's mutex.
	lastUsed time.Time
}

// NewSession returns a session at step 1 with date_of_loss set to now.
// A nil loc means UTC; a nil now means time.Now.
func NewSession(id, owner string, store Store, blob Blob, loc *time.Location, now func() time.Time) *Session {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	s := &Session{ID: id, Owner: owner, store: store, blob: blob, loc: loc, now: now}
	s.Reset(now())
	return s
}

func (s *Session) Step() int                { return s.step }
func (s *Session) ClaimID() string          { return s.claimID }
func (s *Session) ClaimNumber() string      { return s.claimNumber }
func (s *Session) Form() Form               { return s.form }
func (s *Session) Location() *time.Location { return s.loc }

// Parties returns a copy of the staged parties.
func (s *Session) Parties() []Party { return append([]Party(nil), s.parties...) }

// Files returns a copy of the uploaded file descriptors.
func (s *Session) Files() []FileDesc { return append([]FileDesc(nil), s.files...) }

// CachedSummary returns the summary generated on reaching step 5, or nil.
func (s *Session) CachedSummary() *Summary { return s.summary }

// Advance validates the current step and moves forward. At step 5 it is a
// no-op. Entering step 5 generates the summary.
func (s *Session) Advance() error {
	if err := s.Validate(s.step); err != nil {
		return err
	}
	if s.step >= LastStep {
		return nil
	}
	s.step++
	if s.step == LastStep {
		s.reachedSummary = true
		sum := s.Summary()
		s.summary = &sum
	}
	return nil
}

// Retreat moves back one step without validation. At step 1 it is a no-op.
func (s *Session) Retreat() {
	if s.step > FirstStep {
		s.step--
	}
}

// Reset returns the session to a fresh wizard: step 1, no claim, no
// parties, no files, and date_of_loss set to now in the session location.
func (s *Session) Reset(now time.Time) {
	s.step = FirstStep
	s.claimID = ""
	s.claimNumber = ""
	s.form = Form{DateOfLoss: now.In(s.loc).Format("2006-01-02T15:04:05")}
	s.parties = nil
	s.files = nil
	s.summary = nil
	s.reachedSummary = false
}

// SetFields assigns raw values keyed by wire name. Unknown names are
// rejected before anything is changed.
func (s *Session) SetFields(values map[string]string) error {
	fields := make(map[Field]string, len(values))
	for name, v := range values {
		f, ok := ParseField(name)
		if !ok {
			return &unknownFieldError{name: name}
		}
		fields[f] = v
	}
	next := s.form
	for f, v := range fields {
		if err := next.Set(f, v); err != nil {
			return err
		}
	}
	s.form = next
	s.changed()
	return nil
}

// changed refreshes the cached summary once step 5 has been reached.
func (s *Session) changed() {
	if s.reachedSummary {
		sum := s.Summary()
		s.summary = &sum
	}
}

type unknownFieldError struct{ name string }

func (e *unknownFieldError) Error() string { return ErrUnknownField.Error() + ": " + e.name }
func (e *unknownFieldError) Unwrap() error { return ErrUnknownField }

// View is the client-facing snapshot of a session.
type View struct {
	ID          string            `json:"id"`
	Step        int               `json:"step"`
	ClaimID     string            `json:"claim_id,omitempty"`
	ClaimNumber string            `json:"claim_number,omitempty"`
	Fields      map[string]string `json:"fields"`
	Parties     []Party           `json:"parties"`
	Files       []FileDesc        `json:"files"`
	Summary     *Summary          `json:"summary,omitempty"`
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	v := View{
		ID:          s.ID,
		Step:        s.step,
		ClaimID:     s.claimID,
		ClaimNumber: s.claimNumber,
		Fields:      s.form.Values(),
		Parties:     s.Parties(),
		Files:       s.Files(),
		Summary:     s.summary,
	}
	if v.Parties == nil {
		v.Parties = []Party{}
	}
	if v.Files == nil {
		v.Files = []FileDesc{}
	}
	return v
}
