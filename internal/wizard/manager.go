package wizard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultIdleTTL applies when Options.IdleTTL is zero.
const DefaultIdleTTL = 2 * time.Hour

// Options tunes a Manager.
type Options struct {
	// IdleTTL evicts sessions untouched for this long.
	IdleTTL time.Duration
	// Location interprets zone-less dates and formats the summary. Nil is UTC.
	Location *time.Location
	// Now is the clock; nil is time.Now.
	Now func() time.Time
}

// Manager is the in-memory registry of wizard sessions. Sessions are
// private to the owner that started them; a foreign owner sees
// ErrSessionNotFound.
type Manager struct {
	store Store
	blob  Blob
	opts  Options

	mu       sync.Mutex
	sessions map[string]*Session
	// busy counts in-flight actions per session id; busy sessions are
	// never evicted.
	busy map[string]int
}

// NewManager returns an empty registry writing through store and blob.
func NewManager(store Store, blob Blob, opts Options) *Manager {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:    store,
		blob:     blob,
		opts:     opts,
		sessions: make(map[string]*Session),
		busy:     make(map[string]int),
	}
}

// Start opens a fresh session for owner.
func (m *Manager) Start(owner string) *Session {
	s := NewSession(uuid.NewString(), owner, m.store, m.blob, m.opts.Location, m.opts.Now)
	m.mu.Lock()
	s.lastUsed = m.opts.Now()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	actions.WithLabelValues("start", outcomeOK).Inc()
	return s
}

// Get returns the session when it exists, belongs to owner and has not
// idled out.
func (m *Manager) Get(id, owner string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupLocked(id, owner)
}

func (m *Manager) lookupLocked(id, owner string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok || s.Owner != owner {
		return nil, ErrSessionNotFound
	}
	if m.busy[id] == 0 && m.opts.Now().Sub(s.lastUsed) >= m.opts.IdleTTL {
		delete(m.sessions, id)
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Discard drops the session. Staged but unsaved input is lost; nothing is
// deleted from the store.
func (m *Manager) Discard(id, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookupLocked(id, owner); err != nil {
		return err
	}
	delete(m.sessions, id)
	delete(m.busy, id)
	return nil
}

// Do runs fn on the session with exclusive access, so overlapping actions
// on one session execute one after another. The outcome is counted under
// action, and failures are logged with the session's step and claim id.
func (m *Manager) Do(ctx context.Context, id, owner, action string, fn func(*Session) error) error {
	m.mu.Lock()
	s, err := m.lookupLocked(id, owner)
	if err == nil {
		m.busy[id]++
	}
	m.mu.Unlock()
	if err != nil {
		actions.WithLabelValues(action, outcomeRejected).Inc()
		return err
	}

	s.mu.Lock()
	err = fn(s)
	step, claimID := s.step, s.claimID
	s.mu.Unlock()

	m.mu.Lock()
	if m.busy[id]--; m.busy[id] <= 0 {
		delete(m.busy, id)
	}
	s.lastUsed = m.opts.Now()
	m.mu.Unlock()

	oc := outcome(err)
	actions.WithLabelValues(action, oc).Inc()
	if err != nil {
		lg := loggerFrom(ctx)
		ev := lg.Error()
		if oc == outcomeRejected {
			ev = lg.Warn()
		}
		ev.Err(err).
			Str("action", action).
			Str("session_id", id).
			Int("step", step).
			Str("claim_id", claimID).
			Msg("wizard action failed")
	}
	return err
}

// Snapshot returns the session's View taken under its lock.
func (m *Manager) Snapshot(id, owner string) (View, error) {
	s, err := m.Get(id, owner)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.View(), nil
}

// Apply runs a typed command through Do.
func (m *Manager) Apply(ctx context.Context, id, owner string, cmd Command) (any, error) {
	var res any
	err := m.Do(ctx, id, owner, cmd.Name(), func(s *Session) error {
		var err error
		res, err = s.Apply(cmd)
		return err
	})
	return res, err
}

// Sweep evicts idle sessions and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.opts.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if m.busy[id] == 0 && now.Sub(s.lastUsed) >= m.opts.IdleTTL {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				log.Debug().Int("evicted", n).Msg("wizard sessions expired")
			}
		}
	}
}

// loggerFrom prefers the request-scoped logger attached to ctx.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if lg := zerolog.Ctx(ctx); lg.GetLevel() != zerolog.Disabled {
		return lg
	}
	return &log.Logger
}
