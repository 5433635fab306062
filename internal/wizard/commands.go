package wizard

// Command is a typed user action on a session's staged state. Commands that
// talk to the store or the blob (save, submit, upload, remove) are methods
// taking a context instead.
type Command interface {
	// Name labels the action in logs and metrics.
	Name() string
	apply(s *Session) (any, error)
}

type (
	// SetFields assigns raw form input keyed by wire name.
	SetFields struct{ Values map[string]string }
	// AddParty stages a party; the result is the stored Party.
	AddParty struct{ Party Party }
	// UpdateParty replaces the party with ID; the result is the stored Party.
	UpdateParty struct {
		ID    string
		Party Party
	}
	RemoveParty struct{ ID string }
	Advance     struct{}
	Retreat     struct{}
	Reset       struct{}
)

func (SetFields) Name() string   { return "set_fields" }
func (AddParty) Name() string    { return "add_party" }
func (UpdateParty) Name() string { return "update_party" }
func (RemoveParty) Name() string { return "remove_party" }
func (Advance) Name() string     { return "advance" }
func (Retreat) Name() string     { return "retreat" }
func (Reset) Name() string       { return "reset" }

func (c SetFields) apply(s *Session) (any, error) { return nil, s.SetFields(c.Values) }
func (c AddParty) apply(s *Session) (any, error)  { return s.AddParty(c.Party) }
func (c UpdateParty) apply(s *Session) (any, error) {
	return s.UpdateParty(c.ID, c.Party)
}
func (c RemoveParty) apply(s *Session) (any, error) { return nil, s.RemoveParty(c.ID) }
func (Advance) apply(s *Session) (any, error)       { return nil, s.Advance() }
func (Retreat) apply(s *Session) (any, error) {
	s.Retreat()
	return nil, nil
}
func (Reset) apply(s *Session) (any, error) {
	s.Reset(s.now())
	return nil, nil
}

// Apply dispatches cmd and returns its result, if any.
func (s *Session) Apply(cmd Command) (any, error) {
	return cmd.apply(s)
}
