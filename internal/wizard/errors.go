package wizard

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the parent of every *ValidationError.
	ErrValidation = errors.New("validation failed")

	ErrSessionNotFound = errors.New("wizard session not found")
	ErrUnknownField    = errors.New("unknown field")
	ErrPartyNotFound   = errors.New("party not found")
	ErrDuplicateParty  = errors.New("party id already in use")
	ErrInvalidRole     = errors.New("invalid party role")
	ErrFileNotFound    = errors.New("file not found")
	ErrFileTooLarge    = errors.New("file exceeds size limit")
	ErrFileType        = errors.New("file type not allowed")

	// ErrNoClaimID is returned when an upload could not obtain a claim id
	// from the implicit draft save.
	ErrNoClaimID = errors.New("no claim id")
)

// Validation reasons.
const (
	ReasonRequired     = "required"
	ReasonPlate        = "invalid license plate"
	ReasonDate         = "invalid date"
	ReasonNumber       = "invalid number"
	ReasonBool         = "invalid boolean"
	ReasonConfirmation = "confirmation required"
)

// ValidationError reports the first failing field of a step.
type ValidationError struct {
	Step   int
	Field  Field
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("step %d: %s: %s", e.Step, e.Field.Name(), e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Message is the German text shown to the user.
func (e *ValidationError) Message() string {
	switch e.Reason {
	case ReasonPlate:
		return "Bitte geben Sie ein gültiges Kennzeichen ein (z.B. HH-AB 1234)."
	case ReasonConfirmation:
		return "Bitte bestätigen Sie die Richtigkeit Ihrer Angaben."
	case ReasonDate:
		return fmt.Sprintf("Bitte geben Sie im Feld %q ein gültiges Datum ein.", e.Field.Label())
	case ReasonNumber:
		return fmt.Sprintf("Bitte geben Sie im Feld %q eine ganze Zahl ein.", e.Field.Label())
	case ReasonBool:
		return fmt.Sprintf("Ungültiger Wert im Feld %q.", e.Field.Label())
	}
	return fmt.Sprintf("Bitte füllen Sie das Feld %q aus.", e.Field.Label())
}
