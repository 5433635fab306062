package wizard

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// actions counts wizard actions by name and outcome. "rejected" covers
// input the user has to fix (validation, unknown ids, refused files);
// "error" covers collaborator failures.
var actions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "claims_wizard_actions_total",
		Help: "Claim wizard actions by action and outcome.",
	},
	[]string{"action", "outcome"},
)

func init() {
	prometheus.MustRegister(actions)
}

// IsUserError reports whether err is caused by the user's input rather than
// by a collaborator. A joined error is a user error only when every part is.
func IsUserError(err error) bool {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		parts := joined.Unwrap()
		for _, part := range parts {
			if part != nil && !IsUserError(part) {
				return false
			}
		}
		return len(parts) > 0
	}
	for _, target := range []error{
		ErrValidation, ErrUnknownField, ErrPartyNotFound, ErrDuplicateParty,
		ErrInvalidRole, ErrFileNotFound, ErrFileTooLarge, ErrFileType,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case IsUserError(err):
		return outcomeRejected
	}
	return outcomeError
}
