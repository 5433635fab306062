package wizard

import (
	"regexp"
	"strings"
)

// platePattern matches German license plates: district (1-3 letters,
// umlauts allowed), hyphen, 1-2 letters, optional space, 1-4 digits.
var platePattern = regexp.MustCompile(`^[A-ZÄÖÜ]{1,3}-[A-Z]{1,2}\s?\d{1,4}$`)

// ValidPlate reports whether raw matches the plate pattern as entered.
func ValidPlate(raw string) bool { return platePattern.MatchString(raw) }

// Validate checks the fields of step in document order and returns the
// first failure as a *ValidationError, or nil. Steps without fields always
// pass.
func (s *Session) Validate(step int) error {
	for _, f := range fieldsOf(step) {
		raw := s.form.Value(f)
		if f.Required() && strings.TrimSpace(raw) == "" {
			return &ValidationError{Step: step, Field: f, Reason: ReasonRequired}
		}
		if reason := s.checkFormat(f, raw); reason != "" {
			return &ValidationError{Step: step, Field: f, Reason: reason}
		}
	}
	return nil
}

// checkFormat returns a reason when a non-empty value is malformed.
func (s *Session) checkFormat(f Field, raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	switch f {
	case FieldDateOfLoss:
		if _, err := ParseDate(raw, s.loc); err != nil {
			return ReasonDate
		}
	case FieldLicensePlate:
		// Checked on the raw input; normalization happens on save.
		if !ValidPlate(raw) {
			return ReasonPlate
		}
	case FieldModelYear, FieldMileage:
		if _, err := parseCount(raw); err != nil {
			return ReasonNumber
		}
	}
	return ""
}
