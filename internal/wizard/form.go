package wizard

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field identifies one input of the claim form. Fields are declared in
// document order; validation reports the first failing field in this order.
type Field int

const (
	FieldDateOfLoss Field = iota
	FieldClaimType
	FieldDescription
	FieldLocation
	FieldThirdPartyInvolved
	FieldLicensePlate
	FieldVIN
	FieldMake
	FieldModel
	FieldModelYear
	FieldMileage
	FieldDrivable
	FieldConfirmAccuracy

	fieldCount
)

var fieldMeta = [fieldCount]struct {
	name, label string
	step        int
	required    bool
}{
	FieldDateOfLoss:         {"date_of_loss", "Schadendatum", 1, true},
	FieldClaimType:          {"claim_type", "Schadenart", 1, true},
	FieldDescription:        {"description", "Beschreibung", 1, true},
	FieldLocation:           {"location", "Schadenort", 1, false},
	FieldThirdPartyInvolved: {"third_party_involved", "Dritte beteiligt", 1, false},
	FieldLicensePlate:       {"license_plate", "Kennzeichen", 2, false},
	FieldVIN:                {"vin", "FIN", 2, false},
	FieldMake:               {"make", "Marke", 2, false},
	FieldModel:              {"model", "Modell", 2, false},
	FieldModelYear:          {"model_year", "Baujahr", 2, false},
	FieldMileage:            {"mileage", "Kilometerstand", 2, false},
	FieldDrivable:           {"drivable", "Fahrbereit", 2, false},
	FieldConfirmAccuracy:    {"confirm_accuracy", "Richtigkeit bestätigt", 5, false},
}

// Name is the wire name used by the HTTP API.
func (f Field) Name() string {
	if f < 0 || f >= fieldCount {
		return "field(" + strconv.Itoa(int(f)) + ")"
	}
	return fieldMeta[f].name
}

// Label is the German display label.
func (f Field) Label() string {
	if f < 0 || f >= fieldCount {
		return f.Name()
	}
	return fieldMeta[f].label
}

// Step is the wizard step the field belongs to.
func (f Field) Step() int {
	if f < 0 || f >= fieldCount {
		return 0
	}
	return fieldMeta[f].step
}

// Required reports whether the field must be non-empty to leave its step.
func (f Field) Required() bool {
	if f < 0 || f >= fieldCount {
		return false
	}
	return fieldMeta[f].required
}

// ParseField resolves a wire name.
func ParseField(name string) (Field, bool) {
	for f := Field(0); f < fieldCount; f++ {
		if fieldMeta[f].name == name {
			return f, true
		}
	}
	return 0, false
}

// fieldsOf returns the fields of step in document order.
func fieldsOf(step int) []Field {
	var out []Field
	for f := Field(0); f < fieldCount; f++ {
		if fieldMeta[f].step == step {
			out = append(out, f)
		}
	}
	return out
}

// Form holds the raw user input. Text fields keep exactly what was entered;
// conversion to typed values happens in Collect and the vehicle flush.
type Form struct {
	DateOfLoss         string
	ClaimType          string
	Description        string
	Location           string
	ThirdPartyInvolved bool

	LicensePlate string
	VIN          string
	Make         string
	Model        string
	ModelYear    string
	Mileage      string
	Drivable     *bool // nil when not answered

	ConfirmAccuracy bool
}

// Value returns the field as text. Booleans render as "true"/"false";
// an unanswered drivable field is "".
func (f *Form) Value(field Field) string {
	switch field {
	case FieldDateOfLoss:
		return f.DateOfLoss
	case FieldClaimType:
		return f.ClaimType
	case FieldDescription:
		return f.Description
	case FieldLocation:
		return f.Location
	case FieldThirdPartyInvolved:
		return strconv.FormatBool(f.ThirdPartyInvolved)
	case FieldLicensePlate:
		return f.LicensePlate
	case FieldVIN:
		return f.VIN
	case FieldMake:
		return f.Make
	case FieldModel:
		return f.Model
	case FieldModelYear:
		return f.ModelYear
	case FieldMileage:
		return f.Mileage
	case FieldDrivable:
		if f.Drivable == nil {
			return ""
		}
		return strconv.FormatBool(*f.Drivable)
	case FieldConfirmAccuracy:
		return strconv.FormatBool(f.ConfirmAccuracy)
	}
	return ""
}

// Set assigns raw input to a field. Boolean fields accept the usual HTML
// form spellings ("on", "true", "1", ...).
func (f *Form) Set(field Field, raw string) error {
	switch field {
	case FieldDateOfLoss:
		f.DateOfLoss = raw
	case FieldClaimType:
		f.ClaimType = raw
	case FieldDescription:
		f.Description = raw
	case FieldLocation:
		f.Location = raw
	case FieldLicensePlate:
		f.LicensePlate = raw
	case FieldVIN:
		f.VIN = raw
	case FieldMake:
		f.Make = raw
	case FieldModel:
		f.Model = raw
	case FieldModelYear:
		f.ModelYear = raw
	case FieldMileage:
		f.Mileage = raw
	case FieldThirdPartyInvolved, FieldConfirmAccuracy, FieldDrivable:
		b, set, err := parseBool(raw)
		if err != nil {
			return &ValidationError{Step: field.Step(), Field: field, Reason: ReasonBool}
		}
		switch field {
		case FieldThirdPartyInvolved:
			f.ThirdPartyInvolved = b
		case FieldConfirmAccuracy:
			f.ConfirmAccuracy = b
		default:
			if set {
				f.Drivable = &b
			} else {
				f.Drivable = nil
			}
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownField, int(field))
	}
	return nil
}

// Values returns every field keyed by wire name.
func (f *Form) Values() map[string]string {
	out := make(map[string]string, fieldCount)
	for field := Field(0); field < fieldCount; field++ {
		out[field.Name()] = f.Value(field)
	}
	return out
}

// parseBool reports the value and whether the input was non-empty.
func parseBool(raw string) (v, set bool, err error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return false, false, nil
	case "true", "1", "on", "yes", "ja":
		return true, true, nil
	case "false", "0", "off", "no", "nein":
		return false, true, nil
	}
	return false, false, fmt.Errorf("not a boolean: %q", raw)
}

// dateLayouts are tried in order. Layouts without a zone are read in the
// session's location.
var dateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate reads an RFC 3339 timestamp or a zone-less date/time
// interpreted in loc, and returns the instant as UTC.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// parseCount parses a non-negative integer; German thousands separators
// ("123.456") are accepted. Empty input yields nil.
func parseCount(raw string) (*int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, " ", "")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("not a count: %q", raw)
	}
	return &n, nil
}

// optional returns nil for blank input.
func optional(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	return &s
}

// NormalizePlate upper-cases a license plate and collapses every run of
// whitespace into a single space.
func NormalizePlate(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), " "))
}
