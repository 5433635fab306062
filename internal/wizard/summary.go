package wizard

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Summary is the read-only recap shown at step 5.
type Summary struct {
	Sections []SummarySection `json:"sections"`
}

// SummarySection groups the lines of one entity.
type SummarySection struct {
	Title string        `json:"title"`
	Items []SummaryItem `json:"items"`
}

// SummaryItem is one labeled line.
type SummaryItem struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

var de = message.NewPrinter(language.German)

// Summary recomputes the recap from the staged form, parties and files. It
// reads nothing from the store and changes nothing.
func (s *Session) Summary() Summary {
	f := &s.form
	var out Summary

	loss := SummarySection{Title: "Schadendetails"}
	loss.add(FieldDateOfLoss.Label(), s.formatDate(f.DateOfLoss))
	loss.add(FieldClaimType.Label(), f.ClaimType)
	loss.add(FieldDescription.Label(), f.Description)
	loss.add(FieldLocation.Label(), f.Location)
	loss.add(FieldThirdPartyInvolved.Label(), yesNo(f.ThirdPartyInvolved))
	out.Sections = append(out.Sections, loss)

	if plate := NormalizePlate(f.LicensePlate); plate != "" {
		v := SummarySection{Title: "Fahrzeug"}
		v.add(FieldLicensePlate.Label(), plate)
		v.add(FieldVIN.Label(), f.VIN)
		v.add(FieldMake.Label(), f.Make)
		v.add(FieldModel.Label(), f.Model)
		v.add(FieldModelYear.Label(), f.ModelYear)
		if n, err := parseCount(f.Mileage); err == nil && n != nil {
			v.add(FieldMileage.Label(), de.Sprintf("%d km", *n))
		} else {
			v.add(FieldMileage.Label(), f.Mileage)
		}
		if f.Drivable != nil {
			v.add(FieldDrivable.Label(), yesNo(*f.Drivable))
		}
		out.Sections = append(out.Sections, v)
	}

	if len(s.parties) > 0 {
		ps := SummarySection{Title: "Beteiligte"}
		for _, p := range s.parties {
			ps.add(p.Role.Label(), partyLine(p))
		}
		out.Sections = append(out.Sections, ps)
	}

	if len(s.files) > 0 {
		fs := SummarySection{Title: "Anhänge"}
		for _, file := range s.files {
			fs.add(file.Name, FormatFileSize(file.Size))
		}
		out.Sections = append(out.Sections, fs)
	}
	return out
}

// add skips blank values.
func (sec *SummarySection) add(label, value string) {
	if v := strings.TrimSpace(value); v != "" {
		sec.Items = append(sec.Items, SummaryItem{Label: label, Value: v})
	}
}

func (s *Session) formatDate(raw string) string {
	t, err := ParseDate(raw, s.loc)
	if err != nil {
		return raw
	}
	return t.In(s.loc).Format("02.01.2006, 15:04")
}

func partyLine(p Party) string {
	parts := make([]string, 0, 5)
	for _, v := range []string{p.Name, p.Phone, p.Email, p.Address} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	if p.InsuranceCompany != "" {
		parts = append(parts, "Versicherung: "+p.InsuranceCompany)
	}
	return strings.Join(parts, ", ")
}

func yesNo(b bool) string {
	if b {
		return "Ja"
	}
	return "Nein"
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders bytes in binary units with at most two decimals,
// e.g. "1.5 KB", "10 MB", "0 Bytes".
func FormatFileSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	v, i := float64(n), 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}
