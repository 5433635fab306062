// Package claimnumber generates the human-facing claim numbers of the form
// CL-<YYYYMMDDhhmmss>-<XXXX>, where the timestamp is UTC wall-clock time and
// the suffix is four random characters from [0-9A-Z].
//
// Numbers are not unique by construction. Two creations in the same second
// collide with probability 1/36^4; the claims table enforces uniqueness and
// the repository regenerates on conflict.
package claimnumber

import (
	"crypto/rand"
	"io"
	"regexp"
	"time"
)

const (
	prefix    = "CL-"
	layout    = "20060102150405"
	alphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	suffixLen = 4
)

// random is the entropy source; tests may replace it.
var random io.Reader = rand.Reader

var formatRE = regexp.MustCompile(`^CL-\d{14}-[0-9A-Z]{4}$`)

// New returns a claim number for the given instant.
func New(now time.Time) (string, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	return prefix + now.UTC().Format(layout) + "-" + suffix, nil
}

// Valid reports whether s has the claim number format.
func Valid(s string) bool { return formatRE.MatchString(s) }

// randomSuffix draws suffixLen characters with rejection sampling so every
// character of the alphabet is equally likely.
func randomSuffix() (string, error) {
	const limit = 252 // largest multiple of 36 below 256
	out := make([]byte, 0, suffixLen)
	buf := make([]byte, 8)
	for len(out) < suffixLen {
		if _, err := io.ReadFull(random, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == suffixLen {
				break
			}
		}
	}
	return string(out), nil
}
