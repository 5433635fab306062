package claimnumber

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNew_Format(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 7, 0, time.FixedZone("CET", 3600))
	got, err := New(now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !Valid(got) {
		t.Fatalf("invalid format: %q", got)
	}
	// Timestamp is normalized to UTC.
	if !strings.HasPrefix(got, "CL-20240301090007-") {
		t.Fatalf("unexpected timestamp part: %q", got)
	}
}

func TestNew_SameSecondDiffers(t *testing.T) {
	now := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n, err := New(now)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		seen[n] = true
	}
	// 50 draws from 36^4 values; a full collision set is practically impossible.
	if len(seen) < 45 {
		t.Fatalf("suffixes not random enough: %d distinct of 50", len(seen))
	}
}

func TestRandomSuffix_RejectsBiasedBytes(t *testing.T) {
	prev := random
	defer func() { random = prev }()

	// 255 and 252 are rejected, 0 -> '0', 35 -> 'Z', 36 -> '0', 71 -> 'Z'.
	random = bytes.NewReader([]byte{255, 252, 0, 35, 36, 71, 1, 1})
	got, err := randomSuffix()
	if err != nil {
		t.Fatalf("randomSuffix: %v", err)
	}
	if got != "0Z0Z" {
		t.Fatalf("got %q; want 0Z0Z", got)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestNew_EntropyError(t *testing.T) {
	prev := random
	defer func() { random = prev }()
	random = failingReader{}
	if _, err := New(time.Now()); err == nil {
		t.Fatalf("expected error when entropy source fails")
	}
}

func TestValid(t *testing.T) {
	for _, s := range []string{"CL-2024030110000-ABCD", "CL-20240301100000-abcd", "XX-20240301100000-ABCD", ""} {
		if Valid(s) {
			t.Fatalf("Valid(%q) = true", s)
		}
	}
	if !Valid("CL-20240301100000-A1B2") {
		t.Fatalf("expected valid")
	}
}
