// Package sysutil configures process-wide concerns of the server binary:
// the global zerolog logger and build metadata.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel sets the global zerolog level from lvl (case-insensitive,
// "warning" accepted for warn) and returns it. Blank or unknown values
// select info.
func SetLogLevel(lvl string) zerolog.Level {
	lvl = strings.ToLower(strings.TrimSpace(lvl))
	if lvl == "warning" {
		lvl = "warn"
	}
	level, err := zerolog.ParseLevel(lvl)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return level
}

// SetupLogger installs the global logger: JSON lines on w (stderr when
// nil), or a human readable console when pretty is set. Every entry carries
// the service name and version.
func SetupLogger(w io.Writer, level string, pretty bool, service, version string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	SetLogLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	l := zerolog.New(w).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
	log.Logger = l
	zerolog.DefaultContextLogger = &log.Logger
	return l
}

// Version returns the first non-blank of vals, or "dev".
func Version(vals ...string) string {
	if v := FirstNonEmpty(vals...); v != "" {
		return strings.TrimSpace(v)
	}
	return "dev"
}

// FirstNonEmpty returns the first value that is not blank, unchanged, or ""
// when there is none.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
