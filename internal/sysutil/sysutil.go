// Package sysutil holds process-level helpers: logger bootstrap and small
// string predicates shared by configuration and middleware.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps a level name to a zerolog level. Matching ignores case and
// surrounding space, "warning" is accepted for warn, and anything unknown
// (including blank) is info.
func ParseLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	switch lvl, err := zerolog.ParseLevel(name); {
	case err != nil, lvl == zerolog.NoLevel, lvl < zerolog.DebugLevel, lvl > zerolog.PanicLevel:
		return zerolog.InfoLevel
	default:
		return lvl
	}
}

// SetLogLevel sets the global zerolog level from a name; see ParseLevel.
func SetLogLevel(name string) { zerolog.SetGlobalLevel(ParseLevel(name)) }

// ConfigureLogger installs the global logger: JSON to w (stderr when nil),
// or a human-readable console writer when pretty is set. Every line carries
// the service name.
func ConfigureLogger(w io.Writer, level, service string, pretty bool) {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	SetLogLevel(level)

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Str("service", service).Logger()
}

var truthy = map[string]bool{"1": true, "true": true, "yes": true, "y": true, "on": true}

// IsTruthy reports whether a header or flag value means yes: 1, true, yes,
// y or on, in any case.
func IsTruthy(v string) bool { return truthy[strings.ToLower(strings.TrimSpace(v))] }

// FirstNonEmpty returns the first argument that is not blank, unchanged.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
