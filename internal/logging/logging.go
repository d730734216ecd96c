// Package logging configures the process-wide zerolog logger.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New creates a console logger at the given level. An empty or unknown
// level falls back to info; debug forces the debug level regardless.
// Components derive their own sub-loggers via With().Str("component", ...).
func New(level string, debug bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}

	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
