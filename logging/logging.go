// Package logging configures the daemon's zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing to stderr at the given level. Format "text" produces
// human-readable console output; anything else produces JSON. Unknown levels fall back to info.
func New(level, format string) zerolog.Logger {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil || parsedLevel == zerolog.NoLevel {
		parsedLevel = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if format == "text" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(parsedLevel).With().Timestamp().Logger()
}
