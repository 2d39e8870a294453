// Package throttle provides logger construction.
package throttle

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds a structured logger at the given level. Unknown levels
// fall back to info; a nil writer logs to stderr.
func NewLogger(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
