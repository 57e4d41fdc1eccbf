// Package logging builds the zerolog logger shared by qemumgr components.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options selects the logger output.
type Options struct {
	// Level is a zerolog level name; empty means info.
	Level string

	// Format is "console" (human readable) or "json".
	Format string

	// Writer defaults to stderr.
	Writer io.Writer
}

// New returns a timestamped logger configured by opts and installs it as
// zerolog's default context logger.
func New(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parse log level: %w", err)
		}
		level = l
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	switch opts.Format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", opts.Format)
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	return logger, nil
}
