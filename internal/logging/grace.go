package logging

import "github.com/rs/zerolog"

// GraceLogger adapts a zerolog logger to the printf-style Info/Error
// logger expected by grace.WithLogger.
type GraceLogger struct {
	logger zerolog.Logger
}

// NewGraceLogger returns an adapter writing to logger.
func NewGraceLogger(logger zerolog.Logger) *GraceLogger {
	return &GraceLogger{logger: logger}
}

func (l *GraceLogger) Info(msg string, args ...any) {
	logf(l.logger.Info(), msg, args)
}

func (l *GraceLogger) Error(msg string, args ...any) {
	logf(l.logger.Error(), msg, args)
}

func logf(e *zerolog.Event, msg string, args []any) {
	if len(args) > 0 {
		e.Msgf(msg, args...)
		return
	}
	e.Msg(msg)
}
