package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZeroLogger wraps zerolog.Logger to implement the Logger interface.
type ZeroLogger struct {
	zlog *zerolog.Logger
}

// Ensure ZeroLogger implements the interface
var _ Logger = (*ZeroLogger)(nil)

// New creates a new ZeroLogger writing to stdout at the given level.
// If pretty is true, output is formatted for human readability.
// An unparseable level falls back to info.
func New(level string, pretty bool) *ZeroLogger {
	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	l := zerolog.New(out).With().Timestamp().Logger()

	zLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zLevel = zerolog.InfoLevel
	}
	l = l.Level(zLevel)

	return &ZeroLogger{zlog: &l}
}

// FromZerolog wraps an existing zerolog.Logger so applications that already
// configure zerolog can reuse it unchanged.
func FromZerolog(l zerolog.Logger) *ZeroLogger {
	return &ZeroLogger{zlog: &l}
}

// Noop returns a Logger that discards every event. It is the default for
// proxies created without an explicit logger.
func Noop() Logger {
	l := zerolog.Nop()
	return &ZeroLogger{zlog: &l}
}

// WithFields returns a logger with additional fields attached to all entries.
func (l *ZeroLogger) WithFields(fields map[string]any) Logger {
	log := l.zlog.With().Fields(fields).Logger()
	return &ZeroLogger{zlog: &log}
}

// Info creates an info-level log event
func (l *ZeroLogger) Info() LogEvent {
	return &logEventAdapter{event: l.zlog.Info()}
}

// Error creates an error-level log event
func (l *ZeroLogger) Error() LogEvent {
	return &logEventAdapter{event: l.zlog.Error()}
}

// Debug creates a debug-level log event
func (l *ZeroLogger) Debug() LogEvent {
	return &logEventAdapter{event: l.zlog.Debug()}
}

// Warn creates a warning-level log event
func (l *ZeroLogger) Warn() LogEvent {
	return &logEventAdapter{event: l.zlog.Warn()}
}
