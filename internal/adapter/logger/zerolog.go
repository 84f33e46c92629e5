package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Zerolog adapts a zerolog.Logger to the domain Logger port. JSON output
// for production, console output for interactive use.
type Zerolog struct {
	log zerolog.Logger
}

// New creates a zerolog-backed logger writing to stderr.
func New(level, format string) *Zerolog {
	return NewWithWriter(level, format, os.Stderr)
}

// NewWithWriter creates a zerolog-backed logger writing to out.
func NewWithWriter(level, format string, out io.Writer) *Zerolog {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return &Zerolog{
		log: zerolog.New(out).Level(lvl).With().Timestamp().Logger(),
	}
}

// Debug logs a debug message with key/value pairs.
func (l *Zerolog) Debug(msg string, args ...any) {
	l.emit(l.log.Debug(), msg, args)
}

// Info logs an informational message with key/value pairs.
func (l *Zerolog) Info(msg string, args ...any) {
	l.emit(l.log.Info(), msg, args)
}

// Error logs an error message with key/value pairs.
func (l *Zerolog) Error(msg string, args ...any) {
	l.emit(l.log.Error(), msg, args)
}

func (l *Zerolog) emit(evt *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		evt = evt.Interface(key, args[i+1])
	}
	evt.Msg(msg)
}
