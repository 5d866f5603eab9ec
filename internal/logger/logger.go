package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
)

// Init initializes the default logger once. Output goes to stderr so command
// output on stdout stays machine-readable. The level comes from
// BRAINSTREAM_LOG_LEVEL (debug, info, warn, error), defaulting to info.
func Init() {
	once.Do(func() {
		level := zerolog.InfoLevel
		if v := os.Getenv("BRAINSTREAM_LOG_LEVEL"); v != "" {
			if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
				level = parsed
			}
		}
		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		defaultLogger = zerolog.New(out).Level(level).With().Timestamp().Logger()
		defaultLogger.Debug().Msg("logger initialized")
	})
}

// Get returns the initialized default logger, initializing it if needed.
func Get() *zerolog.Logger {
	Init()
	return &defaultLogger
}

// Info logs an informational message with optional key-value pairs.
func Info(msg string, args ...any) {
	withFields(Get().Info(), args).Msg(msg)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) {
	withFields(Get().Warn(), args).Msg(msg)
}

// Error logs an error message, attaching err when non-nil.
func Error(msg string, err error, args ...any) {
	ev := Get().Error()
	if err != nil {
		ev = ev.Err(err)
	}
	withFields(ev, args).Msg(msg)
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) {
	withFields(Get().Debug(), args).Msg(msg)
}

func withFields(ev *zerolog.Event, args []any) *zerolog.Event {
	if len(args) > 0 {
		ev = ev.Fields(args)
	}
	return ev
}
