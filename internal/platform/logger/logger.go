// Package logger provides configured zerolog loggers.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns a structured JSON logger for long-running services.
func New(serviceName string) zerolog.Logger {
	return zerolog.New(os.Stdout).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}

// NewConsole returns a human-readable logger for CLI use, writing to stderr
// so command output on stdout stays machine-parseable.
func NewConsole(serviceName string, verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}
