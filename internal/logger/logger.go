// Package logger provides a configured zerolog instance.
package logger

import (
	"io"
	"os"

	"github.com/ilindan-dev/group-notifier/internal/config"
	"github.com/rs/zerolog"
)

// NewLogger creates a new configured instance of zerolog.Logger.
// It reads the log level from the config and adds default fields like service name and caller.
func NewLogger(cfg *config.Config) (*zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Logger.Level)
	if err != nil || cfg.Logger.Level == "" {
		level = zerolog.InfoLevel
	}

	// Pretty console output for local runs, plain JSON lines otherwise.
	var out io.Writer = os.Stderr
	if cfg.Logger.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	logger := zerolog.New(out).With().
		Timestamp().
		Str("service", "group-notifier").
		Caller().
		Logger().
		Level(level)

	return &logger, nil
}
