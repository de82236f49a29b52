// Package logging configures the process-wide structured logger.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config controls logger construction; mirrors the `logging` section of
// the YAML config.
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// New builds a zerolog.Logger per cfg. "console" gives the human-friendly
// ConsoleWriter used for local runs; anything else emits line-delimited
// JSON, suitable for production log shipping.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if strings.ToLower(cfg.Format) == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	return logger.Level(level)
}
