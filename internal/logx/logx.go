// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logx configures the process-wide zerolog logger and exposes
// level accessors so packages do not import zerolog/log directly.
package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment selects the output style.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Options configures Init.
type Options struct {
	// Environment is development (console, debug) or production (JSON, info).
	Environment Environment

	// Level overrides the environment's default level when non-empty.
	Level string

	// Out receives log output. Defaults to os.Stderr.
	Out io.Writer
}

// Init replaces the global logger according to opts.
func Init(opts Options) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	level := zerolog.DebugLevel
	if opts.Environment == Production {
		level = zerolog.InfoLevel
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Caller().Logger()
	}

	if opts.Level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level)); err == nil {
			level = parsed
		}
	}
	log.Logger = log.Logger.Level(level)
}

// Discard silences all logging. Tests use it to keep output clean.
func Discard() {
	log.Logger = zerolog.Nop()
}

// With returns a child logger tagged with a component name.
func With(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}
