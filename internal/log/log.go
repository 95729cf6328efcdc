// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of tscore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package log provides an explicit, constructed-once logger passed into
// every component at construction, replacing the module-global logger
// pattern. It wraps zerolog but keeps the familiar bracket-tagged,
// printf-style call shape at each call site.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is a component-scoped logging handle. Construct one per
// component with With so log lines carry a consistent tag, e.g.
// log.New(...).With("persister").
type Logger struct {
	zl zerolog.Logger
}

// Config controls the root logger's level and output format.
type Config struct {
	Level  string // debug, info, warn, error, crit
	Pretty bool   // human-readable console output instead of JSON
}

// New builds the root Logger. Component loggers are derived from it via
// With, never constructed directly, so level/format configuration lives
// in exactly one place.
func New(cfg Config) *Logger {
	var w io.Writer = os.Stderr
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	zl := zerolog.New(w).With().Timestamp().Logger().Level(levelFor(cfg.Level))
	return &Logger{zl: zl}
}

func levelFor(lvl string) zerolog.Level {
	switch lvl {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "err", "error":
		return zerolog.ErrorLevel
	case "crit", "fatal":
		return zerolog.FatalLevel
	case "info", "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

// With returns a child Logger tagged with component, carried as a
// "component" field on every line.
func (l *Logger) With(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

func (l *Logger) Debugf(format string, v ...interface{}) { l.zl.Debug().Msgf(format, v...) }
func (l *Logger) Infof(format string, v ...interface{})  { l.zl.Info().Msgf(format, v...) }
func (l *Logger) Warnf(format string, v ...interface{})  { l.zl.Warn().Msgf(format, v...) }
func (l *Logger) Errorf(format string, v ...interface{}) { l.zl.Error().Msgf(format, v...) }

// Fatalf logs at fatal level and terminates the process, matching the
// teacher's Fatalf semantics (log then os.Exit).
func (l *Logger) Fatalf(format string, v ...interface{}) { l.zl.Fatal().Msgf(format, v...) }

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

// Nop returns a Logger that discards all output, useful as a zero-value
// default in tests that don't assert on log content.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}
