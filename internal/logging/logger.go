// Package logging wires the memory subsystem's external logger collaborator
// to zap, the logging library the rest of this codebase builds on.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink is the string-with-levels logger contract the memory subsystem
// depends on (spec §1 "external collaborators"). Anything satisfying it
// can back a System or Monitor: a *zap.SugaredLogger, a test double, or
// an embedding application's own logger.
type Sink interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// NewProduction builds a zap-backed Sink, mirroring cmd/nerd's
// zap.NewProductionConfig() setup: JSON output, debug level only when
// verbose is requested.
func NewProduction(verbose bool) (Sink, func() error, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Sugar(), logger.Sync, nil
}

// Nop returns a Sink that discards everything, for tests and callers that
// don't want log output.
func Nop() Sink {
	return zap.NewNop().Sugar()
}

// sugared holds the *zap.SugaredLogger that Wrap derives from a caller's
// *zap.Logger, so the value handed to the memory subsystem is a Sink by
// declaration rather than by the method set matching by accident.
type sugared struct {
	*zap.SugaredLogger
}

// Wrap adapts an existing zap logger to Sink.
func Wrap(l *zap.Logger) Sink {
	return sugared{l.Sugar()}
}
