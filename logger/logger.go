// Package logger is a thin facade over go-belt's logger, so that the rest of
// the module does not depend on a particular logging implementation.
package logger

import (
	"context"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// Logger is just a type-alias for logger.Logger for convenience.
type Logger = logger.Logger

type Level = logger.Level

const (
	LevelFatal   = logger.LevelFatal
	LevelPanic   = logger.LevelPanic
	LevelError   = logger.LevelError
	LevelWarning = logger.LevelWarning
	LevelInfo    = logger.LevelInfo
	LevelDebug   = logger.LevelDebug
	LevelTrace   = logger.LevelTrace
)

func SetDefault(defaultLogger func() Logger) {
	logger.Default = defaultLogger
}

// WithStage attaches the name of the stage to all the messages logged
// through the returned context.
func WithStage(ctx context.Context, stageName string) context.Context {
	return belt.WithField(ctx, "stage", stageName)
}

// Debugf is just a shorthand for Logf(ctx, logger.LevelDebug, ...)
func Debugf(ctx context.Context, format string, args ...any) {
	logger.Debugf(ctx, format, args...)
}

// Infof is just a shorthand for Logf(ctx, logger.LevelInfo, ...)
func Infof(ctx context.Context, format string, args ...any) {
	logger.Infof(ctx, format, args...)
}

// Warnf is just a shorthand for Logf(ctx, logger.LevelWarn, ...)
func Warnf(ctx context.Context, format string, args ...any) {
	logger.Warnf(ctx, format, args...)
}

// Errorf is just a shorthand for Logf(ctx, logger.LevelError, ...)
func Errorf(ctx context.Context, format string, args ...any) {
	logger.Errorf(ctx, format, args...)
}

// Panic is just a shorthand for Log(ctx, logger.LevelPanic, ...)
//
// Be aware: Panic level also triggers a `panic`.
func Panic(ctx context.Context, values ...any) {
	logger.Panic(ctx, values...)
}

// Logf logs an unstructured message. All contextual structured
// fields are also logged.
func Logf(ctx context.Context, level logger.Level, format string, args ...any) {
	logger.Logf(ctx, level, format, args...)
}

// FromCtx returns the logger attached to ctx (or the default one).
func FromCtx(ctx context.Context) Logger {
	return logger.FromCtx(ctx)
}
