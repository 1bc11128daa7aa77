//go:build debug_trace
// +build debug_trace

// logger_trace.go enables trace logging under the debug_trace tag.

package logger

import (
	"context"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// Tracef logs at the trace level.
func Tracef(ctx context.Context, format string, args ...any) {
	logger.Tracef(ctx, format, args...)
}
