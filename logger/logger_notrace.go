//go:build !debug_trace
// +build !debug_trace

// logger_notrace.go makes trace logging a no-op unless the module is built
// with the debug_trace tag.

package logger

import (
	"context"
)

// Tracef is a no-op without the debug_trace tag.
func Tracef(ctx context.Context, format string, args ...any) {}
