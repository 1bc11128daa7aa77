package internal

import (
	"context"

	"github.com/xaionaro-go/avcompose/logger"
)

// Assert panics through the logger of ctx if mustBeTrue is false.
func Assert(
	ctx context.Context,
	mustBeTrue bool,
	extraArgs ...any,
) {
	if mustBeTrue {
		return
	}
	logger.Panic(ctx, "assertion failed", extraArgs)
}
