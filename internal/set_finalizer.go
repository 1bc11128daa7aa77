package internal

import (
	"context"
	"runtime"

	"github.com/xaionaro-go/avcompose/logger"
)

func SetFinalizerFree[T interface{ Free() }](
	ctx context.Context,
	freer T,
) {
	runtime.SetFinalizer(freer, func(freer T) {
		logger.Tracef(ctx, "freeing %T", freer)
		freer.Free()
	})
}
