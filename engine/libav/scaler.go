package libav

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avcompose/internal"
	"github.com/xaionaro-go/avcompose/logger"
)

// scaler converts video frames to the size and pixel format an encoder
// was opened with.
type scaler struct {
	*astiav.SoftwareScaleContext
}

func newScaler(
	ctx context.Context,
	src *astiav.Frame,
	dstWidth, dstHeight int,
	dstPixFmt astiav.PixelFormat,
) (*scaler, error) {
	swsCtx, err := astiav.CreateSoftwareScaleContext(
		src.Width(),
		src.Height(),
		src.PixelFormat(),
		dstWidth,
		dstHeight,
		dstPixFmt,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create a software scale context: %w", err)
	}
	internal.SetFinalizerFree(ctx, swsCtx)
	return &scaler{SoftwareScaleContext: swsCtx}, nil
}

func (s *scaler) String() string {
	return fmt.Sprintf(
		"SoftwareScaler(%dx%d:%s -> %dx%d:%s)",
		s.SourceWidth(),
		s.SourceHeight(),
		s.SourcePixelFormat(),
		s.DestinationWidth(),
		s.DestinationHeight(),
		s.DestinationPixelFormat(),
	)
}

// matches returns true if the scaler accepts the frame as its source.
func (s *scaler) matches(f *astiav.Frame) bool {
	return s.SourceWidth() == f.Width() &&
		s.SourceHeight() == f.Height() &&
		s.SourcePixelFormat() == f.PixelFormat()
}

func (s *scaler) scaleFrame(
	ctx context.Context,
	src *astiav.Frame,
	dst *astiav.Frame,
) (_err error) {
	logger.Tracef(ctx, "scaleFrame: %s", s)
	defer func() { logger.Tracef(ctx, "/scaleFrame: %s: %v", s, _err) }()
	if err := s.SoftwareScaleContext.ScaleFrame(src, dst); err != nil {
		return fmt.Errorf("unable to scale a frame: %w", err)
	}
	dst.SetPts(src.Pts())
	dst.SetFlags(src.Flags())
	return nil
}
