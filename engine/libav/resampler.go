package libav

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avcompose/internal"
	"github.com/xaionaro-go/avcompose/logger"
)

// audioFormat is what an audio encoder accepts.
type audioFormat struct {
	SampleFormat  astiav.SampleFormat
	SampleRate    int
	ChannelLayout astiav.ChannelLayout

	// ChunkSize is the amount of samples per frame; zero means any.
	ChunkSize int
}

// resampler converts audio frames to the format of an encoder and
// re-chunks them into frames of the size the encoder requires.
type resampler struct {
	engine   *Engine
	format   audioFormat
	fifo     *astiav.AudioFifo
	swrCtx   *astiav.SoftwareResampleContext
	buffer   *astiav.Frame
	nextPts  int64
	havePts  bool
	timeBase astiav.Rational
}

func newResampler(
	ctx context.Context,
	e *Engine,
	out audioFormat,
) (_ret *resampler, _err error) {
	logger.Tracef(ctx, "newResampler: %+v", out)
	defer func() { logger.Tracef(ctx, "/newResampler: %+v: %v", out, _err) }()

	chunkSize := out.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1024
	}
	fifo := astiav.AllocAudioFifo(out.SampleFormat, out.ChannelLayout.Channels(), chunkSize)
	if fifo == nil {
		return nil, fmt.Errorf("cannot alloc AudioFifo")
	}
	internal.SetFinalizerFree(ctx, fifo)

	swrCtx := astiav.AllocSoftwareResampleContext()
	if swrCtx == nil {
		return nil, fmt.Errorf("cannot alloc SoftwareResampleContext")
	}
	internal.SetFinalizerFree(ctx, swrCtx)

	buffer := astiav.AllocFrame()
	internal.SetFinalizerFree(ctx, buffer)

	return &resampler{
		engine:   e,
		format:   out,
		fifo:     fifo,
		swrCtx:   swrCtx,
		buffer:   buffer,
		timeBase: astiav.NewRational(1, out.SampleRate),
	}, nil
}

func (r *resampler) String() string {
	return fmt.Sprintf("Resampler<%s %dHz %s>",
		r.format.SampleFormat, r.format.SampleRate, r.format.ChannelLayout,
	)
}

// sendFrame converts in and appends the result to the FIFO; inTimeBase is
// the time base of the pts of in.
func (r *resampler) sendFrame(
	ctx context.Context,
	in *astiav.Frame,
	inTimeBase astiav.Rational,
) (_err error) {
	logger.Tracef(ctx, "sendFrame: %d", in.NbSamples())
	defer func() { logger.Tracef(ctx, "/sendFrame: %d: %v", in.NbSamples(), _err) }()

	if !r.havePts && in.Pts() != astiav.NoPtsValue && inTimeBase.Num() != 0 {
		r.nextPts = astiav.RescaleQ(in.Pts(), inTimeBase, r.timeBase)
		r.havePts = true
	}

	r.buffer.Unref()
	r.buffer.SetChannelLayout(r.format.ChannelLayout)
	r.buffer.SetSampleFormat(r.format.SampleFormat)
	r.buffer.SetSampleRate(r.format.SampleRate)
	if err := r.swrCtx.ConvertFrame(in, r.buffer); err != nil {
		return fmt.Errorf("cannot convert frame: %w", err)
	}
	if r.buffer.NbSamples() == 0 {
		return nil
	}
	if _, err := r.fifo.Write(r.buffer); err != nil {
		return fmt.Errorf("cannot write to AudioFifo: %w", err)
	}
	return nil
}

// receiveFrame reads the next chunk, or returns nil if less than minSize
// samples are buffered. The pts of the result is in 1/SampleRate.
func (r *resampler) receiveFrame(
	ctx context.Context,
	minSize int,
) (_ret *astiav.Frame, _err error) {
	logger.Tracef(ctx, "receiveFrame: %d", minSize)
	defer func() { logger.Tracef(ctx, "/receiveFrame: %d: %v", minSize, _err) }()

	size := r.fifo.Size()
	if size == 0 || size < minSize {
		return nil, nil
	}

	chunkSize := r.format.ChunkSize
	if chunkSize <= 0 || chunkSize > size {
		chunkSize = size
	}

	f := r.engine.framePool.Get()
	f.SetNbSamples(chunkSize)
	f.SetChannelLayout(r.format.ChannelLayout)
	f.SetSampleFormat(r.format.SampleFormat)
	f.SetSampleRate(r.format.SampleRate)
	if err := f.AllocBuffer(Align); err != nil {
		r.engine.framePool.Put(f)
		return nil, fmt.Errorf("cannot alloc buffer for output frame: %w", err)
	}
	n, err := r.fifo.Read(f)
	if err != nil {
		r.engine.framePool.Put(f)
		return nil, fmt.Errorf("unable to read from AudioFifo: %w", err)
	}
	f.SetNbSamples(n)
	f.SetPts(r.nextPts)
	r.nextPts += int64(n)
	return f, nil
}
