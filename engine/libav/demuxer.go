package libav

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/logger"
	"github.com/xaionaro-go/avcompose/types"
)

// IOBufferSize is the size of the buffers of the custom IO contexts.
const IOBufferSize = 1 << 16

type Demuxer struct {
	engine        *Engine
	closer        *astikit.Closer
	formatContext *astiav.FormatContext
}

var _ engine.Demuxer = (*Demuxer)(nil)

func readFunc(r io.Reader) astiav.IOContextReadFunc {
	return func(b []byte) (int, error) {
		n, err := r.Read(b)
		if n == 0 && errors.Is(err, io.EOF) {
			return 0, astiav.ErrEof
		}
		if n > 0 {
			return n, nil
		}
		return n, err
	}
}

func seekFunc(s io.Seeker) astiav.IOContextSeekFunc {
	if s == nil {
		return nil
	}
	return func(offset int64, whence int) (int64, error) {
		return s.Seek(offset, whence)
	}
}

func (e *Engine) OpenDemuxer(
	ctx context.Context,
	r io.Reader,
	format string,
) (_ret engine.Demuxer, _err error) {
	logger.Debugf(ctx, "OpenDemuxer: '%s'", format)
	defer func() { logger.Debugf(ctx, "/OpenDemuxer: '%s': %v", format, _err) }()

	d := &Demuxer{
		engine: e,
		closer: astikit.NewCloser(),
	}
	defer func() {
		if _err != nil {
			d.closer.Close()
		}
	}()

	var inputFormat *astiav.InputFormat
	if format != "" {
		inputFormat = astiav.FindInputFormat(format)
		if inputFormat == nil {
			return nil, fmt.Errorf("unknown input format '%s'", format)
		}
	}

	seeker, _ := r.(io.Seeker)
	ioContext, err := astiav.AllocIOContext(IOBufferSize, false, readFunc(r), seekFunc(seeker), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to allocate the IO context: %w", err)
	}
	d.closer.Add(ioContext.Free)

	d.formatContext = astiav.AllocFormatContext()
	if d.formatContext == nil {
		return nil, fmt.Errorf("unable to allocate the format context")
	}
	d.closer.Add(d.formatContext.Free)
	d.formatContext.SetPb(ioContext)

	if err := d.formatContext.OpenInput("", inputFormat, nil); err != nil {
		return nil, fmt.Errorf("unable to open the input: %w", err)
	}
	d.closer.Add(d.formatContext.CloseInput)

	if err := d.formatContext.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("unable to get stream info: %w", err)
	}
	return d, nil
}

func (d *Demuxer) Streams(ctx context.Context) ([]types.StreamParameters, error) {
	var result []types.StreamParameters
	for _, stream := range d.formatContext.Streams() {
		p := streamParameters(stream.CodecParameters(), stream.TimeBase())
		logger.Tracef(ctx, "input stream #%d: %s", stream.Index(), spew.Sdump(p))
		result = append(result, p)
	}
	return result, nil
}

func (d *Demuxer) ReadPackets(ctx context.Context) ([]engine.StreamHandle, error) {
	p := d.engine.packetPool.Get()
	err := d.formatContext.ReadFrame(p)
	switch {
	case err == nil:
	case errors.Is(err, astiav.ErrEof), errors.Is(err, astiav.ErrEio):
		d.engine.packetPool.Put(p)
		return nil, io.EOF
	default:
		d.engine.packetPool.Put(p)
		return nil, fmt.Errorf("unable to read a packet: %w", err)
	}

	streams := d.formatContext.Streams()
	idx := p.StreamIndex()
	if idx < 0 || idx >= len(streams) {
		d.engine.packetPool.Put(p)
		return nil, ErrUnknownStream{StreamIndex: idx}
	}
	return []engine.StreamHandle{{
		StreamIndex: idx,
		Handle:      d.engine.issuePacket(ctx, p, streams[idx].TimeBase()),
	}}, nil
}

func (d *Demuxer) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	return d.closer.Close()
}
