package libav

import (
	"context"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/logger"
	"github.com/xaionaro-go/avcompose/types"
)

type Muxer struct {
	engine        *Engine
	closer        *astikit.Closer
	formatContext *astiav.FormatContext
	streams       []*astiav.Stream
	finished      bool
}

var _ engine.Muxer = (*Muxer)(nil)

func (e *Engine) NewMuxer(
	ctx context.Context,
	format string,
	w io.WriteSeeker,
	streams []types.StreamParameters,
) (_ret engine.Muxer, _err error) {
	logger.Debugf(ctx, "NewMuxer: '%s', %d streams", format, len(streams))
	defer func() { logger.Debugf(ctx, "/NewMuxer: '%s': %v", format, _err) }()

	m := &Muxer{
		engine: e,
		closer: astikit.NewCloser(),
	}
	defer func() {
		if _err != nil {
			m.closer.Close()
		}
	}()

	formatContext, err := astiav.AllocOutputFormatContext(nil, format, "")
	if err != nil {
		return nil, fmt.Errorf("allocating output format context failed using format '%s': %w", format, err)
	}
	if formatContext == nil {
		return nil, fmt.Errorf("unable to allocate the output format context")
	}
	m.formatContext = formatContext
	m.closer.Add(formatContext.Free)

	for idx, params := range streams {
		logger.Tracef(ctx, "output stream #%d: %s", idx, spew.Sdump(params))
		stream := formatContext.NewStream(nil)
		if stream == nil {
			return nil, fmt.Errorf("unable to create output stream #%d", idx)
		}
		cp, err := codecParameters(params)
		if err != nil {
			return nil, fmt.Errorf("stream #%d: %w", idx, err)
		}
		err = cp.Copy(stream.CodecParameters())
		cp.Free()
		if err != nil {
			return nil, fmt.Errorf("unable to copy the codec parameters of stream #%d: %w", idx, err)
		}
		stream.SetTimeBase(rationalToAstiav(params.TimeBase))
		m.streams = append(m.streams, stream)
	}

	ioContext, err := astiav.AllocIOContext(
		IOBufferSize,
		true,
		nil,
		seekFunc(w),
		func(b []byte) (int, error) { return w.Write(b) },
	)
	if err != nil {
		return nil, fmt.Errorf("unable to allocate the IO context: %w", err)
	}
	m.closer.Add(ioContext.Free)
	formatContext.SetPb(ioContext)

	if err := formatContext.WriteHeader(nil); err != nil {
		return nil, fmt.Errorf("unable to write the header: %w", err)
	}
	return m, nil
}

func (m *Muxer) WritePacket(
	ctx context.Context,
	streamIndex int,
	h engine.Handle,
) (_err error) {
	logger.Tracef(ctx, "WritePacket: #%d %v", streamIndex, h)
	defer func() { logger.Tracef(ctx, "/WritePacket: #%d %v: %v", streamIndex, h, _err) }()

	if m.finished {
		return fmt.Errorf("the muxer is already finished")
	}
	if streamIndex < 0 || streamIndex >= len(m.streams) {
		return ErrUnknownStream{StreamIndex: streamIndex}
	}
	entry, err := m.engine.packet(ctx, h)
	if err != nil {
		return err
	}

	p := entry.Packet.Clone()
	if p == nil {
		return fmt.Errorf("unable to clone the packet")
	}
	defer p.Free()
	stream := m.streams[streamIndex]
	p.SetStreamIndex(streamIndex)
	if entry.TimeBase.Num() != 0 {
		p.RescaleTs(entry.TimeBase, stream.TimeBase())
	}
	if err := m.formatContext.WriteInterleavedFrame(p); err != nil {
		return fmt.Errorf("unable to write the packet: %w", err)
	}
	return nil
}

func (m *Muxer) Finish(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Finish")
	defer func() { logger.Debugf(ctx, "/Finish: %v", _err) }()
	if m.finished {
		return nil
	}
	m.finished = true
	if err := m.formatContext.WriteTrailer(); err != nil {
		return fmt.Errorf("unable to write the trailer: %w", err)
	}
	return nil
}

func (m *Muxer) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	return m.closer.Close()
}
