// Package libav implements the codec engine on top of libav (FFmpeg)
// through astiav.
package libav

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/internal"
	"github.com/xaionaro-go/avcompose/logger"
	"github.com/xaionaro-go/avcompose/pool"
	"github.com/xaionaro-go/avcompose/types"
	"github.com/xaionaro-go/xsync"
)

// Align is the alignment of frame buffers allocated by the engine.
const Align = 0

type frameEntry struct {
	*astiav.Frame
	MediaType types.MediaType
	TimeBase  astiav.Rational
}

type packetEntry struct {
	*astiav.Packet
	TimeBase astiav.Rational
}

type Engine struct {
	locker     xsync.Mutex
	nextHandle engine.Handle
	frames     map[engine.Handle]*frameEntry
	packets    map[engine.Handle]*packetEntry

	framePool  *pool.Pool[astiav.Frame]
	packetPool *pool.Pool[astiav.Packet]
}

var _ engine.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{
		nextHandle: 1,
		frames:     map[engine.Handle]*frameEntry{},
		packets:    map[engine.Handle]*packetEntry{},
		framePool: pool.NewPool(
			astiav.AllocFrame,
			func(f *astiav.Frame) { f.Unref() },
			func(f *astiav.Frame) { f.Free() },
		),
		packetPool: pool.NewPool(
			astiav.AllocPacket,
			func(p *astiav.Packet) { p.Unref() },
			func(p *astiav.Packet) { p.Free() },
		),
	}
}

// LiveHandles returns the amount of frames and packets not freed yet.
func (e *Engine) LiveHandles(ctx context.Context) int {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &e.locker, func() int {
		return len(e.frames) + len(e.packets)
	})
}

func (e *Engine) issueFrame(
	ctx context.Context,
	f *astiav.Frame,
	mediaType types.MediaType,
	timeBase astiav.Rational,
) engine.Handle {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &e.locker, func() engine.Handle {
		h := e.nextHandle
		e.nextHandle++
		internal.Assert(ctx, e.frames[h] == nil, h)
		e.frames[h] = &frameEntry{Frame: f, MediaType: mediaType, TimeBase: timeBase}
		return h
	})
}

func (e *Engine) issuePacket(
	ctx context.Context,
	p *astiav.Packet,
	timeBase astiav.Rational,
) engine.Handle {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &e.locker, func() engine.Handle {
		h := e.nextHandle
		e.nextHandle++
		internal.Assert(ctx, e.packets[h] == nil, h)
		e.packets[h] = &packetEntry{Packet: p, TimeBase: timeBase}
		return h
	})
}

func (e *Engine) frame(ctx context.Context, h engine.Handle) (*frameEntry, error) {
	f := xsync.DoR1(xsync.WithNoLogging(ctx, true), &e.locker, func() *frameEntry {
		return e.frames[h]
	})
	if f == nil {
		return nil, ErrUnknownHandle{Handle: h}
	}
	return f, nil
}

func (e *Engine) packet(ctx context.Context, h engine.Handle) (*packetEntry, error) {
	p := xsync.DoR1(xsync.WithNoLogging(ctx, true), &e.locker, func() *packetEntry {
		return e.packets[h]
	})
	if p == nil {
		return nil, ErrUnknownHandle{Handle: h}
	}
	return p, nil
}

func (e *Engine) AllocFrame(ctx context.Context) (engine.Handle, error) {
	return e.issueFrame(ctx, e.framePool.Get(), types.MediaTypeUnknown, astiav.NewRational(0, 1)), nil
}

func (e *Engine) FreeFrame(ctx context.Context, h engine.Handle) error {
	f := xsync.DoR1(xsync.WithNoLogging(ctx, true), &e.locker, func() *frameEntry {
		f := e.frames[h]
		delete(e.frames, h)
		return f
	})
	if f == nil {
		return ErrUnknownHandle{Handle: h}
	}
	e.framePool.Put(f.Frame)
	return nil
}

func (e *Engine) CopyInFrame(ctx context.Context, h engine.Handle, in *engine.Frame) (_err error) {
	logger.Tracef(ctx, "CopyInFrame: %v", h)
	defer func() { logger.Tracef(ctx, "/CopyInFrame: %v: %v", h, _err) }()

	entry, err := e.frame(ctx, h)
	if err != nil {
		return err
	}
	f := entry.Frame
	f.Unref()
	switch in.MediaType {
	case types.MediaTypeVideo:
		f.SetWidth(in.Width)
		f.SetHeight(in.Height)
		pixFmt := pixelFormatFromString(in.Format)
		if pixFmt == astiav.PixelFormatNone {
			return fmt.Errorf("unknown pixel format '%s'", in.Format)
		}
		f.SetPixelFormat(pixFmt)
	case types.MediaTypeAudio:
		layout, err := channelLayout(in.Channels)
		if err != nil {
			return err
		}
		sampleFmt := sampleFormatFromString(in.Format)
		if sampleFmt == astiav.SampleFormatNone {
			return fmt.Errorf("unknown sample format '%s'", in.Format)
		}
		f.SetChannelLayout(layout)
		f.SetSampleFormat(sampleFmt)
		f.SetSampleRate(in.SampleRate)
		f.SetNbSamples(in.NbSamples)
	default:
		return fmt.Errorf("unsupported media type %s", in.MediaType)
	}
	if err := f.AllocBuffer(Align); err != nil {
		return fmt.Errorf("unable to allocate the frame buffer: %w", err)
	}
	if err := f.Data().SetBytes(in.Data, 1); err != nil {
		return fmt.Errorf("unable to copy the frame data: %w", err)
	}
	f.SetPts(in.Pts)
	if in.KeyFrame {
		f.SetFlags(f.Flags().Add(astiav.FrameFlagKey))
	}

	e.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		entry.MediaType = in.MediaType
		entry.TimeBase = rationalToAstiav(in.TimeBase)
	})
	return nil
}

func (e *Engine) CopyOutFrame(ctx context.Context, h engine.Handle) (*engine.Frame, error) {
	entry, err := e.frame(ctx, h)
	if err != nil {
		return nil, err
	}
	f := entry.Frame
	data, err := f.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("unable to copy the frame data: %w", err)
	}
	out := &engine.Frame{
		MediaType: entry.MediaType,
		Pts:       f.Pts(),
		TimeBase:  rationalFromAstiav(entry.TimeBase),
		KeyFrame:  f.Flags().Has(astiav.FrameFlagKey),
		Data:      data,
	}
	switch entry.MediaType {
	case types.MediaTypeVideo:
		out.Format = f.PixelFormat().String()
		out.Width, out.Height = f.Width(), f.Height()
	case types.MediaTypeAudio:
		out.Format = f.SampleFormat().String()
		out.SampleRate = f.SampleRate()
		out.Channels = f.ChannelLayout().Channels()
		out.NbSamples = f.NbSamples()
		if out.SampleRate > 0 {
			out.Duration = astiav.RescaleQ(
				int64(out.NbSamples),
				astiav.NewRational(1, out.SampleRate),
				entry.TimeBase,
			)
		}
	}
	return out, nil
}

func (e *Engine) AllocPacket(ctx context.Context) (engine.Handle, error) {
	return e.issuePacket(ctx, e.packetPool.Get(), astiav.NewRational(0, 1)), nil
}

func (e *Engine) FreePacket(ctx context.Context, h engine.Handle) error {
	p := xsync.DoR1(xsync.WithNoLogging(ctx, true), &e.locker, func() *packetEntry {
		p := e.packets[h]
		delete(e.packets, h)
		return p
	})
	if p == nil {
		return ErrUnknownHandle{Handle: h}
	}
	e.packetPool.Put(p.Packet)
	return nil
}

func (e *Engine) CopyInPacket(ctx context.Context, h engine.Handle, in *engine.Packet) error {
	entry, err := e.packet(ctx, h)
	if err != nil {
		return err
	}
	p := entry.Packet
	p.Unref()
	if err := p.FromData(append([]byte(nil), in.Data...)); err != nil {
		return fmt.Errorf("unable to copy the packet data: %w", err)
	}
	p.SetStreamIndex(in.StreamIndex)
	p.SetPts(in.Pts)
	p.SetDts(in.Dts)
	p.SetDuration(in.Duration)
	if in.KeyFrame {
		p.SetFlags(p.Flags().Add(astiav.PacketFlagKey))
	}
	e.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		entry.TimeBase = rationalToAstiav(in.TimeBase)
	})
	return nil
}

func (e *Engine) CopyOutPacket(ctx context.Context, h engine.Handle) (*engine.Packet, error) {
	entry, err := e.packet(ctx, h)
	if err != nil {
		return nil, err
	}
	p := entry.Packet
	return &engine.Packet{
		StreamIndex: p.StreamIndex(),
		Data:        append([]byte(nil), p.Data()...),
		Pts:         p.Pts(),
		Dts:         p.Dts(),
		Duration:    p.Duration(),
		TimeBase:    rationalFromAstiav(entry.TimeBase),
		KeyFrame:    p.Flags().Has(astiav.PacketFlagKey),
	}, nil
}
