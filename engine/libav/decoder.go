package libav

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/logger"
	"github.com/xaionaro-go/avcompose/types"
)

type Decoder struct {
	engine       *Engine
	closer       *astikit.Closer
	codec        *astiav.Codec
	codecContext *astiav.CodecContext
	mediaType    types.MediaType
	timeBase     astiav.Rational
}

var _ engine.Decoder = (*Decoder)(nil)

func (e *Engine) NewDecoder(
	ctx context.Context,
	params types.StreamParameters,
) (_ret engine.Decoder, _err error) {
	logger.Debugf(ctx, "NewDecoder: %s", params)
	defer func() { logger.Debugf(ctx, "/NewDecoder: %s: %v", params, _err) }()

	d := &Decoder{
		engine:    e,
		closer:    astikit.NewCloser(),
		mediaType: params.MediaType,
		timeBase:  rationalToAstiav(params.TimeBase),
	}
	defer func() {
		if _err != nil {
			d.closer.Close()
		}
	}()

	d.codec = astiav.FindDecoder(astiav.CodecID(params.CodecID))
	if d.codec == nil {
		return nil, fmt.Errorf("unable to find a decoder for codec %s", params)
	}

	d.codecContext = astiav.AllocCodecContext(d.codec)
	if d.codecContext == nil {
		return nil, fmt.Errorf("unable to allocate a codec context for '%s'", d.codec.Name())
	}
	d.closer.Add(d.codecContext.Free)

	cp, err := codecParameters(params)
	if err != nil {
		return nil, err
	}
	defer cp.Free()
	if err := cp.ToCodecContext(d.codecContext); err != nil {
		return nil, fmt.Errorf("codecParameters.ToCodecContext(...) returned error: %w", err)
	}
	d.codecContext.SetTimeBase(d.timeBase)

	if err := d.codecContext.Open(d.codec, nil); err != nil {
		return nil, fmt.Errorf("unable to open the decoder '%s': %w", d.codec.Name(), err)
	}
	return d, nil
}

func (d *Decoder) String() string {
	return fmt.Sprintf("Decoder(%s)", d.codec.Name())
}

func (d *Decoder) Decode(ctx context.Context, h engine.Handle) (_ret []engine.Handle, _err error) {
	logger.Tracef(ctx, "Decode: %v", h)
	defer func() { logger.Tracef(ctx, "/Decode: %v: %v", h, _err) }()

	entry, err := d.engine.packet(ctx, h)
	if err != nil {
		return nil, err
	}
	if entry.TimeBase.Num() != 0 && entry.TimeBase != d.timeBase {
		p := entry.Packet.Clone()
		defer p.Free()
		p.RescaleTs(entry.TimeBase, d.timeBase)
		return d.send(ctx, p)
	}
	return d.send(ctx, entry.Packet)
}

func (d *Decoder) send(ctx context.Context, p *astiav.Packet) ([]engine.Handle, error) {
	var result []engine.Handle
	for {
		err := d.codecContext.SendPacket(p)
		if err == nil {
			break
		}
		if !errors.Is(err, astiav.ErrEagain) {
			d.free(ctx, result)
			return nil, fmt.Errorf("unable to send a packet to the decoder: %w", err)
		}
		frames, err := d.drain(ctx)
		result = append(result, frames...)
		if err != nil {
			d.free(ctx, result)
			return nil, err
		}
	}
	frames, err := d.drain(ctx)
	result = append(result, frames...)
	if err != nil {
		d.free(ctx, result)
		return nil, err
	}
	return result, nil
}

func (d *Decoder) Flush(ctx context.Context) (_ret []engine.Handle, _err error) {
	logger.Debugf(ctx, "Flush")
	defer func() { logger.Debugf(ctx, "/Flush: %d %v", len(_ret), _err) }()

	if d.codec.Capabilities()&astiav.CodecCapabilityDelay == 0 {
		logger.Tracef(ctx, "the decoder has no delay, nothing to flush")
		return nil, nil
	}

	err := d.codecContext.SendPacket(nil)
	switch {
	case err == nil:
	case errors.Is(err, astiav.ErrEof):
		return nil, nil
	default:
		return nil, fmt.Errorf("unable to send the flush request: %w", err)
	}
	return d.drain(ctx)
}

func (d *Decoder) drain(ctx context.Context) ([]engine.Handle, error) {
	var result []engine.Handle
	for {
		f := d.engine.framePool.Get()
		err := d.codecContext.ReceiveFrame(f)
		if err != nil {
			d.engine.framePool.Put(f)
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
				return result, nil
			}
			return result, fmt.Errorf("unable to receive a frame from the decoder: %w", err)
		}
		result = append(result, d.engine.issueFrame(ctx, f, d.mediaType, d.timeBase))
	}
}

func (d *Decoder) free(ctx context.Context, handles []engine.Handle) {
	for _, h := range handles {
		if err := d.engine.FreeFrame(ctx, h); err != nil {
			logger.Errorf(ctx, "unable to free %v: %v", h, err)
		}
	}
}

func (d *Decoder) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	return d.closer.Close()
}
