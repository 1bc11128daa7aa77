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

type Encoder struct {
	engine       *Engine
	closer       *astikit.Closer
	codec        *astiav.Codec
	codecContext *astiav.CodecContext
	mediaType    types.MediaType

	scaler    *scaler
	resampler *resampler
}

var _ engine.Encoder = (*Encoder)(nil)

func (e *Engine) NewEncoder(
	ctx context.Context,
	cfg engine.EncoderConfig,
) (_ret engine.Encoder, _err error) {
	logger.Debugf(ctx, "NewEncoder: %s", cfg.Input)
	defer func() { logger.Debugf(ctx, "/NewEncoder: %s: %v", cfg.Input, _err) }()

	enc := &Encoder{
		engine:    e,
		closer:    astikit.NewCloser(),
		mediaType: cfg.Input.MediaType,
	}
	defer func() {
		if _err != nil {
			enc.closer.Close()
		}
	}()

	var (
		codecString string
		options     types.DictionaryItems
	)
	switch cfg.Input.MediaType {
	case types.MediaTypeVideo:
		video := types.DefaultVideoEncoderConfig()
		if cfg.Video != nil {
			video = *cfg.Video
		}
		codecString, options = video.Codec, video.Options
	case types.MediaTypeAudio:
		audio := types.DefaultAudioEncoderConfig()
		if cfg.Audio != nil {
			audio = *cfg.Audio
		}
		codecString, options = audio.Codec, audio.Options
	default:
		return nil, fmt.Errorf("unable to encode %s streams", cfg.Input.MediaType)
	}

	codec, err := findEncoder(codecString)
	if err != nil {
		return nil, err
	}
	enc.codec = codec

	enc.codecContext = astiav.AllocCodecContext(codec)
	if enc.codecContext == nil {
		return nil, fmt.Errorf("unable to allocate a codec context for '%s'", codec.Name())
	}
	enc.closer.Add(enc.codecContext.Free)

	switch cfg.Input.MediaType {
	case types.MediaTypeVideo:
		if err := enc.configureVideo(cfg.Input, cfg.Video); err != nil {
			return nil, err
		}
	case types.MediaTypeAudio:
		if err := enc.configureAudio(cfg.Input, cfg.Audio); err != nil {
			return nil, err
		}
	}
	enc.codecContext.SetFlags(enc.codecContext.Flags().Add(astiav.CodecContextFlagGlobalHeader))

	if err := enc.codecContext.Open(codec, dictionaryToAstiav(ctx, options)); err != nil {
		return nil, fmt.Errorf("unable to open the encoder '%s': %w", codec.Name(), err)
	}

	if cfg.Input.MediaType == types.MediaTypeAudio {
		enc.resampler, err = newResampler(ctx, e, audioFormat{
			SampleFormat:  enc.codecContext.SampleFormat(),
			SampleRate:    enc.codecContext.SampleRate(),
			ChannelLayout: enc.codecContext.ChannelLayout(),
			ChunkSize:     enc.codecContext.FrameSize(),
		})
		if err != nil {
			return nil, err
		}
	}
	return enc, nil
}

func (enc *Encoder) configureVideo(
	in types.StreamParameters,
	cfg *types.VideoEncoderConfig,
) error {
	if cfg == nil {
		cfg = &types.VideoEncoderConfig{}
	}
	cc := enc.codecContext

	width, height, err := cfg.FrameSize(in)
	if err != nil {
		return err
	}
	cc.SetWidth(width)
	cc.SetHeight(height)

	pixFmt := pixelFormatFromString(in.Format)
	if pixFmts := enc.codec.PixelFormats(); len(pixFmts) > 0 && !containsPixelFormat(pixFmts, pixFmt) {
		pixFmt = pixFmts[0]
	}
	if pixFmt == astiav.PixelFormatNone {
		pixFmt = astiav.PixelFormatYuv420P
	}
	cc.SetPixelFormat(pixFmt)

	timeBase := in.TimeBase
	if !cfg.FrameRate.IsZero() {
		cc.SetFramerate(rationalToAstiav(cfg.FrameRate))
		timeBase = types.Rational{Num: cfg.FrameRate.Den, Den: cfg.FrameRate.Num}
	}
	if timeBase.IsZero() {
		timeBase = types.TimeBaseMicroseconds
	}
	cc.SetTimeBase(rationalToAstiav(timeBase))

	if cfg.BitRate > 0 {
		cc.SetBitRate(cfg.BitRate)
	}
	if cfg.GOPSize > 0 {
		cc.SetGopSize(cfg.GOPSize)
	}
	return nil
}

func containsPixelFormat(s []astiav.PixelFormat, f astiav.PixelFormat) bool {
	for _, item := range s {
		if item == f {
			return true
		}
	}
	return false
}

func (enc *Encoder) configureAudio(
	in types.StreamParameters,
	cfg *types.AudioEncoderConfig,
) error {
	if cfg == nil {
		cfg = &types.AudioEncoderConfig{}
	}
	cc := enc.codecContext

	sampleRate := in.SampleRate
	if cfg.SampleRate > 0 {
		sampleRate = cfg.SampleRate
	}
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	cc.SetSampleRate(sampleRate)

	channels := in.Channels
	if cfg.Channels > 0 {
		channels = cfg.Channels
	}
	if channels <= 0 {
		channels = 2
	}
	layout, err := channelLayout(channels)
	if err != nil {
		return err
	}
	cc.SetChannelLayout(layout)

	sampleFmt := sampleFormatFromString(in.Format)
	if v := enc.codec.SampleFormats(); len(v) > 0 {
		sampleFmt = v[0]
	}
	if sampleFmt == astiav.SampleFormatNone {
		sampleFmt = astiav.SampleFormatFltp
	}
	cc.SetSampleFormat(sampleFmt)
	cc.SetTimeBase(astiav.NewRational(1, sampleRate))

	if cfg.BitRate > 0 {
		cc.SetBitRate(cfg.BitRate)
	}
	return nil
}

func (enc *Encoder) String() string {
	return fmt.Sprintf("Encoder(%s)", enc.codec.Name())
}

func (enc *Encoder) OutputParameters(ctx context.Context) (types.StreamParameters, error) {
	cp := astiav.AllocCodecParameters()
	if cp == nil {
		return types.StreamParameters{}, fmt.Errorf("unable to allocate codec parameters")
	}
	defer cp.Free()
	if err := cp.FromCodecContext(enc.codecContext); err != nil {
		return types.StreamParameters{}, fmt.Errorf("unable to get the codec parameters: %w", err)
	}
	return streamParameters(cp, enc.codecContext.TimeBase()), nil
}

func (enc *Encoder) Encode(ctx context.Context, h engine.Handle) (_ret []engine.Handle, _err error) {
	logger.Tracef(ctx, "Encode: %v", h)
	defer func() { logger.Tracef(ctx, "/Encode: %v: %v", h, _err) }()

	entry, err := enc.engine.frame(ctx, h)
	if err != nil {
		return nil, err
	}

	switch enc.mediaType {
	case types.MediaTypeAudio:
		if err := enc.resampler.sendFrame(ctx, entry.Frame, entry.TimeBase); err != nil {
			return nil, err
		}
		return enc.encodeBuffered(ctx, enc.resampler.format.ChunkSize)
	default:
		f, err := enc.prepareVideoFrame(ctx, entry)
		if err != nil {
			return nil, err
		}
		defer enc.engine.framePool.Put(f)
		return enc.send(ctx, f)
	}
}

// prepareVideoFrame returns a copy of the frame in the format and time base
// of the encoder.
func (enc *Encoder) prepareVideoFrame(
	ctx context.Context,
	entry *frameEntry,
) (*astiav.Frame, error) {
	cc := enc.codecContext
	f := enc.engine.framePool.Get()
	src := entry.Frame
	if src.Width() == cc.Width() && src.Height() == cc.Height() && src.PixelFormat() == cc.PixelFormat() {
		if err := f.Ref(src); err != nil {
			enc.engine.framePool.Put(f)
			return nil, fmt.Errorf("unable to reference the frame: %w", err)
		}
	} else {
		if enc.scaler == nil || !enc.scaler.matches(src) {
			s, err := newScaler(ctx, src, cc.Width(), cc.Height(), cc.PixelFormat())
			if err != nil {
				enc.engine.framePool.Put(f)
				return nil, err
			}
			enc.scaler = s
		}
		f.SetWidth(cc.Width())
		f.SetHeight(cc.Height())
		f.SetPixelFormat(cc.PixelFormat())
		if err := f.AllocBuffer(Align); err != nil {
			enc.engine.framePool.Put(f)
			return nil, fmt.Errorf("unable to allocate the frame buffer: %w", err)
		}
		if err := enc.scaler.scaleFrame(ctx, src, f); err != nil {
			enc.engine.framePool.Put(f)
			return nil, err
		}
	}
	if f.Pts() != astiav.NoPtsValue && entry.TimeBase.Num() != 0 {
		f.SetPts(astiav.RescaleQ(f.Pts(), entry.TimeBase, cc.TimeBase()))
	}
	return f, nil
}

func (enc *Encoder) encodeBuffered(ctx context.Context, minSize int) ([]engine.Handle, error) {
	var result []engine.Handle
	for {
		f, err := enc.resampler.receiveFrame(ctx, minSize)
		if err != nil {
			enc.free(ctx, result)
			return nil, err
		}
		if f == nil {
			return result, nil
		}
		packets, err := enc.send(ctx, f)
		enc.engine.framePool.Put(f)
		result = append(result, packets...)
		if err != nil {
			enc.free(ctx, result)
			return nil, err
		}
	}
}

func (enc *Encoder) send(ctx context.Context, f *astiav.Frame) ([]engine.Handle, error) {
	var result []engine.Handle
	for {
		err := enc.codecContext.SendFrame(f)
		if err == nil {
			break
		}
		if !errors.Is(err, astiav.ErrEagain) {
			enc.free(ctx, result)
			return nil, fmt.Errorf("unable to send a frame to the encoder: %w", err)
		}
		packets, err := enc.drain(ctx)
		result = append(result, packets...)
		if err != nil {
			enc.free(ctx, result)
			return nil, err
		}
	}
	packets, err := enc.drain(ctx)
	result = append(result, packets...)
	if err != nil {
		enc.free(ctx, result)
		return nil, err
	}
	return result, nil
}

func (enc *Encoder) drain(ctx context.Context) ([]engine.Handle, error) {
	var result []engine.Handle
	for {
		p := enc.engine.packetPool.Get()
		err := enc.codecContext.ReceivePacket(p)
		if err != nil {
			enc.engine.packetPool.Put(p)
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
				return result, nil
			}
			return result, fmt.Errorf("unable to receive a packet from the encoder: %w", err)
		}
		result = append(result, enc.engine.issuePacket(ctx, p, enc.codecContext.TimeBase()))
	}
}

func (enc *Encoder) Flush(ctx context.Context) (_ret []engine.Handle, _err error) {
	logger.Debugf(ctx, "Flush")
	defer func() { logger.Debugf(ctx, "/Flush: %d %v", len(_ret), _err) }()

	var result []engine.Handle
	if enc.resampler != nil {
		packets, err := enc.encodeBuffered(ctx, 0)
		if err != nil {
			return nil, err
		}
		result = packets
	}

	err := enc.codecContext.SendFrame(nil)
	switch {
	case err == nil:
	case errors.Is(err, astiav.ErrEof):
		return result, nil
	default:
		enc.free(ctx, result)
		return nil, fmt.Errorf("unable to send the flush request: %w", err)
	}
	packets, err := enc.drain(ctx)
	result = append(result, packets...)
	if err != nil {
		enc.free(ctx, result)
		return nil, err
	}
	return result, nil
}

func (enc *Encoder) free(ctx context.Context, handles []engine.Handle) {
	for _, h := range handles {
		if err := enc.engine.FreePacket(ctx, h); err != nil {
			logger.Errorf(ctx, "unable to free %v: %v", h, err)
		}
	}
}

func (enc *Encoder) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	return enc.closer.Close()
}
