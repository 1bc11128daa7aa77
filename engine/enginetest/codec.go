package enginetest

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/types"
)

type decoder struct {
	engine *Engine
	params types.StreamParameters
	last   engine.Frame
}

func (e *Engine) NewDecoder(ctx context.Context, params types.StreamParameters) (engine.Decoder, error) {
	if err := e.enter(ctx, "new-decoder"); err != nil {
		return nil, err
	}
	return &decoder{engine: e, params: params}, nil
}

func (d *decoder) Decode(ctx context.Context, packet engine.Handle) ([]engine.Handle, error) {
	if err := d.engine.enter(ctx, "decode"); err != nil {
		return nil, err
	}
	entry, err := d.engine.get(ctx, packet, false)
	if err != nil {
		return nil, err
	}
	d.last = engine.Frame{
		MediaType: d.params.MediaType,
		Format:    "fake",
		Width:     d.params.Width,
		Height:    d.params.Height,
		Pts:       entry.packet.Pts,
		Duration:  entry.packet.Duration,
		TimeBase:  entry.packet.TimeBase,
		KeyFrame:  entry.packet.KeyFrame,
		Data:      []byte(strings.ToUpper(string(entry.packet.Data))),
	}
	return []engine.Handle{d.engine.newFrame(ctx, d.last)}, nil
}

func (d *decoder) Flush(ctx context.Context) ([]engine.Handle, error) {
	if err := d.engine.enter(ctx, "flush-decoder"); err != nil {
		return nil, err
	}
	var result []engine.Handle
	for i := 0; i < d.engine.FlushFrames; i++ {
		f := d.last
		f.Pts += int64(i + 1)
		f.Data = []byte(fmt.Sprintf("FLUSH%d", i))
		result = append(result, d.engine.newFrame(ctx, f))
	}
	return result, nil
}

func (d *decoder) Close(ctx context.Context) error {
	d.engine.enter(ctx, "close-decoder")
	return nil
}

type encoder struct {
	engine *Engine
	output types.StreamParameters
}

func (e *Engine) NewEncoder(ctx context.Context, cfg engine.EncoderConfig) (engine.Encoder, error) {
	if err := e.enter(ctx, "new-encoder"); err != nil {
		return nil, err
	}
	output := cfg.Input
	switch {
	case cfg.Video != nil:
		width, height, err := cfg.Video.FrameSize(cfg.Input)
		if err != nil {
			return nil, err
		}
		output.CodecName = cfg.Video.Codec
		output.Width, output.Height = width, height
	case cfg.Audio != nil:
		output.CodecName = cfg.Audio.Codec
		if cfg.Audio.SampleRate != 0 {
			output.SampleRate = cfg.Audio.SampleRate
		}
	default:
		return nil, fmt.Errorf("no encoder configuration for %s", cfg.Input.MediaType)
	}
	output.CodecID = 2
	return &encoder{engine: e, output: output}, nil
}

func (enc *encoder) OutputParameters(ctx context.Context) (types.StreamParameters, error) {
	return enc.output, nil
}

func (enc *encoder) Encode(ctx context.Context, frame engine.Handle) ([]engine.Handle, error) {
	if err := enc.engine.enter(ctx, "encode"); err != nil {
		return nil, err
	}
	entry, err := enc.engine.get(ctx, frame, true)
	if err != nil {
		return nil, err
	}
	return []engine.Handle{enc.engine.newPacket(ctx, engine.Packet{
		Data:     []byte(enc.output.CodecName + ":" + string(entry.frame.Data)),
		Pts:      entry.frame.Pts,
		Dts:      entry.frame.Pts,
		Duration: entry.frame.Duration,
		TimeBase: entry.frame.TimeBase,
		KeyFrame: entry.frame.KeyFrame,
	})}, nil
}

func (enc *encoder) Flush(ctx context.Context) ([]engine.Handle, error) {
	if err := enc.engine.enter(ctx, "flush-encoder"); err != nil {
		return nil, err
	}
	return nil, nil
}

func (enc *encoder) Close(ctx context.Context) error {
	enc.engine.enter(ctx, "close-encoder")
	return nil
}

type muxer struct {
	engine *Engine
	w      io.Writer
}

// NewMuxer writes a fake container: one header line naming the codecs,
// one line per packet and a trailing "END".
func (e *Engine) NewMuxer(
	ctx context.Context,
	format string,
	w io.WriteSeeker,
	streams []types.StreamParameters,
) (engine.Muxer, error) {
	if err := e.enter(ctx, "new-muxer"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(streams))
	for _, s := range streams {
		names = append(names, s.CodecName)
	}
	if _, err := fmt.Fprintf(w, "%s %s\n", format, strings.Join(names, ",")); err != nil {
		return nil, err
	}
	return &muxer{engine: e, w: w}, nil
}

func (m *muxer) WritePacket(ctx context.Context, streamIndex int, packet engine.Handle) error {
	if err := m.engine.enter(ctx, "mux"); err != nil {
		return err
	}
	entry, err := m.engine.get(ctx, packet, false)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(m.w, "%d %s\n", streamIndex, entry.packet.Data)
	return err
}

func (m *muxer) Finish(ctx context.Context) error {
	if err := m.engine.enter(ctx, "finish-muxer"); err != nil {
		return err
	}
	_, err := fmt.Fprintln(m.w, "END")
	return err
}

func (m *muxer) Close(ctx context.Context) error {
	m.engine.enter(ctx, "close-muxer")
	return nil
}
