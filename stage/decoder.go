package stage

import (
	"context"
	"errors"

	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/logger"
	"github.com/xaionaro-go/avcompose/promise"
	"github.com/xaionaro-go/avcompose/stream"
	"github.com/xaionaro-go/avcompose/types"
)

type DecoderConfig struct {
	OwnershipMode types.OwnershipMode

	// OutputNative makes the decoder emit bridge-native frames
	// (*engine.VideoFrame and *engine.AudioData) instead of engine frames.
	// Native frames are always owned copies.
	OutputNative bool
}

// NewDecoder returns a stage decoding the packets of upstream. Packets of
// streams that are neither audio nor video are dropped.
func NewDecoder(
	ctx context.Context,
	env *Env,
	cfg DecoderConfig,
	upstream *promise.Promise[*Stage],
) *promise.Promise[*Stage] {
	streamType, mode := types.StreamTypeEngineFrame, cfg.OwnershipMode
	if cfg.OutputNative {
		streamType, mode = types.StreamTypeNativeFrame, types.OwnershipModeCopy
	}
	return build(ctx, env, types.ComponentDecoder, streamType, mode, upstream,
		func(ctx context.Context, upstream *Stage, streams []types.StreamParameters) (transformer, []types.StreamParameters, error) {
			d := &decoder{
				mode:     mode.Or(types.DefaultOwnershipMode),
				native:   cfg.OutputNative,
				decoders: make([]engine.Decoder, len(streams)),
			}
			for idx, params := range streams {
				switch params.MediaType {
				case types.MediaTypeVideo, types.MediaTypeAudio:
				default:
					logger.Debugf(ctx, "dropping stream #%d of %s: %s", idx, upstream, params.MediaType)
					continue
				}
				dec, err := env.Engine.NewDecoder(ctx, params)
				if err != nil {
					err = engineFailure("new-decoder", err)
					if closeErr := d.close(ctx); closeErr != nil {
						err = errors.Join(err, closeErr)
					}
					return nil, nil, err
				}
				d.decoders[idx] = dec
			}
			return d, streams, nil
		},
	)
}

type decoder struct {
	mode     types.OwnershipMode
	native   bool
	decoders []engine.Decoder
}

func (d *decoder) transform(ctx context.Context, h *holder, item stream.Item) (stream.Batch, error) {
	dec := d.decoders[item.StreamIndex]
	if dec == nil {
		return nil, nil
	}
	packet, err := h.packetHandle(ctx, item)
	if err != nil {
		return nil, err
	}
	frames, err := dec.Decode(ctx, packet)
	if err != nil {
		return nil, engineFailure("decode", err)
	}
	return h.emitFrames(ctx, item.StreamIndex, frames, d.mode, d.native)
}

func (d *decoder) flush(ctx context.Context, h *holder) (stream.Batch, error) {
	var result stream.Batch
	for idx, dec := range d.decoders {
		if dec == nil {
			continue
		}
		frames, err := dec.Flush(ctx)
		if err != nil {
			return nil, engineFailure("flush-decoder", err)
		}
		items, err := h.emitFrames(ctx, idx, frames, d.mode, d.native)
		if err != nil {
			return nil, err
		}
		result = append(result, items...)
	}
	return result, nil
}

func (d *decoder) close(ctx context.Context) error {
	var errs []error
	for idx, dec := range d.decoders {
		if dec == nil {
			continue
		}
		if err := dec.Close(ctx); err != nil {
			errs = append(errs, engineFailure("close-decoder", err))
		}
		d.decoders[idx] = nil
	}
	return errors.Join(errs...)
}
