package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/logger"
	"github.com/xaionaro-go/avcompose/promise"
	"github.com/xaionaro-go/avcompose/stream"
	"github.com/xaionaro-go/avcompose/types"
)

// EncoderConfig configures the encoders of a stage; a nil config means the
// defaults of types.DefaultVideoEncoderConfig and
// types.DefaultAudioEncoderConfig.
type EncoderConfig struct {
	OwnershipMode types.OwnershipMode
	Video         *types.VideoEncoderConfig
	Audio         *types.AudioEncoderConfig
}

// NewEncoder returns a stage encoding the frames of upstream, whatever
// their representation. Its metadata is the output parameters of the
// encoders; frames of streams that are neither audio nor video are dropped.
func NewEncoder(
	ctx context.Context,
	env *Env,
	cfg EncoderConfig,
	upstream *promise.Promise[*Stage],
) *promise.Promise[*Stage] {
	mode := cfg.OwnershipMode.Or(types.DefaultOwnershipMode)
	return build(ctx, env, types.ComponentEncoder, types.StreamTypePacket, mode, upstream,
		func(ctx context.Context, upstream *Stage, upstreamStreams []types.StreamParameters) (transformer, []types.StreamParameters, error) {
			e := &encoder{
				mode:     mode,
				encoders: make([]engine.Encoder, len(upstreamStreams)),
			}
			streams := make([]types.StreamParameters, len(upstreamStreams))
			for idx, params := range upstreamStreams {
				encCfg := engine.EncoderConfig{Input: params}
				switch params.MediaType {
				case types.MediaTypeVideo:
					encCfg.Video = cfg.Video
					if encCfg.Video == nil {
						v := types.DefaultVideoEncoderConfig()
						encCfg.Video = &v
					}
					if _, _, err := encCfg.Video.FrameSize(params); err != nil {
						err = fmt.Errorf("unable to encode stream #%d of %s: %w", idx, upstream, err)
						if closeErr := e.close(ctx); closeErr != nil {
							err = errors.Join(err, closeErr)
						}
						return nil, nil, err
					}
				case types.MediaTypeAudio:
					encCfg.Audio = cfg.Audio
					if encCfg.Audio == nil {
						a := types.DefaultAudioEncoderConfig()
						encCfg.Audio = &a
					}
				default:
					logger.Debugf(ctx, "dropping stream #%d of %s: %s", idx, upstream, params.MediaType)
					streams[idx] = params
					continue
				}

				enc, err := env.Engine.NewEncoder(ctx, encCfg)
				if err == nil {
					e.encoders[idx] = enc
					streams[idx], err = enc.OutputParameters(ctx)
				}
				if err != nil {
					err = engineFailure("new-encoder", err)
					if closeErr := e.close(ctx); closeErr != nil {
						err = errors.Join(err, closeErr)
					}
					return nil, nil, err
				}
			}
			return e, streams, nil
		},
	)
}

type encoder struct {
	mode     types.OwnershipMode
	encoders []engine.Encoder
}

func (e *encoder) transform(ctx context.Context, h *holder, item stream.Item) (stream.Batch, error) {
	enc := e.encoders[item.StreamIndex]
	if enc == nil {
		return nil, nil
	}
	frame, err := h.frameHandle(ctx, item)
	if err != nil {
		return nil, err
	}
	packets, err := enc.Encode(ctx, frame)
	if err != nil {
		return nil, engineFailure("encode", err)
	}
	return h.emitPackets(ctx, item.StreamIndex, packets, e.mode)
}

func (e *encoder) flush(ctx context.Context, h *holder) (stream.Batch, error) {
	var result stream.Batch
	for idx, enc := range e.encoders {
		if enc == nil {
			continue
		}
		packets, err := enc.Flush(ctx)
		if err != nil {
			return nil, engineFailure("flush-encoder", err)
		}
		items, err := h.emitPackets(ctx, idx, packets, e.mode)
		if err != nil {
			return nil, err
		}
		result = append(result, items...)
	}
	return result, nil
}

func (e *encoder) close(ctx context.Context) error {
	var errs []error
	for idx, enc := range e.encoders {
		if enc == nil {
			continue
		}
		if err := enc.Close(ctx); err != nil {
			errs = append(errs, engineFailure("close-encoder", err))
		}
		e.encoders[idx] = nil
	}
	return errors.Join(errs...)
}
