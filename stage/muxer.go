package stage

import (
	"context"

	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/payload"
	"github.com/xaionaro-go/avcompose/promise"
	"github.com/xaionaro-go/avcompose/stream"
	"github.com/xaionaro-go/avcompose/types"
)

type MuxerConfig struct {
	// Format is the container format, types.DefaultMuxerFormat if empty.
	Format string
}

// NewMuxer returns a stage interleaving the packets of upstream into a
// container. It emits the container as *engine.FileChunk owned copies on
// logical stream 0; the chunk positions tell where each piece belongs, since
// the engine may seek back to rewrite headers.
func NewMuxer(
	ctx context.Context,
	env *Env,
	cfg MuxerConfig,
	upstream *promise.Promise[*Stage],
) *promise.Promise[*Stage] {
	format := cfg.Format
	if format == "" {
		format = types.DefaultMuxerFormat
	}
	return build(ctx, env, types.ComponentMuxer, types.StreamTypeFile, types.OwnershipModeCopy, upstream,
		func(ctx context.Context, upstream *Stage, upstreamStreams []types.StreamParameters) (transformer, []types.StreamParameters, error) {
			m := &muxer{}
			var err error
			m.muxer, err = env.Engine.NewMuxer(ctx, format, &m.output, upstreamStreams)
			if err != nil {
				return nil, nil, engineFailure("new-muxer", err)
			}
			return m, []types.StreamParameters{{
				CodecName: format,
				MediaType: types.MediaTypeData,
				TimeBase:  types.TimeBaseMicroseconds,
			}}, nil
		},
	)
}

type muxer struct {
	muxer  engine.Muxer
	output chunkCollector
}

func (m *muxer) transform(ctx context.Context, h *holder, item stream.Item) (stream.Batch, error) {
	packet, err := h.packetHandle(ctx, item)
	if err != nil {
		return nil, err
	}
	if err := m.muxer.WritePacket(ctx, item.StreamIndex, packet); err != nil {
		return nil, engineFailure("mux", err)
	}
	return m.emit(h), nil
}

func (m *muxer) flush(ctx context.Context, h *holder) (stream.Batch, error) {
	if err := m.muxer.Finish(ctx); err != nil {
		return nil, engineFailure("finish-muxer", err)
	}
	return m.emit(h), nil
}

func (m *muxer) emit(h *holder) stream.Batch {
	chunks := m.output.drain()
	result := make(stream.Batch, 0, len(chunks))
	for _, chunk := range chunks {
		result = append(result, stream.Item{Payload: h.track(payload.Owned(chunk))})
	}
	return result
}

func (m *muxer) close(ctx context.Context) error {
	if m.muxer == nil {
		return nil
	}
	err := m.muxer.Close(ctx)
	m.muxer = nil
	if err != nil {
		return engineFailure("close-muxer", err)
	}
	return nil
}
