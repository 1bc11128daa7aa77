package stage

import (
	"context"

	"github.com/xaionaro-go/avcompose/promise"
	"github.com/xaionaro-go/avcompose/stream"
	"github.com/xaionaro-go/avcompose/types"
)

type NormalizerConfig struct {
	OwnershipMode types.OwnershipMode
}

// NewNormalizer returns a stage converting every frame of upstream into the
// engine representation: native video and audio go through the bridge,
// engine frames pass through with their ownership converted if needed.
// The stream metadata is republished unchanged.
func NewNormalizer(
	ctx context.Context,
	env *Env,
	cfg NormalizerConfig,
	upstream *promise.Promise[*Stage],
) *promise.Promise[*Stage] {
	mode := cfg.OwnershipMode.Or(types.DefaultOwnershipMode)
	return build(ctx, env, types.ComponentFilter, types.StreamTypeEngineFrame, mode, upstream,
		func(ctx context.Context, upstream *Stage, streams []types.StreamParameters) (transformer, []types.StreamParameters, error) {
			return &normalizer{mode: mode}, streams, nil
		},
	)
}

type normalizer struct {
	mode types.OwnershipMode
}

func (n *normalizer) transform(ctx context.Context, h *holder, item stream.Item) (stream.Batch, error) {
	p, err := h.normalizeFrame(ctx, item, n.mode)
	if err != nil {
		return nil, err
	}
	return stream.Batch{{StreamIndex: item.StreamIndex, Payload: p}}, nil
}

func (n *normalizer) flush(context.Context, *holder) (stream.Batch, error) {
	return nil, nil
}

func (n *normalizer) close(context.Context) error {
	return nil
}
