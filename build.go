// Package avcompose composes media pipelines: it resolves a partial task
// description into a chain of demuxer, decoder, normalizer, encoder and
// muxer stages pulling from each other.
package avcompose

import (
	"context"

	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/logger"
	"github.com/xaionaro-go/avcompose/promise"
	"github.com/xaionaro-go/avcompose/stage"
	"github.com/xaionaro-go/avcompose/stream"
	"github.com/xaionaro-go/avcompose/types"
)

// Build resolves init and returns its stage once the whole chain is
// initialized. The kind of init decides the kind of the returned stage.
func Build(
	ctx context.Context,
	eng engine.Engine,
	bridge engine.Bridge,
	init *Initializer,
) (*stage.Stage, error) {
	return BuildAsync(ctx, &stage.Env{Engine: eng, Bridge: bridge}, init).Await(ctx)
}

// BuildAsync is Build returning the promise of the stage.
func BuildAsync(
	ctx context.Context,
	env *stage.Env,
	init *Initializer,
) *promise.Promise[*stage.Stage] {
	return (&Resolver{Env: env}).Build(ctx, init)
}

// Build resolves an initializer against the target of its own kind.
func (r *Resolver) Build(
	ctx context.Context,
	init *Initializer,
) (_ret *promise.Promise[*stage.Stage]) {
	logger.Debugf(ctx, "Build: %s", init)
	defer func() { logger.Debugf(ctx, "/Build: %s", init) }()

	if init == nil {
		return promise.Rejected[*stage.Stage](types.ErrUnrecognizedInitializer{})
	}
	switch {
	case init.Kind.IsUserStream():
		r.Trace.add(ctx, Step{
			Shape:  ShapeOf(init),
			Action: Action{Type: ActionAdapt, Kind: init.Kind},
		})
		s, err := adapt(init)
		if err != nil {
			return promise.Rejected[*stage.Stage](err)
		}
		return promise.Resolved(s)
	case init.Kind == types.KindFilter:
		return promise.Rejected[*stage.Stage](types.ErrUnsupportedStage{Kind: init.Kind})
	}
	target, ok := TargetOf(init.Kind)
	if !ok {
		return promise.Rejected[*stage.Stage](types.ErrUnrecognizedInitializer{Kind: init.Kind})
	}
	return r.Resolve(ctx, target, init)
}

// BuildPacketStream wraps caller-supplied packets into a stage.
func BuildPacketStream(streams []types.StreamParameters, r stream.Reader) *stage.Stage {
	return stage.AdaptPacketStream(streams, r)
}

// BuildFrameStream wraps caller-supplied frames of the given logical
// streams into a stage.
func BuildFrameStream(kinds []types.MediaType, r stream.Reader) *stage.Stage {
	return stage.AdaptFrameStream(kinds, r)
}

// BuildMonoFrameStream wraps caller-supplied frames of a single logical
// stream into a stage.
func BuildMonoFrameStream(kind types.MediaType, r stream.Reader) *stage.Stage {
	return stage.AdaptMonoFrameStream(kind, r)
}
