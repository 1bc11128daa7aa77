package avcompose

import (
	"context"
	"fmt"
	"io"

	"github.com/xaionaro-go/avcompose/logger"
	"github.com/xaionaro-go/avcompose/promise"
	"github.com/xaionaro-go/avcompose/stage"
	"github.com/xaionaro-go/avcompose/types"
)

// maxResolveDepth bounds the recursion; the longest legitimate chain is a
// few dozen steps even with user streams and futures on the way.
const maxResolveDepth = 64

// Resolver turns inputs into stage chains, synthesizing the missing
// intermediate stages according to the coercion table.
type Resolver struct {
	Env *stage.Env

	// Trace, if not nil, records every resolution step.
	Trace *Trace
}

// ancestry is the list of initializers being built on the current path.
type ancestry struct {
	init   *Initializer
	parent *ancestry
}

func (a *ancestry) contains(init *Initializer) bool {
	for ; a != nil; a = a.parent {
		if a.init == init {
			return true
		}
	}
	return false
}

// Resolve returns the stage of the requested shape made from in. Stages
// synthesized on the way inherit the ownership mode of the stage requesting
// them.
func (r *Resolver) Resolve(ctx context.Context, target Target, in Input) *promise.Promise[*stage.Stage] {
	return r.resolve(ctx, target, in, types.OwnershipModeUndefined, nil, 0)
}

func (r *Resolver) resolve(
	ctx context.Context,
	target Target,
	in Input,
	mode types.OwnershipMode,
	path *ancestry,
	depth int,
) *promise.Promise[*stage.Stage] {
	if depth > maxResolveDepth {
		return promise.Rejected[*stage.Stage](types.ErrSelfReferentialInitializer{Kind: kindOf(in)})
	}
	if future, ok := in.(Future); ok {
		return awaitInput(ctx, future, func(ctx context.Context, in Input) (*stage.Stage, error) {
			return r.resolve(ctx, target, in, mode, path, depth+1).Await(ctx)
		})
	}
	if init, ok := in.(*Initializer); ok && path.contains(init) {
		return promise.Rejected[*stage.Stage](types.ErrSelfReferentialInitializer{Kind: init.Kind})
	}

	shape := ShapeOf(in)
	action := Coerce(target, shape)
	r.Trace.add(ctx, Step{Target: target, Shape: shape, Action: action, OwnershipMode: stepMode(in, action, mode)})
	logger.Tracef(ctx, "resolve: %s from %s: %s", target, shape, action)

	switch action.Type {
	case ActionIdentity:
		if built, ok := in.(Built); ok {
			return promise.Resolved(built.Stage)
		}
	case ActionWrap:
		return r.resolve(ctx, target, synthesize(action.Kind, mode, in), mode, path, depth+1)
	case ActionBuild:
		init := in.(*Initializer)
		return r.build(ctx, init, mode, &ancestry{init: init, parent: path}, depth+1)
	case ActionAdapt:
		s, err := adapt(in.(*Initializer))
		if err != nil {
			return promise.Rejected[*stage.Stage](err)
		}
		return r.resolve(ctx, target, Built{Stage: s}, mode, path, depth+1)
	}
	return promise.Rejected[*stage.Stage](actionError(target, shape, action))
}

// resolveReader is resolve for the input of a demuxer.
func (r *Resolver) resolveReader(
	ctx context.Context,
	in Input,
	path *ancestry,
	depth int,
) *promise.Promise[io.Reader] {
	if depth > maxResolveDepth {
		return promise.Rejected[io.Reader](types.ErrSelfReferentialInitializer{Kind: kindOf(in)})
	}
	if future, ok := in.(Future); ok {
		return awaitInput(ctx, future, func(ctx context.Context, in Input) (io.Reader, error) {
			return r.resolveReader(ctx, in, path, depth+1).Await(ctx)
		})
	}
	if init, ok := in.(*Initializer); ok && path.contains(init) {
		return promise.Rejected[io.Reader](types.ErrSelfReferentialInitializer{Kind: init.Kind})
	}

	shape := ShapeOf(in)
	action := Coerce(TargetRaw, shape)
	r.Trace.add(ctx, Step{Target: TargetRaw, Shape: shape, Action: action})
	logger.Tracef(ctx, "resolve: %s from %s: %s", TargetRaw, shape, action)

	switch action.Type {
	case ActionIdentity:
		raw := in.(Raw)
		if raw.Reader == nil {
			return promise.Rejected[io.Reader](ErrNoInput{Kind: types.KindDemuxer})
		}
		return promise.Resolved(raw.Reader)
	case ActionAdapt:
		// user streams are never container bytes
		action = incompatible
	}
	return promise.Rejected[io.Reader](actionError(TargetRaw, shape, action))
}

func (r *Resolver) build(
	ctx context.Context,
	init *Initializer,
	inherited types.OwnershipMode,
	path *ancestry,
	depth int,
) *promise.Promise[*stage.Stage] {
	if init.Input == nil {
		return promise.Rejected[*stage.Stage](ErrNoInput{Kind: init.Kind})
	}
	mode := init.OwnershipMode.Or(inherited).Or(types.DefaultOwnershipMode)
	switch init.Kind {
	case types.KindDemuxer:
		return stage.NewDemuxer(ctx, r.Env, stage.DemuxerConfig{
			OwnershipMode: mode,
			Format:        init.Format,
		}, r.resolveReader(ctx, init.Input, path, depth))
	case types.KindDecoder:
		return stage.NewDecoder(ctx, r.Env, stage.DecoderConfig{
			OwnershipMode: mode,
			OutputNative:  init.OutputNative,
		}, r.resolve(ctx, TargetDemuxer, init.Input, mode, path, depth))
	case types.KindFrameNormalizer:
		return stage.NewNormalizer(ctx, r.Env, stage.NormalizerConfig{
			OwnershipMode: mode,
		}, r.resolve(ctx, TargetDecoder, init.Input, mode, path, depth))
	case types.KindEncoder:
		return stage.NewEncoder(ctx, r.Env, stage.EncoderConfig{
			OwnershipMode: mode,
			Video:         init.VideoConfig,
			Audio:         init.AudioConfig,
		}, r.resolve(ctx, TargetAnyFrame, init.Input, mode, path, depth))
	case types.KindMuxer:
		return stage.NewMuxer(ctx, r.Env, stage.MuxerConfig{
			Format: init.Format,
		}, r.resolve(ctx, TargetAnyPacket, init.Input, mode, path, depth))
	default:
		return promise.Rejected[*stage.Stage](types.ErrUnrecognizedInitializer{Kind: init.Kind})
	}
}

func adapt(init *Initializer) (*stage.Stage, error) {
	if init.Stream == nil {
		return nil, ErrNoStream{Kind: init.Kind}
	}
	switch init.Kind {
	case types.KindPacketStream:
		return stage.AdaptPacketStream(init.Streams, init.Stream), nil
	case types.KindFrameStream:
		return stage.AdaptFrameStream(init.StreamKinds, init.Stream), nil
	case types.KindMonoFrameStream:
		return stage.AdaptMonoFrameStream(init.MediaType, init.Stream), nil
	default:
		return nil, types.ErrUnrecognizedInitializer{Kind: init.Kind}
	}
}

func awaitInput[T any](
	ctx context.Context,
	future Future,
	fn func(context.Context, Input) (T, error),
) *promise.Promise[T] {
	if future.Promise == nil {
		return promise.Rejected[T](ErrNoInput{})
	}
	return promise.Then(ctx, future.Promise, fn)
}

func actionError(target Target, shape Shape, action Action) error {
	switch action.Type {
	case ActionUnsupported:
		return types.ErrUnsupportedStage{Kind: action.Kind}
	case ActionUnrecognized:
		return types.ErrUnrecognizedInitializer{Kind: action.Kind}
	case ActionIncompatible:
		return types.ErrIncompatibleInput{Requested: target.String(), Actual: shape.String()}
	default:
		return fmt.Errorf("internal error: no way to make %s from %s (action: %s)", target, shape, action)
	}
}

// stepMode is the ownership mode a resolution step gives to the stage it
// produces (for a muxer: to its upstream).
func stepMode(in Input, action Action, inherited types.OwnershipMode) types.OwnershipMode {
	switch action.Type {
	case ActionIdentity:
		if built, ok := in.(Built); ok && built.Stage != nil {
			return built.Stage.OwnershipMode
		}
	case ActionBuild:
		return in.(*Initializer).OwnershipMode.Or(inherited).Or(types.DefaultOwnershipMode)
	case ActionWrap:
		return inherited.Or(types.DefaultOwnershipMode)
	}
	return inherited
}

func kindOf(in Input) types.Kind {
	if init, ok := in.(*Initializer); ok && init != nil {
		return init.Kind
	}
	return types.KindUndefined
}
