// coercion.go is the table deciding, for every requested stage shape and
// every input shape, how the input becomes that stage.

package avcompose

import (
	"fmt"

	"github.com/xaionaro-go/avcompose/types"
)

// Target is the shape a resolution is requested to produce.
type Target int

const (
	UndefinedTarget = Target(iota)
	TargetRaw
	TargetDemuxer
	TargetDecoder
	TargetNormalizer
	TargetEncoder
	TargetMuxer

	// TargetAnyFrame is the input of an encoder: a decoder or a normalizer.
	TargetAnyFrame

	// TargetAnyPacket is the input of a muxer: an encoder or a demuxer.
	TargetAnyPacket
	EndOfTarget
)

func Targets() []Target {
	result := make([]Target, 0, int(EndOfTarget)-1)
	for t := UndefinedTarget + 1; t < EndOfTarget; t++ {
		result = append(result, t)
	}
	return result
}

func (t Target) String() string {
	switch t {
	case UndefinedTarget:
		return "<undefined>"
	case TargetRaw:
		return "raw"
	case TargetDemuxer:
		return "demuxer"
	case TargetDecoder:
		return "decoder"
	case TargetNormalizer:
		return "frame-normalizer"
	case TargetEncoder:
		return "encoder"
	case TargetMuxer:
		return "muxer"
	case TargetAnyFrame:
		return "any-frame"
	case TargetAnyPacket:
		return "any-packet"
	default:
		return fmt.Sprintf("Target(%d)", int(t))
	}
}

// TargetOf returns the target an initializer of the given kind resolves to
// when it is the outermost one.
func TargetOf(kind types.Kind) (Target, bool) {
	switch kind {
	case types.KindDemuxer:
		return TargetDemuxer, true
	case types.KindDecoder:
		return TargetDecoder, true
	case types.KindFrameNormalizer:
		return TargetNormalizer, true
	case types.KindEncoder:
		return TargetEncoder, true
	case types.KindMuxer:
		return TargetMuxer, true
	default:
		return UndefinedTarget, false
	}
}

type ShapeClass int

const (
	UndefinedShapeClass = ShapeClass(iota)
	ShapeClassRaw
	ShapeClassInitializer
	ShapeClassStage
)

// Shape is what resolution looks at to decide on an input: its variant,
// plus the kind of an initializer or the stream type of a stage.
type Shape struct {
	Class      ShapeClass
	Kind       types.Kind
	StreamType types.StreamType
}

func (s Shape) String() string {
	switch s.Class {
	case ShapeClassRaw:
		return "raw input"
	case ShapeClassInitializer:
		return fmt.Sprintf("initializer of kind '%s'", s.Kind)
	case ShapeClassStage:
		return fmt.Sprintf("%s stage", s.StreamType)
	default:
		return "<no input>"
	}
}

// ShapeOf returns the shape of a settled input; Future inputs have none.
func ShapeOf(in Input) Shape {
	switch in := in.(type) {
	case Raw:
		return Shape{Class: ShapeClassRaw}
	case *Initializer:
		if in == nil {
			return Shape{}
		}
		return Shape{Class: ShapeClassInitializer, Kind: in.Kind}
	case Built:
		if in.Stage == nil {
			return Shape{}
		}
		return Shape{Class: ShapeClassStage, StreamType: in.Stage.StreamType}
	default:
		return Shape{}
	}
}

// Shapes returns every shape an input may have.
func Shapes() []Shape {
	result := []Shape{{Class: ShapeClassRaw}}
	for _, kind := range append([]types.Kind{types.KindUndefined}, types.Kinds()...) {
		result = append(result, Shape{Class: ShapeClassInitializer, Kind: kind})
	}
	for t := types.UndefinedStreamType + 1; t < types.EndOfStreamType; t++ {
		result = append(result, Shape{Class: ShapeClassStage, StreamType: t})
	}
	return result
}

type ActionType int

const (
	UndefinedActionType = ActionType(iota)

	// ActionIdentity uses the input as is.
	ActionIdentity

	// ActionBuild runs the builder of Action.Kind over the input initializer.
	ActionBuild

	// ActionWrap synthesizes an initializer of Action.Kind over the input.
	ActionWrap

	// ActionAdapt turns a user stream initializer into a stage.
	ActionAdapt

	ActionUnsupported
	ActionIncompatible
	ActionUnrecognized
)

func (t ActionType) String() string {
	switch t {
	case UndefinedActionType:
		return "<undefined>"
	case ActionIdentity:
		return "identity"
	case ActionBuild:
		return "build"
	case ActionWrap:
		return "wrap"
	case ActionAdapt:
		return "adapt"
	case ActionUnsupported:
		return "unsupported"
	case ActionIncompatible:
		return "incompatible"
	case ActionUnrecognized:
		return "unrecognized"
	default:
		return fmt.Sprintf("ActionType(%d)", int(t))
	}
}

type Action struct {
	Type ActionType
	Kind types.Kind
}

func (a Action) String() string {
	switch a.Type {
	case ActionBuild, ActionWrap:
		return fmt.Sprintf("%s(%s)", a.Type, a.Kind)
	default:
		return a.Type.String()
	}
}

var (
	identity     = Action{Type: ActionIdentity}
	incompatible = Action{Type: ActionIncompatible}
)

func buildAs(kind types.Kind) Action { return Action{Type: ActionBuild, Kind: kind} }
func wrapAs(kind types.Kind) Action  { return Action{Type: ActionWrap, Kind: kind} }

type coercionRow struct {
	raw    Action
	kinds  map[types.Kind]Action
	stages map[types.StreamType]Action
}

var coercionTable = map[Target]coercionRow{
	TargetRaw: {
		raw: identity,
		kinds: map[types.Kind]Action{
			types.KindDemuxer:         incompatible,
			types.KindDecoder:         incompatible,
			types.KindFrameNormalizer: incompatible,
			types.KindEncoder:         incompatible,
			types.KindMuxer:           incompatible,
		},
		stages: map[types.StreamType]Action{
			types.StreamTypePacket:      incompatible,
			types.StreamTypeFrame:       incompatible,
			types.StreamTypeEngineFrame: incompatible,
			types.StreamTypeNativeFrame: incompatible,
			types.StreamTypeFile:        incompatible,
		},
	},
	TargetDemuxer: {
		raw: wrapAs(types.KindDemuxer),
		kinds: map[types.Kind]Action{
			types.KindDemuxer:         buildAs(types.KindDemuxer),
			types.KindDecoder:         incompatible,
			types.KindFrameNormalizer: incompatible,
			types.KindEncoder:         incompatible,
			types.KindMuxer:           incompatible,
		},
		stages: map[types.StreamType]Action{
			types.StreamTypePacket:      identity,
			types.StreamTypeFrame:       incompatible,
			types.StreamTypeEngineFrame: incompatible,
			types.StreamTypeNativeFrame: incompatible,
			types.StreamTypeFile:        incompatible,
		},
	},
	TargetDecoder: {
		raw: wrapAs(types.KindDecoder),
		kinds: map[types.Kind]Action{
			types.KindDemuxer:         wrapAs(types.KindDecoder),
			types.KindDecoder:         buildAs(types.KindDecoder),
			types.KindFrameNormalizer: incompatible,
			types.KindEncoder:         incompatible,
			types.KindMuxer:           incompatible,
		},
		stages: map[types.StreamType]Action{
			types.StreamTypePacket:      wrapAs(types.KindDecoder),
			types.StreamTypeFrame:       identity,
			types.StreamTypeEngineFrame: identity,
			types.StreamTypeNativeFrame: identity,
			types.StreamTypeFile:        incompatible,
		},
	},
	TargetNormalizer: {
		raw: wrapAs(types.KindFrameNormalizer),
		kinds: map[types.Kind]Action{
			types.KindDemuxer:         wrapAs(types.KindFrameNormalizer),
			types.KindDecoder:         wrapAs(types.KindFrameNormalizer),
			types.KindFrameNormalizer: buildAs(types.KindFrameNormalizer),
			types.KindEncoder:         incompatible,
			types.KindMuxer:           incompatible,
		},
		stages: map[types.StreamType]Action{
			types.StreamTypePacket:      wrapAs(types.KindFrameNormalizer),
			types.StreamTypeFrame:       wrapAs(types.KindFrameNormalizer),
			types.StreamTypeEngineFrame: identity,
			types.StreamTypeNativeFrame: wrapAs(types.KindFrameNormalizer),
			types.StreamTypeFile:        incompatible,
		},
	},
	TargetAnyFrame: {
		raw: wrapAs(types.KindDecoder),
		kinds: map[types.Kind]Action{
			types.KindDemuxer:         wrapAs(types.KindDecoder),
			types.KindDecoder:         buildAs(types.KindDecoder),
			types.KindFrameNormalizer: buildAs(types.KindFrameNormalizer),
			types.KindEncoder:         incompatible,
			types.KindMuxer:           incompatible,
		},
		stages: map[types.StreamType]Action{
			types.StreamTypePacket:      wrapAs(types.KindDecoder),
			types.StreamTypeFrame:       identity,
			types.StreamTypeEngineFrame: identity,
			types.StreamTypeNativeFrame: identity,
			types.StreamTypeFile:        incompatible,
		},
	},
	TargetEncoder: {
		raw: wrapAs(types.KindEncoder),
		kinds: map[types.Kind]Action{
			types.KindDemuxer:         wrapAs(types.KindEncoder),
			types.KindDecoder:         wrapAs(types.KindEncoder),
			types.KindFrameNormalizer: wrapAs(types.KindEncoder),
			types.KindEncoder:         buildAs(types.KindEncoder),
			types.KindMuxer:           incompatible,
		},
		stages: map[types.StreamType]Action{
			types.StreamTypePacket:      identity,
			types.StreamTypeFrame:       wrapAs(types.KindEncoder),
			types.StreamTypeEngineFrame: wrapAs(types.KindEncoder),
			types.StreamTypeNativeFrame: wrapAs(types.KindEncoder),
			types.StreamTypeFile:        incompatible,
		},
	},
	TargetAnyPacket: {
		raw: wrapAs(types.KindDemuxer),
		kinds: map[types.Kind]Action{
			types.KindDemuxer:         buildAs(types.KindDemuxer),
			types.KindDecoder:         wrapAs(types.KindEncoder),
			types.KindFrameNormalizer: wrapAs(types.KindEncoder),
			types.KindEncoder:         buildAs(types.KindEncoder),
			types.KindMuxer:           incompatible,
		},
		stages: map[types.StreamType]Action{
			types.StreamTypePacket:      identity,
			types.StreamTypeFrame:       wrapAs(types.KindEncoder),
			types.StreamTypeEngineFrame: wrapAs(types.KindEncoder),
			types.StreamTypeNativeFrame: wrapAs(types.KindEncoder),
			types.StreamTypeFile:        incompatible,
		},
	},
	TargetMuxer: {
		raw: wrapAs(types.KindMuxer),
		kinds: map[types.Kind]Action{
			types.KindDemuxer:         wrapAs(types.KindMuxer),
			types.KindDecoder:         wrapAs(types.KindMuxer),
			types.KindFrameNormalizer: wrapAs(types.KindMuxer),
			types.KindEncoder:         wrapAs(types.KindMuxer),
			types.KindMuxer:           buildAs(types.KindMuxer),
		},
		stages: map[types.StreamType]Action{
			types.StreamTypePacket:      wrapAs(types.KindMuxer),
			types.StreamTypeFrame:       wrapAs(types.KindMuxer),
			types.StreamTypeEngineFrame: wrapAs(types.KindMuxer),
			types.StreamTypeNativeFrame: wrapAs(types.KindMuxer),
			types.StreamTypeFile:        identity,
		},
	},
}

// Coerce returns what resolution does with an input of the given shape
// when the given target is requested.
func Coerce(target Target, shape Shape) Action {
	row, ok := coercionTable[target]
	if !ok {
		return Action{}
	}
	switch shape.Class {
	case ShapeClassRaw:
		return row.raw
	case ShapeClassInitializer:
		switch {
		case shape.Kind == types.KindFilter:
			return Action{Type: ActionUnsupported, Kind: shape.Kind}
		case shape.Kind.IsUserStream():
			return Action{Type: ActionAdapt, Kind: shape.Kind}
		case !shape.Kind.IsKnown():
			return Action{Type: ActionUnrecognized, Kind: shape.Kind}
		}
		return row.kinds[shape.Kind]
	case ShapeClassStage:
		return row.stages[shape.StreamType]
	default:
		return Action{Type: ActionUnrecognized}
	}
}
