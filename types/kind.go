// kind.go defines the tags that describe what a stage is and what it produces.

package types

import "fmt"

// Kind is the declared kind of an initializer.
type Kind string

const (
	KindUndefined       = Kind("")
	KindDemuxer         = Kind("demuxer")
	KindDecoder         = Kind("decoder")
	KindFrameNormalizer = Kind("frame-normalizer")
	KindEncoder         = Kind("encoder")
	KindMuxer           = Kind("muxer")
	KindFilter          = Kind("filter")
	KindPacketStream    = Kind("packet-stream")
	KindFrameStream     = Kind("frame-stream")
	KindMonoFrameStream = Kind("mono-frame-stream")
)

func Kinds() []Kind {
	return []Kind{
		KindDemuxer,
		KindDecoder,
		KindFrameNormalizer,
		KindEncoder,
		KindMuxer,
		KindFilter,
		KindPacketStream,
		KindFrameStream,
		KindMonoFrameStream,
	}
}

func (k Kind) IsKnown() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// IsUserStream returns true for kinds that wrap a caller-supplied stream
// without involving the engine.
func (k Kind) IsUserStream() bool {
	switch k {
	case KindPacketStream, KindFrameStream, KindMonoFrameStream:
		return true
	}
	return false
}

func (k Kind) String() string {
	if k == KindUndefined {
		return "<undefined>"
	}
	return string(k)
}

// Component is the tag of a constructed stage.
type Component string

const (
	ComponentUndefined    = Component("")
	ComponentDemuxer      = Component("demuxer")
	ComponentDecoder      = Component("decoder")
	ComponentFilter       = Component("filter")
	ComponentEncoder      = Component("encoder")
	ComponentMuxer        = Component("muxer")
	ComponentPacketStream = Component("packet-stream")
	ComponentFrameStream  = Component("frame-stream")
	ComponentFileStream   = Component("file-stream")
)

func (c Component) String() string {
	if c == ComponentUndefined {
		return "<undefined>"
	}
	return string(c)
}

// StreamType is the shape of the payloads a stage produces.
type StreamType int

const (
	UndefinedStreamType = StreamType(iota)
	StreamTypePacket
	StreamTypeFrame
	StreamTypeEngineFrame
	StreamTypeNativeFrame
	StreamTypeFile
	EndOfStreamType
)

func (t StreamType) String() string {
	switch t {
	case UndefinedStreamType:
		return "<undefined>"
	case StreamTypePacket:
		return "packet"
	case StreamTypeFrame:
		return "frame"
	case StreamTypeEngineFrame:
		return "engine-frame"
	case StreamTypeNativeFrame:
		return "native-frame"
	case StreamTypeFile:
		return "file"
	default:
		return fmt.Sprintf("StreamType(%d)", int(t))
	}
}

// IsFrame returns true for every frame representation, including "frame"
// streams whose representation is not known in advance.
func (t StreamType) IsFrame() bool {
	switch t {
	case StreamTypeFrame, StreamTypeEngineFrame, StreamTypeNativeFrame:
		return true
	}
	return false
}
