package avcompose

import (
	"fmt"

	"github.com/xaionaro-go/avcompose/stream"
	"github.com/xaionaro-go/avcompose/types"
)

// Initializer is a possibly partial description of a stage. Resolution
// synthesizes whatever stages are missing between it and its Input.
type Initializer struct {
	Kind types.Kind

	// OwnershipMode is the mode of the stage; OwnershipModeUndefined means
	// inheriting it from the stage requesting this one (and handle if
	// nothing requests it). For a muxer it is the mode of its upstream,
	// the muxer itself always emits owned copies.
	OwnershipMode types.OwnershipMode

	Input Input

	// Format is the container format of a demuxer or a muxer.
	Format string

	// VideoConfig and AudioConfig configure an encoder.
	VideoConfig *types.VideoEncoderConfig
	AudioConfig *types.AudioEncoderConfig

	// OutputNative makes a decoder emit bridge-native frames.
	OutputNative bool

	// Streams describes the logical streams of a packet-stream.
	Streams []types.StreamParameters

	// StreamKinds declares the logical streams of a frame-stream.
	StreamKinds []types.MediaType

	// MediaType declares the single logical stream of a mono-frame-stream.
	MediaType types.MediaType

	// Stream is the caller-supplied stream of the user stream kinds.
	Stream stream.Reader
}

func (*Initializer) isInput() {}

func (init *Initializer) String() string {
	if init == nil {
		return "Initializer(<nil>)"
	}
	return fmt.Sprintf("Initializer(%s, %s)", init.Kind, init.OwnershipMode)
}

// synthesize returns the initializer of a stage of the given kind wrapping
// input, with the default configuration of that kind.
func synthesize(kind types.Kind, mode types.OwnershipMode, input Input) *Initializer {
	init := &Initializer{
		Kind:          kind,
		OwnershipMode: mode.Or(types.DefaultOwnershipMode),
		Input:         input,
	}
	switch kind {
	case types.KindEncoder:
		video := types.DefaultVideoEncoderConfig()
		audio := types.DefaultAudioEncoderConfig()
		init.VideoConfig, init.AudioConfig = &video, &audio
	case types.KindMuxer:
		init.Format = types.DefaultMuxerFormat
	}
	return init
}
