// values.go defines the self-contained (owned-copy) representations of
// engine payloads.

package engine

import (
	"image"

	"github.com/xaionaro-go/avcompose/types"
)

// Packet is an owned copy of an engine packet.
type Packet struct {
	StreamIndex int
	Data        []byte
	Pts         int64
	Dts         int64
	Duration    int64
	TimeBase    types.Rational
	KeyFrame    bool
}

// Frame is an owned copy of an engine frame. Data holds all planes packed
// back to back without padding.
type Frame struct {
	MediaType types.MediaType
	Format    string

	Width  int
	Height int

	SampleRate int
	Channels   int
	NbSamples  int

	Pts      int64
	Duration int64
	TimeBase types.Rational
	KeyFrame bool

	Data []byte
}

// VideoFrame is a platform-native video frame.
type VideoFrame struct {
	Image image.Image

	// Timestamp and Duration are in microseconds.
	Timestamp int64
	Duration  int64
}

// CodedWidth mirrors the check used to recognize native video frames.
func (f *VideoFrame) CodedWidth() int {
	if f == nil || f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// AudioData is a platform-native block of planar float32 audio.
type AudioData struct {
	SampleRate int

	// Planes has one slice of samples per channel.
	Planes [][]float32

	// Timestamp is in microseconds.
	Timestamp int64
}

func (a *AudioData) NumberOfChannels() int {
	return len(a.Planes)
}

func (a *AudioData) NumberOfFrames() int {
	if len(a.Planes) == 0 {
		return 0
	}
	return len(a.Planes[0])
}

// FileChunk is a piece of a muxed file, to be written at Position.
type FileChunk struct {
	Position int64
	Data     []byte
}
