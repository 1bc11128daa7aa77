// stream_parameters.go defines the per-logical-stream metadata published by every stage.

package types

import "fmt"

// CodecIDNone is the codec identity of streams whose codec is not known,
// e.g. streams supplied by the caller without metadata.
const CodecIDNone = 0

// StreamParameters describes one logical stream of a stage.
type StreamParameters struct {
	CodecID   int       `yaml:"codec_id,omitempty"`
	CodecName string    `yaml:"codec,omitempty"`
	MediaType MediaType `yaml:"media_type"`
	TimeBase  Rational  `yaml:"time_base"`

	// Format is the pixel format for video and the sample format for audio.
	Format string `yaml:"format,omitempty"`

	Width      int `yaml:"width,omitempty"`
	Height     int `yaml:"height,omitempty"`
	SampleRate int `yaml:"sample_rate,omitempty"`
	Channels   int `yaml:"channels,omitempty"`

	BitRate   int64  `yaml:"bit_rate,omitempty"`
	ExtraData []byte `yaml:"-"`
}

// PlaceholderStreamParameters returns the metadata used for caller-supplied
// frame streams that only declare the media type.
func PlaceholderStreamParameters(mediaType MediaType) StreamParameters {
	return StreamParameters{
		CodecID:   CodecIDNone,
		MediaType: mediaType,
		TimeBase:  TimeBaseMicroseconds,
	}
}

func (p StreamParameters) String() string {
	codec := p.CodecName
	if codec == "" {
		codec = fmt.Sprintf("codec#%d", p.CodecID)
	}
	switch p.MediaType {
	case MediaTypeVideo:
		return fmt.Sprintf("%s:%s:%dx%d@%s", p.MediaType, codec, p.Width, p.Height, p.TimeBase)
	case MediaTypeAudio:
		return fmt.Sprintf("%s:%s:%dHz*%d@%s", p.MediaType, codec, p.SampleRate, p.Channels, p.TimeBase)
	default:
		return fmt.Sprintf("%s:%s@%s", p.MediaType, codec, p.TimeBase)
	}
}
