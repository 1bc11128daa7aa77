// codec_config.go defines the encoder configurations an initializer may carry.

package types

const (
	// DefaultVideoCodec is used when an encoder is synthesized without an
	// explicit video configuration.
	DefaultVideoCodec = "vp09.00.10.08.03.1.1.1.0"

	// DefaultAudioCodec is used when an encoder is synthesized without an
	// explicit audio configuration.
	DefaultAudioCodec = "opus"

	// DefaultMuxerFormat is used when a muxer is synthesized without an
	// explicit container format.
	DefaultMuxerFormat = "matroska"
)

// VideoEncoderConfig configures the encoder of video logical streams.
// Zero Width/Height mean "same as the input".
type VideoEncoderConfig struct {
	Codec     string   `yaml:"codec"`
	Width     int      `yaml:"width,omitempty"`
	Height    int      `yaml:"height,omitempty"`
	BitRate   int64    `yaml:"bit_rate,omitempty"`
	FrameRate Rational `yaml:"frame_rate,omitempty"`
	GOPSize   int      `yaml:"gop_size,omitempty"`

	// Options are passed to the codec as is.
	Options DictionaryItems `yaml:"options,omitempty"`
}

// AudioEncoderConfig configures the encoder of audio logical streams.
// Zero SampleRate/Channels mean "same as the input".
type AudioEncoderConfig struct {
	Codec      string `yaml:"codec"`
	SampleRate int    `yaml:"sample_rate,omitempty"`
	Channels   int    `yaml:"channels,omitempty"`
	BitRate    int64  `yaml:"bit_rate,omitempty"`

	Options DictionaryItems `yaml:"options,omitempty"`
}

// FrameSize returns the size the frames of in are encoded at: the
// configured one if set, otherwise the size of in.
func (cfg *VideoEncoderConfig) FrameSize(in StreamParameters) (int, int, error) {
	if cfg != nil && cfg.Width > 0 && cfg.Height > 0 {
		return cfg.Width, cfg.Height, nil
	}
	if in.Width > 0 && in.Height > 0 {
		return in.Width, in.Height, nil
	}
	return 0, 0, ErrUnknownVideoSize{Input: in}
}

func DefaultVideoEncoderConfig() VideoEncoderConfig {
	return VideoEncoderConfig{Codec: DefaultVideoCodec}
}

func DefaultAudioEncoderConfig() AudioEncoderConfig {
	return AudioEncoderConfig{Codec: DefaultAudioCodec}
}
