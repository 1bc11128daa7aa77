// convert.go translates between the module's types and astiav's.

package libav

import (
	"context"
	"fmt"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avcompose/internal"
	"github.com/xaionaro-go/avcompose/logger"
	"github.com/xaionaro-go/avcompose/types"
)

func rationalToAstiav(r types.Rational) astiav.Rational {
	return astiav.NewRational(r.Num, r.Den)
}

func rationalFromAstiav(r astiav.Rational) types.Rational {
	return types.Rational{Num: r.Num(), Den: r.Den()}
}

func mediaTypeToAstiav(t types.MediaType) astiav.MediaType {
	switch t {
	case types.MediaTypeVideo:
		return astiav.MediaTypeVideo
	case types.MediaTypeAudio:
		return astiav.MediaTypeAudio
	case types.MediaTypeData:
		return astiav.MediaTypeData
	case types.MediaTypeSubtitle:
		return astiav.MediaTypeSubtitle
	case types.MediaTypeAttachment:
		return astiav.MediaTypeAttachment
	default:
		return astiav.MediaTypeUnknown
	}
}

func mediaTypeFromAstiav(t astiav.MediaType) types.MediaType {
	switch t {
	case astiav.MediaTypeVideo:
		return types.MediaTypeVideo
	case astiav.MediaTypeAudio:
		return types.MediaTypeAudio
	case astiav.MediaTypeData:
		return types.MediaTypeData
	case astiav.MediaTypeSubtitle:
		return types.MediaTypeSubtitle
	case astiav.MediaTypeAttachment:
		return types.MediaTypeAttachment
	default:
		return types.MediaTypeUnknown
	}
}

var sampleFormats = []astiav.SampleFormat{
	astiav.SampleFormatU8,
	astiav.SampleFormatS16,
	astiav.SampleFormatS32,
	astiav.SampleFormatFlt,
	astiav.SampleFormatDbl,
	astiav.SampleFormatU8P,
	astiav.SampleFormatS16P,
	astiav.SampleFormatS32P,
	astiav.SampleFormatFltp,
	astiav.SampleFormatDblp,
	astiav.SampleFormatS64,
	astiav.SampleFormatS64P,
}

func sampleFormatFromString(s string) astiav.SampleFormat {
	for _, f := range sampleFormats {
		if f.String() == s {
			return f
		}
	}
	return astiav.SampleFormatNone
}

func pixelFormatFromString(s string) astiav.PixelFormat {
	if s == "" {
		return astiav.PixelFormatNone
	}
	return astiav.FindPixelFormatByName(s)
}

func channelLayout(channels int) (astiav.ChannelLayout, error) {
	switch channels {
	case 1:
		return astiav.ChannelLayoutMono, nil
	case 2:
		return astiav.ChannelLayoutStereo, nil
	default:
		return astiav.ChannelLayout{}, fmt.Errorf("unsupported amount of channels: %d", channels)
	}
}

// streamParameters describes a stream from its codec parameters.
func streamParameters(
	cp *astiav.CodecParameters,
	timeBase astiav.Rational,
) types.StreamParameters {
	p := types.StreamParameters{
		CodecID:   int(cp.CodecID()),
		CodecName: cp.CodecID().Name(),
		MediaType: mediaTypeFromAstiav(cp.MediaType()),
		TimeBase:  rationalFromAstiav(timeBase),
		BitRate:   cp.BitRate(),
		ExtraData: append([]byte(nil), cp.ExtraData()...),
	}
	switch p.MediaType {
	case types.MediaTypeVideo:
		p.Format = cp.PixelFormat().String()
		p.Width, p.Height = cp.Width(), cp.Height()
	case types.MediaTypeAudio:
		p.Format = cp.SampleFormat().String()
		p.SampleRate = cp.SampleRate()
		p.Channels = cp.ChannelLayout().Channels()
	}
	return p
}

// codecParameters is the reverse of streamParameters; the caller frees the result.
func codecParameters(p types.StreamParameters) (*astiav.CodecParameters, error) {
	cp := astiav.AllocCodecParameters()
	if cp == nil {
		return nil, fmt.Errorf("unable to allocate codec parameters")
	}
	cp.SetCodecID(astiav.CodecID(p.CodecID))
	cp.SetMediaType(mediaTypeToAstiav(p.MediaType))
	cp.SetBitRate(p.BitRate)
	switch p.MediaType {
	case types.MediaTypeVideo:
		cp.SetWidth(p.Width)
		cp.SetHeight(p.Height)
		cp.SetPixelFormat(pixelFormatFromString(p.Format))
	case types.MediaTypeAudio:
		cp.SetSampleRate(p.SampleRate)
		cp.SetSampleFormat(sampleFormatFromString(p.Format))
		if p.Channels > 0 {
			layout, err := channelLayout(p.Channels)
			if err != nil {
				cp.Free()
				return nil, err
			}
			cp.SetChannelLayout(layout)
		}
	}
	if len(p.ExtraData) > 0 {
		if err := cp.SetExtraData(p.ExtraData); err != nil {
			cp.Free()
			return nil, fmt.Errorf("unable to set the extradata: %w", err)
		}
	}
	return cp, nil
}

// encoderNames maps codec strings (as in "vp09.00.10.08") to libav encoders.
var encoderNames = map[string]string{
	"vp09": "libvpx-vp9",
	"vp08": "libvpx",
	"vp8":  "libvpx",
	"avc1": "libx264",
	"avc3": "libx264",
	"hev1": "libx265",
	"hvc1": "libx265",
	"av01": "libaom-av1",
	"opus": "libopus",
	"mp4a": "aac",
}

func findEncoder(codecString string) (*astiav.Codec, error) {
	prefix, _, _ := strings.Cut(codecString, ".")
	if name, ok := encoderNames[prefix]; ok {
		if c := astiav.FindEncoderByName(name); c != nil {
			return c, nil
		}
	}
	if c := astiav.FindEncoderByName(codecString); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("unable to find an encoder for codec '%s'", codecString)
}

func dictionaryToAstiav(
	ctx context.Context,
	s types.DictionaryItems,
) *astiav.Dictionary {
	if len(s) == 0 {
		return nil
	}

	result := astiav.NewDictionary()
	internal.SetFinalizerFree(ctx, result)
	for _, opt := range s.Deduplicate() {
		logger.Tracef(ctx, "setting custom option: %s=%s", opt.Key, opt.Value)
		result.Set(opt.Key, opt.Value, 0)
	}
	return result
}
