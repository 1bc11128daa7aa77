// Package native implements engine.Bridge for Go-native frames: video as
// image.Image and audio as planar float32 PCM.
//
// Engine frames produced by this bridge use the "rgba" or "yuv420p" pixel
// formats and the "fltp" sample format, packed without padding.
package native

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/clone"
	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/logger"
	"github.com/xaionaro-go/avcompose/types"
)

const (
	PixelFormatRGBA    = "rgba"
	PixelFormatYUV420P = "yuv420p"
	PixelFormatGray    = "gray"
	SampleFormatFLTP   = "fltp"
	SampleFormatS16    = "s16"
)

type Bridge struct{}

var _ engine.Bridge = (*Bridge)(nil)

func New() *Bridge {
	return &Bridge{}
}

func (Bridge) String() string {
	return "NativeBridge"
}

func (Bridge) VideoFrameToEngine(
	ctx context.Context,
	f *engine.VideoFrame,
) (*engine.Frame, error) {
	if f == nil || f.Image == nil {
		return nil, fmt.Errorf("the video frame has no image")
	}
	bounds := f.Image.Bounds()
	result := &engine.Frame{
		MediaType: types.MediaTypeVideo,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Pts:       f.Timestamp,
		Duration:  f.Duration,
		TimeBase:  types.TimeBaseMicroseconds,
	}

	if ycc, ok := f.Image.(*image.YCbCr); ok && ycc.SubsampleRatio == image.YCbCrSubsampleRatio420 {
		result.Format = PixelFormatYUV420P
		result.Data = packYCbCr420(ycc)
		return result, nil
	}

	rgba := clone.AsShallowRGBA(f.Image)
	if rgba.Stride != 4*bounds.Dx() {
		rgba = clone.AsRGBA(f.Image)
	}
	logger.Tracef(ctx, "converting %T %dx%d to rgba", f.Image, bounds.Dx(), bounds.Dy())
	result.Format = PixelFormatRGBA
	result.Data = append([]byte(nil), rgba.Pix[:4*bounds.Dx()*bounds.Dy()]...)
	return result, nil
}

func packYCbCr420(img *image.YCbCr) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	cw, ch := (w+1)/2, (h+1)/2
	result := make([]byte, 0, w*h+2*cw*ch)
	for y := 0; y < h; y++ {
		off := img.YOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		result = append(result, img.Y[off:off+w]...)
	}
	for _, plane := range [][]byte{img.Cb, img.Cr} {
		for y := 0; y < ch; y++ {
			off := img.COffset(img.Rect.Min.X, img.Rect.Min.Y+2*y)
			result = append(result, plane[off:off+cw]...)
		}
	}
	return result
}

func (Bridge) AudioDataToEngine(
	ctx context.Context,
	a *engine.AudioData,
) (*engine.Frame, error) {
	if a == nil || a.NumberOfChannels() == 0 {
		return nil, fmt.Errorf("the audio data has no channels")
	}
	nbSamples := a.NumberOfFrames()
	data := make([]byte, 0, 4*nbSamples*a.NumberOfChannels())
	for ch, plane := range a.Planes {
		if len(plane) != nbSamples {
			return nil, fmt.Errorf("channel #%d has %d samples instead of %d", ch, len(plane), nbSamples)
		}
		for _, sample := range plane {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(sample))
		}
	}
	return &engine.Frame{
		MediaType:  types.MediaTypeAudio,
		Format:     SampleFormatFLTP,
		SampleRate: a.SampleRate,
		Channels:   a.NumberOfChannels(),
		NbSamples:  nbSamples,
		Pts:        a.Timestamp,
		TimeBase:   types.TimeBaseMicroseconds,
		Data:       data,
	}, nil
}

func (Bridge) EngineToVideoFrame(
	ctx context.Context,
	f *engine.Frame,
) (*engine.VideoFrame, error) {
	if f.MediaType != types.MediaTypeVideo {
		return nil, fmt.Errorf("expected a video frame, got %s", f.MediaType)
	}
	rect := image.Rect(0, 0, f.Width, f.Height)
	var img image.Image
	switch f.Format {
	case PixelFormatRGBA:
		if len(f.Data) < 4*f.Width*f.Height {
			return nil, fmt.Errorf("rgba frame is too short: %d < %d", len(f.Data), 4*f.Width*f.Height)
		}
		rgba := image.NewRGBA(rect)
		copy(rgba.Pix, f.Data)
		img = rgba
	case PixelFormatGray:
		if len(f.Data) < f.Width*f.Height {
			return nil, fmt.Errorf("gray frame is too short: %d < %d", len(f.Data), f.Width*f.Height)
		}
		gray := image.NewGray(rect)
		copy(gray.Pix, f.Data)
		img = gray
	case PixelFormatYUV420P:
		ycc := image.NewYCbCr(rect, image.YCbCrSubsampleRatio420)
		ySize, cSize := len(ycc.Y), len(ycc.Cb)
		if len(f.Data) < ySize+2*cSize {
			return nil, fmt.Errorf("yuv420p frame is too short: %d < %d", len(f.Data), ySize+2*cSize)
		}
		copy(ycc.Y, f.Data[:ySize])
		copy(ycc.Cb, f.Data[ySize:ySize+cSize])
		copy(ycc.Cr, f.Data[ySize+cSize:ySize+2*cSize])
		img = ycc
	default:
		return nil, fmt.Errorf("pixel format '%s' is not supported", f.Format)
	}
	return &engine.VideoFrame{
		Image:     img,
		Timestamp: types.Rescale(f.Pts, f.TimeBase, types.TimeBaseMicroseconds),
		Duration:  types.Rescale(f.Duration, f.TimeBase, types.TimeBaseMicroseconds),
	}, nil
}

func (Bridge) EngineToAudioData(
	ctx context.Context,
	f *engine.Frame,
) (*engine.AudioData, error) {
	if f.MediaType != types.MediaTypeAudio {
		return nil, fmt.Errorf("expected an audio frame, got %s", f.MediaType)
	}
	if f.Channels <= 0 {
		return nil, fmt.Errorf("invalid amount of channels: %d", f.Channels)
	}
	planes := make([][]float32, f.Channels)
	switch f.Format {
	case SampleFormatFLTP:
		if len(f.Data) < 4*f.NbSamples*f.Channels {
			return nil, fmt.Errorf("fltp frame is too short: %d < %d", len(f.Data), 4*f.NbSamples*f.Channels)
		}
		for ch := range planes {
			planes[ch] = make([]float32, f.NbSamples)
			base := 4 * ch * f.NbSamples
			for i := range planes[ch] {
				planes[ch][i] = math.Float32frombits(binary.LittleEndian.Uint32(f.Data[base+4*i:]))
			}
		}
	case SampleFormatS16:
		if len(f.Data) < 2*f.NbSamples*f.Channels {
			return nil, fmt.Errorf("s16 frame is too short: %d < %d", len(f.Data), 2*f.NbSamples*f.Channels)
		}
		for ch := range planes {
			planes[ch] = make([]float32, f.NbSamples)
		}
		for i := 0; i < f.NbSamples; i++ {
			for ch := range planes {
				off := 2 * (i*f.Channels + ch)
				planes[ch][i] = float32(int16(binary.LittleEndian.Uint16(f.Data[off:]))) / 32768
			}
		}
	default:
		return nil, fmt.Errorf("sample format '%s' is not supported", f.Format)
	}
	return &engine.AudioData{
		SampleRate: f.SampleRate,
		Planes:     planes,
		Timestamp:  types.Rescale(f.Pts, f.TimeBase, types.TimeBaseMicroseconds),
	}, nil
}
