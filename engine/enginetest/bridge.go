package enginetest

import (
	"context"
	"image"
	"image/color"

	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/types"
	"github.com/xaionaro-go/xsync"
)

// Bridge converts native frames into fake engine frames: video frames keep
// the gray level of their top-left pixel, audio keeps the sample count.
type Bridge struct {
	locker xsync.Mutex
	calls  map[string]int
}

var _ engine.Bridge = (*Bridge)(nil)

func NewBridge() *Bridge {
	return &Bridge{calls: map[string]int{}}
}

func (b *Bridge) Calls(op string) int {
	return xsync.DoR1(context.Background(), &b.locker, func() int {
		return b.calls[op]
	})
}

func (b *Bridge) count(ctx context.Context, op string) {
	b.locker.Do(ctx, func() {
		b.calls[op]++
	})
}

func (b *Bridge) VideoFrameToEngine(ctx context.Context, f *engine.VideoFrame) (*engine.Frame, error) {
	b.count(ctx, "video-to-engine")
	bounds := f.Image.Bounds()
	gray := color.GrayModel.Convert(f.Image.At(bounds.Min.X, bounds.Min.Y)).(color.Gray)
	return &engine.Frame{
		MediaType: types.MediaTypeVideo,
		Format:    "gray",
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Pts:       f.Timestamp,
		Duration:  f.Duration,
		TimeBase:  types.TimeBaseMicroseconds,
		Data:      []byte{gray.Y},
	}, nil
}

func (b *Bridge) AudioDataToEngine(ctx context.Context, a *engine.AudioData) (*engine.Frame, error) {
	b.count(ctx, "audio-to-engine")
	return &engine.Frame{
		MediaType:  types.MediaTypeAudio,
		Format:     "fltp",
		SampleRate: a.SampleRate,
		Channels:   a.NumberOfChannels(),
		NbSamples:  a.NumberOfFrames(),
		Pts:        a.Timestamp,
		TimeBase:   types.TimeBaseMicroseconds,
	}, nil
}

func (b *Bridge) EngineToVideoFrame(ctx context.Context, f *engine.Frame) (*engine.VideoFrame, error) {
	b.count(ctx, "engine-to-video")
	img := image.NewGray(image.Rect(0, 0, max(f.Width, 1), max(f.Height, 1)))
	if len(f.Data) > 0 {
		img.Pix[0] = f.Data[0]
	}
	return &engine.VideoFrame{
		Image:     img,
		Timestamp: types.Rescale(f.Pts, f.TimeBase, types.TimeBaseMicroseconds),
	}, nil
}

func (b *Bridge) EngineToAudioData(ctx context.Context, f *engine.Frame) (*engine.AudioData, error) {
	b.count(ctx, "engine-to-audio")
	planes := make([][]float32, max(f.Channels, 1))
	for i := range planes {
		planes[i] = make([]float32, f.NbSamples)
	}
	return &engine.AudioData{
		SampleRate: f.SampleRate,
		Planes:     planes,
		Timestamp:  types.Rescale(f.Pts, f.TimeBase, types.TimeBaseMicroseconds),
	}, nil
}
