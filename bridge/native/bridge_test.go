package native

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/types"
)

func TestVideoRGBARoundTrip(t *testing.T) {
	ctx := context.Background()
	b := New()

	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.Set(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	f, err := b.VideoFrameToEngine(ctx, &engine.VideoFrame{Image: src, Timestamp: 40000})
	require.NoError(t, err)
	require.Equal(t, PixelFormatRGBA, f.Format)
	require.Equal(t, 3, f.Width)
	require.Equal(t, 2, f.Height)
	require.Len(t, f.Data, 3*2*4)
	require.Equal(t, int64(40000), f.Pts)

	v, err := b.EngineToVideoFrame(ctx, f)
	require.NoError(t, err)
	require.Equal(t, int64(40000), v.Timestamp)
	r, g, bl, _ := v.Image.At(1, 1).RGBA()
	require.Equal(t, []uint32{10, 20, 30}, []uint32{r >> 8, g >> 8, bl >> 8})
}

func TestVideoYUV420PassesPlanes(t *testing.T) {
	ctx := context.Background()
	b := New()

	src := image.NewYCbCr(image.Rect(0, 0, 4, 4), image.YCbCrSubsampleRatio420)
	for i := range src.Y {
		src.Y[i] = byte(i)
	}
	src.Cb[0], src.Cr[0] = 100, 200

	f, err := b.VideoFrameToEngine(ctx, &engine.VideoFrame{Image: src})
	require.NoError(t, err)
	require.Equal(t, PixelFormatYUV420P, f.Format)
	require.Len(t, f.Data, 16+4+4)
	require.Equal(t, byte(100), f.Data[16])
	require.Equal(t, byte(200), f.Data[20])

	v, err := b.EngineToVideoFrame(ctx, f)
	require.NoError(t, err)
	require.Equal(t, src.Y, v.Image.(*image.YCbCr).Y)
}

func TestAudioRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := New()

	a := &engine.AudioData{
		SampleRate: 48000,
		Planes:     [][]float32{{0.5, -0.5}, {0.25, 1}},
		Timestamp:  1000,
	}
	f, err := b.AudioDataToEngine(ctx, a)
	require.NoError(t, err)
	require.Equal(t, types.MediaTypeAudio, f.MediaType)
	require.Equal(t, 2, f.Channels)
	require.Equal(t, 2, f.NbSamples)

	back, err := b.EngineToAudioData(ctx, f)
	require.NoError(t, err)
	require.Equal(t, a, back)
}

func TestAudioRejectsRaggedPlanes(t *testing.T) {
	_, err := New().AudioDataToEngine(context.Background(), &engine.AudioData{
		Planes: [][]float32{{0}, {0, 1}},
	})
	require.Error(t, err)
}

func TestEngineToVideoFrameRejectsShortData(t *testing.T) {
	_, err := New().EngineToVideoFrame(context.Background(), &engine.Frame{
		MediaType: types.MediaTypeVideo,
		Format:    PixelFormatRGBA,
		Width:     2,
		Height:    2,
		Data:      make([]byte, 3),
	})
	require.Error(t, err)
}
