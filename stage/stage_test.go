package stage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/engine/enginetest"
	"github.com/xaionaro-go/avcompose/payload"
	"github.com/xaionaro-go/avcompose/promise"
	"github.com/xaionaro-go/avcompose/stream"
	"github.com/xaionaro-go/avcompose/types"
)

func newTestEnv() (*Env, *enginetest.Engine, *enginetest.Bridge) {
	eng := enginetest.New()
	bridge := enginetest.NewBridge()
	return &Env{Engine: eng, Bridge: bridge}, eng, bridge
}

func rawInput(mediaTypes []types.MediaType, packets ...engine.Packet) *promise.Promise[io.Reader] {
	return promise.Resolved[io.Reader](bytes.NewReader(enginetest.FormatContainer(mediaTypes, packets...)))
}

func av() []types.MediaType {
	return []types.MediaType{types.MediaTypeVideo, types.MediaTypeAudio}
}

func pkt(streamIndex int, data string) engine.Packet {
	return engine.Packet{StreamIndex: streamIndex, Data: []byte(data)}
}

func demuxDecode(
	t *testing.T,
	ctx context.Context,
	env *Env,
	mode types.OwnershipMode,
	native bool,
	packets ...engine.Packet,
) *Stage {
	demuxer := NewDemuxer(ctx, env, DemuxerConfig{OwnershipMode: types.OwnershipModeHandle}, rawInput(av(), packets...))
	s, err := NewDecoder(ctx, env, DecoderConfig{OwnershipMode: mode, OutputNative: native}, demuxer).Await(ctx)
	require.NoError(t, err)
	return s
}

func TestFullChainHandleMode(t *testing.T) {
	ctx := context.Background()
	env, eng, _ := newTestEnv()

	demuxer := NewDemuxer(ctx, env, DemuxerConfig{}, rawInput(av(), pkt(0, "a"), pkt(1, "b"), pkt(0, "c")))
	decoder := NewDecoder(ctx, env, DecoderConfig{}, demuxer)
	encoder := NewEncoder(ctx, env, EncoderConfig{}, decoder)
	muxer, err := NewMuxer(ctx, env, MuxerConfig{}, encoder).Await(ctx)
	require.NoError(t, err)
	require.Equal(t, types.ComponentMuxer, muxer.Component)
	require.Equal(t, types.StreamTypeFile, muxer.StreamType)
	require.Equal(t, types.OwnershipModeCopy, muxer.OwnershipMode)

	var out bytes.Buffer
	n, err := Drain(ctx, muxer, &out)
	require.NoError(t, err)
	const expected = "matroska vp09.00.10.08.03.1.1.1.0,opus\n" +
		"0 vp09.00.10.08.03.1.1.1.0:A\n" +
		"1 opus:B\n" +
		"0 vp09.00.10.08.03.1.1.1.0:C\n" +
		"END\n"
	require.Equal(t, expected, out.String())
	require.Equal(t, int64(len(expected)), n)

	require.Empty(t, eng.LiveHandles())
	require.Equal(t, 2, eng.Calls("close-decoder"))
	require.Equal(t, 2, eng.Calls("close-encoder"))
	require.Equal(t, 1, eng.Calls("close-muxer"))
	require.Equal(t, 1, eng.Calls("close-demuxer"))
	require.Equal(t, 1, eng.Calls("finish-muxer"))
}

func TestEncoderMetadata(t *testing.T) {
	ctx := context.Background()
	env, _, _ := newTestEnv()

	decoder := NewDecoder(ctx, env, DecoderConfig{}, NewDemuxer(ctx, env, DemuxerConfig{}, rawInput(av())))
	encoder, err := NewEncoder(ctx, env, EncoderConfig{
		Video: &types.VideoEncoderConfig{Codec: "h264", Width: 64, Height: 48},
	}, decoder).Await(ctx)
	require.NoError(t, err)

	streams, err := encoder.Streams.Await(ctx)
	require.NoError(t, err)
	require.Len(t, streams, 2)
	require.Equal(t, "h264", streams[0].CodecName)
	require.Equal(t, 64, streams[0].Width)
	require.Equal(t, types.DefaultAudioCodec, streams[1].CodecName)
}

func TestDecoderCopyMode(t *testing.T) {
	ctx := context.Background()
	env, eng, _ := newTestEnv()
	decoder := demuxDecode(t, ctx, env, types.OwnershipModeCopy, false, pkt(0, "a"), pkt(1, "b"))
	require.Equal(t, types.StreamTypeEngineFrame, decoder.StreamType)
	require.Equal(t, types.OwnershipModeCopy, decoder.OwnershipMode)

	batches, err := stream.Collect(ctx, decoder.Stream())
	require.NoError(t, err)
	require.Len(t, batches, 2)

	var data []string
	for _, batch := range batches {
		require.Len(t, batch, 1)
		v, err := batch[0].Payload.TakeOwned()
		require.NoError(t, err)
		f, ok := v.(*engine.Frame)
		require.True(t, ok, "%T", v)
		data = append(data, string(f.Data))
	}
	require.Equal(t, []string{"A", "B"}, data)
	require.Equal(t, 0, batches[0][0].StreamIndex)
	require.Equal(t, 1, batches[1][0].StreamIndex)
	require.Empty(t, eng.LiveHandles())
}

func TestDecoderFlush(t *testing.T) {
	ctx := context.Background()
	env, eng, _ := newTestEnv()
	eng.FlushFrames = 2
	decoder := demuxDecode(t, ctx, env, types.OwnershipModeCopy, false, pkt(0, "a"))

	batch, err := decoder.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	batch, err = decoder.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 4)
	for _, item := range batch {
		v, err := item.Payload.TakeOwned()
		require.NoError(t, err)
		require.Contains(t, string(v.(*engine.Frame).Data), "FLUSH")
	}

	_, err = decoder.Pull(ctx)
	require.ErrorIs(t, err, io.EOF)
	_, err = decoder.Pull(ctx)
	require.ErrorIs(t, err, io.EOF)
	require.Empty(t, eng.LiveHandles())
}

func TestDecoderOutputNative(t *testing.T) {
	ctx := context.Background()
	env, eng, bridge := newTestEnv()
	decoder := demuxDecode(t, ctx, env, types.OwnershipModeHandle, true, pkt(0, "a"), pkt(1, "b"))
	require.Equal(t, types.StreamTypeNativeFrame, decoder.StreamType)
	require.Equal(t, types.OwnershipModeCopy, decoder.OwnershipMode)

	batches, err := stream.Collect(ctx, decoder.Stream())
	require.NoError(t, err)
	require.Len(t, batches, 2)

	v, err := batches[0][0].Payload.TakeOwned()
	require.NoError(t, err)
	video, ok := v.(*engine.VideoFrame)
	require.True(t, ok, "%T", v)
	r, _, _, _ := video.Image.At(0, 0).RGBA()
	require.Equal(t, uint32('A')*0x101, r)

	v, err = batches[1][0].Payload.TakeOwned()
	require.NoError(t, err)
	require.IsType(t, &engine.AudioData{}, v)

	require.Equal(t, 1, bridge.Calls("engine-to-video"))
	require.Equal(t, 1, bridge.Calls("engine-to-audio"))
	require.Empty(t, eng.LiveHandles())
}

func TestEngineFailureIsNotEOF(t *testing.T) {
	ctx := context.Background()
	env, eng, _ := newTestEnv()
	errBoom := errors.New("boom")
	eng.FailOn["decode"] = errBoom
	decoder := demuxDecode(t, ctx, env, types.OwnershipModeHandle, false, pkt(0, "a"))

	_, err := decoder.Pull(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, io.EOF)
	require.ErrorIs(t, err, errBoom)
	var engineErr types.ErrEngineFailure
	require.ErrorAs(t, err, &engineErr)
	require.Equal(t, "decode", engineErr.Op)

	_, err2 := decoder.Pull(ctx)
	require.Equal(t, err, err2)

	require.Empty(t, eng.LiveHandles())
	require.Equal(t, 2, eng.Calls("close-decoder"))
	require.Equal(t, 1, eng.Calls("close-demuxer"))
}

func TestCancelDuringPullReleasesHandles(t *testing.T) {
	ctx := context.Background()
	env, eng, _ := newTestEnv()
	eng.BlockOn["encode"] = true

	demuxer := NewDemuxer(ctx, env, DemuxerConfig{}, rawInput(av(), pkt(0, "a"), pkt(1, "b")))
	decoder := NewDecoder(ctx, env, DecoderConfig{}, demuxer)
	encoder, err := NewEncoder(ctx, env, EncoderConfig{}, decoder).Await(ctx)
	require.NoError(t, err)

	pullErr := make(chan error, 1)
	go func() {
		_, err := encoder.Pull(ctx)
		pullErr <- err
	}()
	require.Eventually(t, func() bool {
		return eng.Calls("encode") == 1
	}, time.Second, time.Millisecond)
	require.NotEmpty(t, eng.LiveHandles())

	require.NoError(t, encoder.Cancel(ctx))
	err = <-pullErr
	require.ErrorAs(t, err, &stream.ErrCancelled{})

	require.Empty(t, eng.LiveHandles())
	require.Equal(t, 1, eng.Calls("close-demuxer"))
	require.Equal(t, 2, eng.Calls("close-decoder"))
	require.Equal(t, 2, eng.Calls("close-encoder"))

	_, err = encoder.Pull(ctx)
	require.ErrorAs(t, err, &stream.ErrCancelled{})
}

func TestMalformedPayload(t *testing.T) {
	ctx := context.Background()

	for name, item := range map[string]stream.Item{
		"index-out-of-range": {StreamIndex: 3, Payload: payload.Owned(&engine.Packet{})},
		"negative-index":     {StreamIndex: -1, Payload: payload.Owned(&engine.Packet{})},
		"ownership-mixing":   {StreamIndex: 0, Payload: payload.PacketHandle(42)},
		"wrong-shape":        {StreamIndex: 0, Payload: payload.Owned("not a packet")},
		"invalid":            {StreamIndex: 0},
	} {
		t.Run(name, func(t *testing.T) {
			env, eng, _ := newTestEnv()
			packets := AdaptPacketStream(
				[]types.StreamParameters{types.PlaceholderStreamParameters(types.MediaTypeVideo)},
				stream.FromSlice("packets", stream.Batch{item}),
			)
			decoder, err := NewDecoder(ctx, env, DecoderConfig{}, promise.Resolved(packets)).Await(ctx)
			require.NoError(t, err)

			_, err = decoder.Pull(ctx)
			var malformedErr types.ErrMalformedPayload
			require.ErrorAs(t, err, &malformedErr)
			require.Equal(t, item.StreamIndex, malformedErr.StreamIndex)
			require.Zero(t, eng.Calls("decode"))
			require.Empty(t, eng.LiveHandles())
		})
	}
}

func TestNormalizer(t *testing.T) {
	ctx := context.Background()
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.Pix[0] = 7
	items := func() stream.Batch {
		return stream.Batch{
			{StreamIndex: 0, Payload: payload.Owned(&engine.VideoFrame{Image: img, Timestamp: 10})},
			{StreamIndex: 1, Payload: payload.Owned(&engine.AudioData{SampleRate: 48000, Planes: [][]float32{{0, 0, 0}}})},
			{StreamIndex: 0, Payload: payload.Owned(&engine.Frame{MediaType: types.MediaTypeVideo, Data: []byte{9}})},
		}
	}

	for _, mode := range []types.OwnershipMode{types.OwnershipModeHandle, types.OwnershipModeCopy} {
		t.Run(mode.String(), func(t *testing.T) {
			env, eng, bridge := newTestEnv()
			frames := AdaptFrameStream(av(), stream.FromSlice("frames", items()))
			normalizer, err := NewNormalizer(ctx, env, NormalizerConfig{OwnershipMode: mode}, promise.Resolved(frames)).Await(ctx)
			require.NoError(t, err)
			require.Equal(t, types.ComponentFilter, normalizer.Component)
			require.Equal(t, types.StreamTypeEngineFrame, normalizer.StreamType)
			require.Equal(t, mode, normalizer.OwnershipMode)

			streams, err := normalizer.Streams.Await(ctx)
			require.NoError(t, err)
			upstreamStreams, err := frames.Streams.Await(ctx)
			require.NoError(t, err)
			require.Equal(t, upstreamStreams, streams)

			batch, err := normalizer.Pull(ctx)
			require.NoError(t, err)
			require.Len(t, batch, 3)

			var got []*engine.Frame
			for _, item := range batch {
				require.Equal(t, mode, item.Payload.Mode())
				if mode == types.OwnershipModeHandle {
					h, err := item.Payload.TakeHandle()
					require.NoError(t, err)
					f, err := eng.CopyOutFrame(ctx, h)
					require.NoError(t, err)
					require.NoError(t, eng.FreeFrame(ctx, h))
					got = append(got, f)
					continue
				}
				v, err := item.Payload.TakeOwned()
				require.NoError(t, err)
				got = append(got, v.(*engine.Frame))
			}
			require.Equal(t, []byte{7}, got[0].Data)
			require.Equal(t, types.MediaTypeAudio, got[1].MediaType)
			require.Equal(t, 3, got[1].NbSamples)
			require.Equal(t, []byte{9}, got[2].Data)
			require.Equal(t, 1, bridge.Calls("video-to-engine"))
			require.Equal(t, 1, bridge.Calls("audio-to-engine"))

			_, err = normalizer.Pull(ctx)
			require.ErrorIs(t, err, io.EOF)
			require.Empty(t, eng.LiveHandles())
		})
	}
}

func TestNormalizerPassesHandlesThrough(t *testing.T) {
	ctx := context.Background()
	env, eng, _ := newTestEnv()
	decoder := demuxDecode(t, ctx, env, types.OwnershipModeHandle, false, pkt(0, "a"))
	normalizer, err := NewNormalizer(ctx, env, NormalizerConfig{}, promise.Resolved(decoder)).Await(ctx)
	require.NoError(t, err)

	batch, err := normalizer.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	h, err := batch[0].Payload.TakeHandle()
	require.NoError(t, err)
	require.Equal(t, []engine.Handle{h}, eng.LiveHandles())
	require.Zero(t, eng.Calls("copy-out-frame"))
	require.Zero(t, eng.Calls("copy-in-frame"))
	require.NoError(t, eng.FreeFrame(ctx, h))
}

func TestNormalizerUnknownShape(t *testing.T) {
	ctx := context.Background()
	env, _, _ := newTestEnv()
	frames := AdaptMonoFrameStream(types.MediaTypeVideo, stream.FromSlice("frames", stream.Batch{
		{Payload: payload.Owned(42)},
	}))
	normalizer, err := NewNormalizer(ctx, env, NormalizerConfig{}, promise.Resolved(frames)).Await(ctx)
	require.NoError(t, err)

	_, err = normalizer.Pull(ctx)
	require.ErrorAs(t, err, &types.ErrMalformedPayload{})
}

func TestUpstreamRejected(t *testing.T) {
	ctx := context.Background()
	env, _, _ := newTestEnv()
	errNoInput := errors.New("no input")
	_, err := NewDecoder(ctx, env, DecoderConfig{}, promise.Rejected[*Stage](errNoInput)).Await(ctx)
	require.ErrorIs(t, err, errNoInput)
}

func TestInitFailureCancelsUpstream(t *testing.T) {
	for _, tc := range []struct {
		failOn       string
		closeDecoder int
		closeEncoder int
		closeDemuxer int
	}{
		{failOn: "new-decoder", closeDecoder: 0, closeEncoder: 0, closeDemuxer: 1},
		{failOn: "new-encoder", closeDecoder: 2, closeEncoder: 0, closeDemuxer: 1},
		{failOn: "new-muxer", closeDecoder: 2, closeEncoder: 2, closeDemuxer: 1},
	} {
		t.Run(tc.failOn, func(t *testing.T) {
			ctx := context.Background()
			env, eng, _ := newTestEnv()
			errBoom := errors.New("boom")
			eng.FailOn[tc.failOn] = errBoom

			demuxer := NewDemuxer(ctx, env, DemuxerConfig{}, rawInput(av(), pkt(0, "a")))
			decoder := NewDecoder(ctx, env, DecoderConfig{}, demuxer)
			encoder := NewEncoder(ctx, env, EncoderConfig{}, decoder)
			_, err := NewMuxer(ctx, env, MuxerConfig{}, encoder).Await(ctx)
			require.ErrorIs(t, err, errBoom)

			require.Equal(t, tc.closeDecoder, eng.Calls("close-decoder"))
			require.Equal(t, tc.closeEncoder, eng.Calls("close-encoder"))
			require.Equal(t, tc.closeDemuxer, eng.Calls("close-demuxer"))
			require.Empty(t, eng.LiveHandles())

			d, err := demuxer.Await(ctx)
			require.NoError(t, err)
			_, err = d.Pull(ctx)
			require.Error(t, err)
			require.NotErrorIs(t, err, io.EOF)
		})
	}
}

type closeCountingReader struct {
	io.Reader
	closed int
}

func (r *closeCountingReader) Close() error {
	r.closed++
	return nil
}

func TestDemuxerOpenFailureClosesInput(t *testing.T) {
	ctx := context.Background()
	env, eng, _ := newTestEnv()
	errBoom := errors.New("boom")
	eng.FailOn["open-demuxer"] = errBoom

	r := &closeCountingReader{Reader: bytes.NewReader(enginetest.FormatContainer(av()))}
	_, err := NewDemuxer(ctx, env, DemuxerConfig{}, promise.Resolved[io.Reader](r)).Await(ctx)
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, 1, r.closed)
	require.Equal(t, 0, eng.Calls("close-demuxer"))
}
