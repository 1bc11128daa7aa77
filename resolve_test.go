package avcompose

import (
	"bytes"
	"context"
	"image"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/engine/enginetest"
	"github.com/xaionaro-go/avcompose/payload"
	"github.com/xaionaro-go/avcompose/promise"
	"github.com/xaionaro-go/avcompose/stage"
	"github.com/xaionaro-go/avcompose/stream"
	"github.com/xaionaro-go/avcompose/types"
)

func newTestResolver() (*Resolver, *enginetest.Engine) {
	eng := enginetest.New()
	return &Resolver{
		Env:   &stage.Env{Engine: eng, Bridge: enginetest.NewBridge()},
		Trace: &Trace{},
	}, eng
}

func rawContainer(packets ...string) Raw {
	var pkts []engine.Packet
	for _, p := range packets {
		idx, data, _ := strings.Cut(p, " ")
		streamIndex := 0
		if idx == "1" {
			streamIndex = 1
		}
		pkts = append(pkts, engine.Packet{StreamIndex: streamIndex, Data: []byte(data)})
	}
	return Raw{Reader: bytes.NewReader(enginetest.FormatContainer(
		[]types.MediaType{types.MediaTypeVideo, types.MediaTypeAudio},
		pkts...,
	))}
}

func packetStage() *stage.Stage {
	return BuildPacketStream(
		[]types.StreamParameters{types.PlaceholderStreamParameters(types.MediaTypeVideo)},
		stream.FromSlice("packets", stream.Batch{
			{StreamIndex: 0, Payload: payload.Owned(&engine.Packet{Data: []byte("a")})},
		}),
	)
}

func collectData(t *testing.T, ctx context.Context, eng *enginetest.Engine, s *stage.Stage) []string {
	batches, err := stream.Collect(ctx, s.Stream())
	require.NoError(t, err)
	var result []string
	for _, batch := range batches {
		for _, item := range batch {
			if item.Payload.Mode() == types.OwnershipModeHandle {
				h, err := item.Payload.TakeHandle()
				require.NoError(t, err)
				if item.Payload.HandleKind() == payload.HandleKindFrame {
					f, err := eng.CopyOutFrame(ctx, h)
					require.NoError(t, err)
					result = append(result, string(f.Data))
					require.NoError(t, eng.FreeFrame(ctx, h))
				} else {
					p, err := eng.CopyOutPacket(ctx, h)
					require.NoError(t, err)
					result = append(result, string(p.Data))
					require.NoError(t, eng.FreePacket(ctx, h))
				}
				continue
			}
			v, err := item.Payload.TakeOwned()
			require.NoError(t, err)
			switch v := v.(type) {
			case *engine.Frame:
				result = append(result, string(v.Data))
			case *engine.Packet:
				result = append(result, string(v.Data))
			default:
				t.Fatalf("unexpected payload %T", v)
			}
		}
	}
	return result
}

func TestCoercionTableIsExhaustive(t *testing.T) {
	for _, target := range Targets() {
		for _, shape := range Shapes() {
			action := Coerce(target, shape)
			require.NotEqual(t, UndefinedActionType, action.Type, "%s from %s", target, shape)
			switch action.Type {
			case ActionBuild:
				require.Equal(t, shape.Kind, action.Kind, "%s from %s", target, shape)
			case ActionWrap:
				_, ok := TargetOf(action.Kind)
				require.True(t, ok, "%s from %s: %s", target, shape, action)
			}
		}
	}
}

func TestCoercionIdentityIsTheOnlyFixedPoint(t *testing.T) {
	for _, target := range Targets() {
		for _, shape := range Shapes() {
			action := Coerce(target, shape)
			if action.Type != ActionIdentity {
				continue
			}
			require.Contains(t, []ShapeClass{ShapeClassRaw, ShapeClassStage}, shape.Class)
			if shape.Class == ShapeClassRaw {
				require.Equal(t, TargetRaw, target)
			}
		}
	}
}

func TestIdentityResolution(t *testing.T) {
	ctx := context.Background()
	r, eng := newTestResolver()

	packets := packetStage()
	frames := BuildFrameStream([]types.MediaType{types.MediaTypeVideo}, stream.Empty("frames"))
	normalized, err := stage.NewNormalizer(ctx, r.Env, stage.NormalizerConfig{}, promise.Resolved(frames)).Await(ctx)
	require.NoError(t, err)
	file, err := stage.NewMuxer(ctx, r.Env, stage.MuxerConfig{}, promise.Resolved(packetStage())).Await(ctx)
	require.NoError(t, err)

	calls := eng.TotalCalls()
	for _, tc := range []struct {
		target Target
		stage  *stage.Stage
	}{
		{TargetDemuxer, packets},
		{TargetEncoder, packets},
		{TargetAnyPacket, packets},
		{TargetDecoder, frames},
		{TargetAnyFrame, frames},
		{TargetDecoder, normalized},
		{TargetNormalizer, normalized},
		{TargetMuxer, file},
	} {
		s, err := r.Resolve(ctx, tc.target, Built{Stage: tc.stage}).Await(ctx)
		require.NoError(t, err)
		require.Same(t, tc.stage, s, "%s from %s", tc.target, tc.stage)
	}
	require.Empty(t, r.Trace.Synthesized())
	require.Empty(t, r.Trace.Built())
	require.Equal(t, calls, eng.TotalCalls())
}

func TestEncoderFromRawBytes(t *testing.T) {
	ctx := context.Background()
	r, eng := newTestResolver()

	s, err := r.Resolve(ctx, TargetEncoder, rawContainer("0 a", "1 b")).Await(ctx)
	require.NoError(t, err)
	require.Equal(t, types.ComponentEncoder, s.Component)
	require.Equal(t, types.OwnershipModeHandle, s.OwnershipMode)

	require.Equal(t, []types.Kind{types.KindDemuxer, types.KindDecoder, types.KindEncoder}, r.Trace.Chain())
	require.Equal(t, []types.Kind{types.KindEncoder, types.KindDecoder, types.KindDemuxer}, r.Trace.Synthesized())

	require.Equal(t, []string{
		types.DefaultVideoCodec + ":A",
		types.DefaultAudioCodec + ":B",
	}, collectData(t, ctx, eng, s))
	require.Empty(t, eng.LiveHandles())
}

func TestDecoderFromPacketStage(t *testing.T) {
	ctx := context.Background()
	r, eng := newTestResolver()
	packets := packetStage()

	s, err := r.Resolve(ctx, TargetDecoder, Built{Stage: packets}).Await(ctx)
	require.NoError(t, err)
	require.Equal(t, types.ComponentDecoder, s.Component)
	require.Equal(t, types.OwnershipModeHandle, s.OwnershipMode)

	steps := r.Trace.Steps()
	require.Len(t, steps, 3)
	require.Equal(t, wrapAs(types.KindDecoder), steps[0].Action)
	require.Equal(t, types.OwnershipModeHandle, steps[0].OwnershipMode)
	require.Equal(t, buildAs(types.KindDecoder), steps[1].Action)
	require.Equal(t, TargetDemuxer, steps[2].Target)
	require.Equal(t, identity, steps[2].Action)

	require.Equal(t, []string{"A"}, collectData(t, ctx, eng, s))
	require.Empty(t, eng.LiveHandles())
}

func TestOwnershipModePropagation(t *testing.T) {
	for _, mode := range []types.OwnershipMode{types.OwnershipModeHandle, types.OwnershipModeCopy} {
		t.Run(mode.String(), func(t *testing.T) {
			ctx := context.Background()
			r, eng := newTestResolver()

			s, err := r.Build(ctx, &Initializer{
				Kind:          types.KindMuxer,
				OwnershipMode: mode,
				Input: &Initializer{
					Kind:  types.KindEncoder,
					Input: rawContainer("0 a", "1 b", "0 c"),
				},
			}).Await(ctx)
			require.NoError(t, err)
			require.Equal(t, types.OwnershipModeCopy, s.OwnershipMode)

			require.Equal(t, []types.Kind{
				types.KindDemuxer, types.KindDecoder, types.KindEncoder, types.KindMuxer,
			}, r.Trace.Chain())
			for _, step := range r.Trace.Steps() {
				switch step.Action.Type {
				case ActionBuild, ActionWrap:
					require.Equal(t, mode, step.OwnershipMode, "%s", step.Action)
				}
			}

			var out bytes.Buffer
			_, err = stage.Drain(ctx, s, &out)
			require.NoError(t, err)
			require.Equal(t, "matroska "+types.DefaultVideoCodec+","+types.DefaultAudioCodec+"\n"+
				"0 "+types.DefaultVideoCodec+":A\n"+
				"1 "+types.DefaultAudioCodec+":B\n"+
				"0 "+types.DefaultVideoCodec+":C\n"+
				"END\n", out.String())
			require.Empty(t, eng.LiveHandles())
		})
	}
}

func TestExplicitOwnershipModeIsKept(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver()

	s, err := r.Build(ctx, &Initializer{
		Kind:          types.KindEncoder,
		OwnershipMode: types.OwnershipModeCopy,
		Input: &Initializer{
			Kind:          types.KindDecoder,
			OwnershipMode: types.OwnershipModeHandle,
			Input:         rawContainer("0 a"),
		},
	}).Await(ctx)
	require.NoError(t, err)
	require.Equal(t, types.OwnershipModeCopy, s.OwnershipMode)

	modes := map[types.Kind]types.OwnershipMode{}
	for _, step := range r.Trace.Steps() {
		if step.Action.Type == ActionBuild {
			modes[step.Action.Kind] = step.OwnershipMode
		}
	}
	require.Equal(t, map[types.Kind]types.OwnershipMode{
		types.KindEncoder: types.OwnershipModeCopy,
		types.KindDecoder: types.OwnershipModeHandle,
		types.KindDemuxer: types.OwnershipModeHandle,
	}, modes)
}

func TestMuxerFromRawBytesRemuxes(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver()

	s, err := r.Resolve(ctx, TargetMuxer, rawContainer("0 a")).Await(ctx)
	require.NoError(t, err)
	require.Equal(t, []types.Kind{types.KindDemuxer, types.KindMuxer}, r.Trace.Chain())

	var out bytes.Buffer
	_, err = stage.Drain(ctx, s, &out)
	require.NoError(t, err)
	require.Equal(t, "matroska fake,fake\n0 a\nEND\n", out.String())
}

func TestSynthesizedDefaults(t *testing.T) {
	encoder := synthesize(types.KindEncoder, types.OwnershipModeUndefined, Raw{})
	require.Equal(t, types.OwnershipModeHandle, encoder.OwnershipMode)
	require.Equal(t, "vp09.00.10.08.03.1.1.1.0", encoder.VideoConfig.Codec)
	require.Equal(t, "opus", encoder.AudioConfig.Codec)

	muxer := synthesize(types.KindMuxer, types.OwnershipModeCopy, Raw{})
	require.Equal(t, types.OwnershipModeCopy, muxer.OwnershipMode)
	require.Equal(t, "matroska", muxer.Format)
}

func TestFilterIsUnsupported(t *testing.T) {
	ctx := context.Background()
	r, eng := newTestResolver()

	_, err := r.Build(ctx, &Initializer{Kind: types.KindFilter, Input: rawContainer()}).Await(ctx)
	require.ErrorAs(t, err, &types.ErrUnsupportedStage{})

	_, err = r.Build(ctx, &Initializer{
		Kind:  types.KindEncoder,
		Input: &Initializer{Kind: types.KindFilter, Input: rawContainer()},
	}).Await(ctx)
	var unsupported types.ErrUnsupportedStage
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, types.KindFilter, unsupported.Kind)
	require.Zero(t, eng.Calls("new-encoder"))
}

func TestUnrecognizedInitializer(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver()

	for _, init := range []*Initializer{
		{Kind: "transmogrifier"},
		{},
		{Kind: types.KindDecoder, Input: &Initializer{Kind: "transmogrifier"}},
		{Kind: types.KindMuxer, Input: &Initializer{Kind: types.KindEncoder, Input: &Initializer{}}},
	} {
		_, err := r.Build(ctx, init).Await(ctx)
		var unrecognized types.ErrUnrecognizedInitializer
		require.ErrorAs(t, err, &unrecognized, "%s", init)
	}
	_, err := r.Build(ctx, nil).Await(ctx)
	require.ErrorAs(t, err, &types.ErrUnrecognizedInitializer{})

	_, err = r.Build(ctx, &Initializer{Kind: "transmogrifier"}).Await(ctx)
	require.Equal(t, types.ErrUnrecognizedInitializer{Kind: "transmogrifier"}, err)
}

func TestSelfReferentialInitializer(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver()

	self := &Initializer{Kind: types.KindDecoder}
	self.Input = self
	_, err := r.Build(ctx, self).Await(ctx)
	require.ErrorAs(t, err, &types.ErrSelfReferentialInitializer{})

	a := &Initializer{Kind: types.KindEncoder}
	b := &Initializer{Kind: types.KindDecoder, Input: a}
	a.Input = b
	_, err = r.Build(ctx, a).Await(ctx)
	require.ErrorAs(t, err, &types.ErrSelfReferentialInitializer{})

	demuxer := &Initializer{Kind: types.KindDemuxer}
	demuxer.Input = demuxer
	_, err = r.Build(ctx, demuxer).Await(ctx)
	require.ErrorAs(t, err, &types.ErrSelfReferentialInitializer{})

	future := promise.New[Input]()
	viaFuture := &Initializer{Kind: types.KindEncoder, Input: Future{Promise: future}}
	future.Resolve(viaFuture)
	_, err = r.Build(ctx, viaFuture).Await(ctx)
	require.ErrorAs(t, err, &types.ErrSelfReferentialInitializer{})
}

func TestIncompatibleInput(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver()

	_, err := r.Build(ctx, &Initializer{
		Kind:  types.KindDemuxer,
		Input: &Initializer{Kind: types.KindEncoder, Input: rawContainer()},
	}).Await(ctx)
	require.ErrorAs(t, err, &types.ErrIncompatibleInput{})

	_, err = r.Build(ctx, &Initializer{Kind: types.KindDecoder}).Await(ctx)
	require.ErrorAs(t, err, &ErrNoInput{})

	_, err = r.Build(ctx, &Initializer{Kind: types.KindFrameStream}).Await(ctx)
	require.ErrorAs(t, err, &ErrNoStream{})
}

func TestFutureInput(t *testing.T) {
	ctx := context.Background()
	r, eng := newTestResolver()

	future := promise.New[Input]()
	result := r.Resolve(ctx, TargetDecoder, Future{Promise: future})
	require.False(t, result.IsSettled())

	future.Resolve(rawContainer("0 a"))
	s, err := result.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, types.ComponentDecoder, s.Component)
	require.Equal(t, []string{"A"}, collectData(t, ctx, eng, s))
}

func TestMonoFrameStream(t *testing.T) {
	ctx := context.Background()
	s, err := Build(ctx, enginetest.New(), enginetest.NewBridge(), &Initializer{
		Kind:      types.KindMonoFrameStream,
		MediaType: types.MediaTypeAudio,
		Stream: stream.FromSlice("audio", stream.Batch{
			{StreamIndex: 4, Payload: payload.Owned(&engine.AudioData{Timestamp: 1})},
			{StreamIndex: 2, Payload: payload.Owned(&engine.AudioData{Timestamp: 2})},
		}),
	})
	require.NoError(t, err)
	require.Equal(t, types.ComponentFrameStream, s.Component)
	require.Equal(t, types.StreamTypeFrame, s.StreamType)
	require.Equal(t, types.OwnershipModeCopy, s.OwnershipMode)

	streams, err := s.Streams.Await(ctx)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	require.Equal(t, types.MediaTypeAudio, streams[0].MediaType)

	batch, err := s.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	for _, item := range batch {
		require.Zero(t, item.StreamIndex)
	}
	_, err = s.Pull(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestEncoderOverUserFrames(t *testing.T) {
	ctx := context.Background()
	r, eng := newTestResolver()

	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.Pix[0] = 'x'
	s, err := r.Build(ctx, &Initializer{
		Kind: types.KindEncoder,
		VideoConfig: &types.VideoEncoderConfig{
			Codec:  types.DefaultVideoCodec,
			Width:  4,
			Height: 4,
		},
		Input: &Initializer{
			Kind:        types.KindFrameStream,
			StreamKinds: []types.MediaType{types.MediaTypeVideo},
			Stream: stream.FromSlice("video", stream.Batch{
				{StreamIndex: 0, Payload: payload.Owned(&engine.VideoFrame{Image: img})},
			}),
		},
	}).Await(ctx)
	require.NoError(t, err)
	require.Equal(t, []types.Kind{types.KindEncoder}, r.Trace.Chain())

	streams, err := s.Streams.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, streams[0].Width)
	require.Equal(t, 4, streams[0].Height)

	require.Equal(t, []string{types.DefaultVideoCodec + ":x"}, collectData(t, ctx, eng, s))
	require.Empty(t, eng.LiveHandles())
}

func TestEncoderOverUserFramesWithoutSize(t *testing.T) {
	ctx := context.Background()
	r, eng := newTestResolver()

	_, err := r.Resolve(ctx, TargetMuxer, &Initializer{
		Kind:      types.KindMonoFrameStream,
		MediaType: types.MediaTypeVideo,
		Stream:    stream.Empty("video"),
	}).Await(ctx)
	var unknownSize types.ErrUnknownVideoSize
	require.ErrorAs(t, err, &unknownSize)
	require.Equal(t, types.MediaTypeVideo, unknownSize.Input.MediaType)
	require.Zero(t, eng.Calls("new-encoder"))
	require.Zero(t, eng.Calls("new-muxer"))
}
