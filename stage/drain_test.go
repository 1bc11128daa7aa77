package stage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/payload"
	"github.com/xaionaro-go/avcompose/stream"
	"github.com/xaionaro-go/avcompose/types"
)

func fileStage(batches ...stream.Batch) *Stage {
	s := newPlaceholder(types.ComponentMuxer, types.StreamTypeFile, types.OwnershipModeCopy)
	s.install(stream.FromSlice("file", batches...))
	s.Streams.Resolve(nil)
	return s
}

func chunk(position int64, data string) stream.Item {
	return stream.Item{Payload: payload.Owned(&engine.FileChunk{Position: position, Data: []byte(data)})}
}

func TestDrainWriterAt(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	n, err := Drain(ctx, fileStage(
		stream.Batch{chunk(0, "xxxx"), chunk(4, "body")},
		stream.Batch{chunk(0, "head")},
	), f)
	require.NoError(t, err)
	require.Equal(t, int64(12), n)
	require.NoError(t, f.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "headbody", string(b))
}

func TestDrainWriterRejectsRewrites(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	_, err := Drain(ctx, fileStage(
		stream.Batch{chunk(0, "head"), chunk(4, "body")},
		stream.Batch{chunk(0, "HEAD")},
	), &buf)
	var nonSequential ErrNonSequentialChunk
	require.ErrorAs(t, err, &nonSequential)
	require.Equal(t, int64(8), nonSequential.Expected)
	require.Equal(t, "headbody", buf.String())
}

func TestDrainRequiresFileStage(t *testing.T) {
	ctx := context.Background()
	s := AdaptPacketStream(nil, stream.Empty("packets"))
	_, err := Drain(ctx, s, &bytes.Buffer{})
	require.Error(t, err)
}

func TestDrainPropagatesFailure(t *testing.T) {
	ctx := context.Background()
	errBroken := errors.New("broken")
	s := newPlaceholder(types.ComponentMuxer, types.StreamTypeFile, types.OwnershipModeCopy)
	s.install(stream.New("file", func(context.Context) (stream.Batch, error) {
		return nil, errBroken
	}, nil))

	_, err := Drain(ctx, s, &bytes.Buffer{})
	require.ErrorIs(t, err, errBroken)
}
