package stream

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avcompose/payload"
)

func TestStickyEOF(t *testing.T) {
	ctx := context.Background()
	calls := 0
	s := New("test", func(context.Context) (Batch, error) {
		calls++
		if calls > 1 {
			return nil, io.EOF
		}
		return Batch{{Payload: payload.Owned(1)}}, nil
	}, nil)

	batch, err := s.Pull(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.NoError(t, s.Err())

	for i := 0; i < 3; i++ {
		_, err = s.Pull(ctx)
		require.ErrorIs(t, err, io.EOF)
	}
	require.Equal(t, 2, calls)
	require.ErrorIs(t, s.Err(), io.EOF)
	require.True(t, s.IsClosed())
}

func TestStickyFailure(t *testing.T) {
	ctx := context.Background()
	errBroken := errors.New("broken")
	calls := 0
	s := New("test", func(context.Context) (Batch, error) {
		calls++
		return nil, errBroken
	}, nil)

	_, err := s.Pull(ctx)
	require.ErrorIs(t, err, errBroken)
	require.NotErrorIs(t, err, io.EOF)
	_, err = s.Pull(ctx)
	require.ErrorIs(t, err, errBroken)
	require.Equal(t, 1, calls)
}

func TestCancelAbortsInFlightPull(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	cancelCalls := 0
	s := New("test", func(ctx context.Context) (Batch, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}, func(context.Context) error {
		cancelCalls++
		return nil
	})

	pullErr := make(chan error, 1)
	go func() {
		_, err := s.Pull(ctx)
		pullErr <- err
	}()
	<-started
	require.NoError(t, s.Cancel(ctx))

	select {
	case err := <-pullErr:
		require.ErrorAs(t, err, &ErrCancelled{})
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("the pull was not aborted")
	}
	require.Equal(t, 1, cancelCalls)

	require.NoError(t, s.Cancel(ctx))
	require.Equal(t, 1, cancelCalls)
}

func TestCancelBeforePull(t *testing.T) {
	ctx := context.Background()
	s := FromSlice("test", Batch{{Payload: payload.Owned(1)}})
	require.NoError(t, s.Cancel(ctx))
	_, err := s.Pull(ctx)
	require.ErrorAs(t, err, &ErrCancelled{})
}

func TestFromChan(t *testing.T) {
	ctx := context.Background()
	ch := make(chan Batch, 2)
	ch <- Batch{{StreamIndex: 1, Payload: payload.Owned("a")}}
	ch <- Batch{{StreamIndex: 0, Payload: payload.Owned("b")}}
	close(ch)

	batches, err := Collect(ctx, FromChan("chan", ch))
	require.NoError(t, err)
	require.Len(t, batches, 2)
	require.Equal(t, 1, batches[0][0].StreamIndex)
	require.Equal(t, 0, batches[1][0].StreamIndex)
}

func TestMapItems(t *testing.T) {
	ctx := context.Background()
	source := FromSlice("source",
		Batch{{StreamIndex: 1}, {StreamIndex: 2}},
		Batch{{StreamIndex: 3}},
	)
	mapped := MapItems("mapped", source, func(_ context.Context, item Item) (Item, error) {
		item.StreamIndex *= 10
		return item, nil
	})

	batches, err := Collect(ctx, mapped)
	require.NoError(t, err)
	require.Equal(t, []Batch{
		{{StreamIndex: 10}, {StreamIndex: 20}},
		{{StreamIndex: 30}},
	}, batches)
}
