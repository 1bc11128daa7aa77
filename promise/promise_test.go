package promise

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPromiseResolveOnce(t *testing.T) {
	ctx := context.Background()
	p := New[int]()
	require.False(t, p.IsSettled())
	require.True(t, p.Resolve(1))
	require.False(t, p.Resolve(2))
	require.False(t, p.Reject(errors.New("late")))

	v, err := p.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestPromiseReject(t *testing.T) {
	errBoom := errors.New("boom")
	_, err := Rejected[string](errBoom).Await(context.Background())
	require.ErrorIs(t, err, errBoom)
}

func TestPromiseAwaitCancelled(t *testing.T) {
	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelFn()
	_, err := New[int]().Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestThen(t *testing.T) {
	ctx := context.Background()
	p := New[int]()
	r := Then(ctx, p, func(_ context.Context, v int) (string, error) {
		if v < 0 {
			return "", errors.New("negative")
		}
		return "ok", nil
	})
	p.Resolve(5)
	v, err := r.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", v)

	_, err = Then(ctx, Resolved(-1), func(_ context.Context, v int) (string, error) {
		return "", errors.New("negative")
	}).Await(ctx)
	require.EqualError(t, err, "negative")
}
