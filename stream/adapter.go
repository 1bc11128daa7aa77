// adapter.go provides Readers over caller-supplied sources.

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// FromChan returns a Reader that pulls batches from ch. The stream closes
// cleanly when ch is closed.
func FromChan(name string, ch <-chan Batch) *Stream {
	return New(name, func(ctx context.Context) (Batch, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case batch, ok := <-ch:
			if !ok {
				return nil, io.EOF
			}
			return batch, nil
		}
	}, nil)
}

// FromSlice returns a Reader that yields the given batches in order.
func FromSlice(name string, batches ...Batch) *Stream {
	idx := 0
	return New(name, func(ctx context.Context) (Batch, error) {
		if idx >= len(batches) {
			return nil, io.EOF
		}
		batch := batches[idx]
		idx++
		return batch, nil
	}, nil)
}

// MapItems returns a Reader that applies fn to every item pulled from r,
// preserving order. Cancelling the result cancels r.
func MapItems(
	name string,
	r Reader,
	fn func(ctx context.Context, item Item) (Item, error),
) *Stream {
	return New(name, func(ctx context.Context) (Batch, error) {
		batch, err := r.Pull(ctx)
		if err != nil {
			return nil, err
		}
		result := make(Batch, 0, len(batch))
		for idx, item := range batch {
			mapped, err := fn(ctx, item)
			if err != nil {
				return nil, fmt.Errorf("unable to map item #%d: %w", idx, err)
			}
			result = append(result, mapped)
		}
		return result, nil
	}, r.Cancel)
}

// Collect pulls r until it closes and returns everything it produced. On an
// abnormal termination it returns the batches received so far and the error.
func Collect(ctx context.Context, r Reader) ([]Batch, error) {
	var result []Batch
	for {
		batch, err := r.Pull(ctx)
		switch {
		case err == nil:
			result = append(result, batch)
		case errors.Is(err, io.EOF):
			return result, nil
		default:
			return result, err
		}
	}
}
