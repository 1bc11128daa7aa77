// Package promise provides a single-assignment value that becomes available
// later, used to thread not-yet-built stages and their metadata through the
// pipeline.
package promise

import (
	"context"
	"sync"

	"github.com/xaionaro-go/observability"
)

type Promise[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func New[T any]() *Promise[T] {
	return &Promise[T]{
		done: make(chan struct{}),
	}
}

// Resolved returns an already fulfilled promise.
func Resolved[T any](v T) *Promise[T] {
	p := New[T]()
	p.Resolve(v)
	return p
}

// Rejected returns an already failed promise.
func Rejected[T any](err error) *Promise[T] {
	p := New[T]()
	p.Reject(err)
	return p
}

// Resolve fulfills the promise. Only the first Resolve or Reject has effect;
// the returned value tells whether this call was the one.
func (p *Promise[T]) Resolve(v T) bool {
	return p.settle(v, nil)
}

func (p *Promise[T]) Reject(err error) bool {
	var zero T
	return p.settle(zero, err)
}

func (p *Promise[T]) settle(v T, err error) bool {
	settled := false
	p.once.Do(func() {
		p.value, p.err = v, err
		close(p.done)
		settled = true
	})
	return settled
}

// Done is closed once the promise is settled.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

func (p *Promise[T]) IsSettled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Await blocks until the promise is settled or ctx is done.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then returns a promise settled with fn applied to the value of p, or with
// the error of p. fn runs on the goroutine that awaits the result.
func Then[T, R any](ctx context.Context, p *Promise[T], fn func(context.Context, T) (R, error)) *Promise[R] {
	r := New[R]()
	observability.Go(ctx, func(ctx context.Context) {
		v, err := p.Await(ctx)
		if err != nil {
			r.Reject(err)
			return
		}
		res, err := fn(ctx, v)
		if err != nil {
			r.Reject(err)
			return
		}
		r.Resolve(res)
	})
	return r
}
