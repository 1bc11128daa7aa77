// Package pool provides a generic pool of objects that are freed by a
// finalizer once the pool drops them.
package pool

import (
	"runtime"
	"sync"

	"go.uber.org/atomic"
)

type Pool[T any] struct {
	sync.Pool
	ResetFunc func(*T)

	// DisableReuse makes Put a no-op, so every object is freed by its
	// finalizer instead of being reused.
	DisableReuse bool

	allocated atomic.Uint64
}

func NewPool[T any](
	allocFunc func() *T,
	resetFunc func(*T),
	freeFunc func(*T),
) *Pool[T] {
	p := &Pool[T]{
		ResetFunc: resetFunc,
	}
	p.Pool.New = func() any {
		v := allocFunc()
		p.allocated.Inc()
		runtime.SetFinalizer(v, func(v *T) {
			freeFunc(v)
		})
		return v
	}
	return p
}

func (p *Pool[T]) Get() *T {
	return p.Pool.Get().(*T)
}

func (p *Pool[T]) Put(items ...*T) {
	if p.DisableReuse {
		return
	}
	for _, item := range items {
		p.ResetFunc(item)
		p.Pool.Put(item)
	}
}

// Allocated returns how many objects the pool ever had to allocate.
func (p *Pool[T]) Allocated() uint64 {
	return p.allocated.Load()
}
