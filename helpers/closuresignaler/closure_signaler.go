// Package closuresignaler provides a close-once signal that can be
// observed through a channel.
package closuresignaler

import (
	"context"
	"sync"

	"github.com/xaionaro-go/avcompose/logger"
)

type ClosureSignaler struct {
	closeOnce sync.Once
	c         chan struct{}
}

func New() *ClosureSignaler {
	return &ClosureSignaler{
		c: make(chan struct{}),
	}
}

// CloseChan is closed once Close was called.
func (c *ClosureSignaler) CloseChan() <-chan struct{} {
	return c.c
}

// Close is idempotent; it returns true only for the call that actually
// closed the signaler.
func (c *ClosureSignaler) Close(ctx context.Context) bool {
	closed := false
	c.closeOnce.Do(func() {
		logger.Tracef(ctx, "closing the signaler")
		close(c.c)
		closed = true
	})
	return closed
}

func (c *ClosureSignaler) IsClosed() bool {
	select {
	case <-c.c:
		return true
	default:
		return false
	}
}
