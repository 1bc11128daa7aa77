// Package stream implements the pull-based contract through which stages,
// and the final consumer, exchange batches.
//
// A Reader has a single consumer and at most one outstanding Pull at a
// time. Pull returns io.EOF when the stream closed cleanly; any other error
// is an abnormal termination. Both are sticky.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xaionaro-go/avcompose/helpers/closuresignaler"
	"github.com/xaionaro-go/avcompose/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xsync"
)

type Reader interface {
	fmt.Stringer
	Pull(ctx context.Context) (Batch, error)

	// Cancel stops the stream and everything upstream of it. It waits for an
	// in-flight Pull to return.
	Cancel(ctx context.Context) error
}

type PullFunc func(ctx context.Context) (Batch, error)
type CancelFunc func(ctx context.Context) error

type Stream struct {
	*closuresignaler.ClosureSignaler

	Name     string
	locker   xsync.Mutex
	pullFn   PullFunc
	cancelFn CancelFunc
	err      error
}

var _ Reader = (*Stream)(nil)

func New(
	name string,
	pullFn PullFunc,
	cancelFn CancelFunc,
) *Stream {
	return &Stream{
		ClosureSignaler: closuresignaler.New(),
		Name:            name,
		pullFn:          pullFn,
		cancelFn:        cancelFn,
	}
}

// Empty returns a stream that is closed from the start.
func Empty(name string) *Stream {
	return New(name, func(context.Context) (Batch, error) {
		return nil, io.EOF
	}, nil)
}

func (s *Stream) String() string {
	return s.Name
}

func (s *Stream) Pull(ctx context.Context) (_ret Batch, _err error) {
	logger.Tracef(ctx, "Pull[%s]", s.Name)
	defer func() { logger.Tracef(ctx, "/Pull[%s]: %d items, %v", s.Name, len(_ret), _err) }()

	var (
		batch Batch
		err   error
	)
	s.locker.Do(ctx, func() {
		batch, err = s.pullLocked(ctx)
	})
	return batch, err
}

func (s *Stream) pullLocked(ctx context.Context) (Batch, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.IsClosed() {
		return nil, ErrCancelled{}
	}

	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	observability.Go(ctx, func(ctx context.Context) {
		select {
		case <-s.CloseChan():
			cancelFn()
		case <-ctx.Done():
		}
	})

	batch, err := s.pullFn(ctx)
	if err != nil && s.IsClosed() && !errors.Is(err, io.EOF) {
		err = ErrCancelled{Err: err}
	}
	switch {
	case err == nil:
		return batch, nil
	case errors.Is(err, io.EOF):
		logger.Debugf(ctx, "stream '%s' closed", s.Name)
		s.err = io.EOF
		s.ClosureSignaler.Close(ctx)
		return nil, io.EOF
	default:
		logger.Debugf(ctx, "stream '%s' terminated: %v", s.Name, err)
		s.err = err
		s.ClosureSignaler.Close(ctx)
		return nil, err
	}
}

// Err returns the terminal state of the stream: nil while it is live,
// io.EOF after a clean close, or the error that terminated it.
func (s *Stream) Err() error {
	return xsync.DoR1(context.Background(), &s.locker, func() error {
		return s.err
	})
}

func (s *Stream) Cancel(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Cancel[%s]", s.Name)
	defer func() { logger.Debugf(ctx, "/Cancel[%s]: %v", s.Name, _err) }()

	s.ClosureSignaler.Close(ctx)
	var err error
	s.locker.Do(ctx, func() {
		if s.err == nil {
			s.err = ErrCancelled{}
		}
		if s.cancelFn == nil {
			return
		}
		cancelFn := s.cancelFn
		s.cancelFn = nil
		err = cancelFn(ctx)
	})
	return err
}
