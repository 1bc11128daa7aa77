package stage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/logger"
	"github.com/xaionaro-go/avcompose/payload"
	"github.com/xaionaro-go/avcompose/promise"
	"github.com/xaionaro-go/avcompose/stream"
	"github.com/xaionaro-go/avcompose/types"
	"github.com/xaionaro-go/xcontext"
)

type DemuxerConfig struct {
	OwnershipMode types.OwnershipMode

	// Format forces the container format; empty means probing.
	Format string
}

// NewDemuxer returns a stage splitting the container read from input into
// packets. Cancelling the stage closes input if it is an io.Closer.
func NewDemuxer(
	ctx context.Context,
	env *Env,
	cfg DemuxerConfig,
	input *promise.Promise[io.Reader],
) *promise.Promise[*Stage] {
	s := newPlaceholder(types.ComponentDemuxer, types.StreamTypePacket, cfg.OwnershipMode.Or(types.DefaultOwnershipMode))
	return start(ctx, env, s, func(ctx context.Context, s *Stage) (*stream.Stream, []types.StreamParameters, error) {
		r, err := input.Await(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to get the input: %w", err)
		}
		d, err := env.Engine.OpenDemuxer(ctx, r, cfg.Format)
		if err != nil {
			return nil, nil, closeInput(ctx, r, engineFailure("open-demuxer", err))
		}
		streams, err := d.Streams(ctx)
		if err != nil {
			err = engineFailure("demuxer-streams", err)
			if closeErr := d.Close(xcontext.DetachDone(ctx)); closeErr != nil {
				err = errors.Join(err, engineFailure("close-demuxer", closeErr))
			}
			return nil, nil, closeInput(ctx, r, err)
		}
		dm := &demuxer{
			env:     env,
			stage:   s,
			reader:  r,
			demuxer: d,
			streams: streams,
		}
		return stream.New(s.String(), dm.pull, dm.shutdown), streams, nil
	})
}

type demuxer struct {
	env        *Env
	stage      *Stage
	reader     io.Reader
	demuxer    engine.Demuxer
	streams    []types.StreamParameters
	finished   bool
	isShutDown bool
}

func (d *demuxer) pull(ctx context.Context) (_ret stream.Batch, _err error) {
	defer func() { d.env.Metrics.ObservePull(d.stage.Component, len(_ret), _err) }()
	if d.finished {
		return nil, io.EOF
	}

	h := newHolder(d.env, d.stage.Component)
	defer func() {
		if err := h.releaseAll(ctx); err != nil {
			logger.Errorf(ctx, "unable to release the payloads held by %s: %v", d.stage, err)
		}
	}()

	handles, err := d.demuxer.ReadPackets(ctx)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		d.finished = true
		if err := d.shutdown(ctx); err != nil {
			return nil, err
		}
		return nil, io.EOF
	default:
		for _, sh := range handles {
			h.trackPacket(sh.Handle)
		}
		d.fail(ctx)
		return nil, engineFailure("demux", err)
	}

	payloads := make([]payload.Payload, 0, len(handles))
	for _, sh := range handles {
		payloads = append(payloads, h.trackPacket(sh.Handle))
	}
	out := make(stream.Batch, 0, len(handles))
	for idx, sh := range handles {
		if sh.StreamIndex < 0 || sh.StreamIndex >= len(d.streams) {
			d.fail(ctx)
			return nil, malformed(sh.StreamIndex, "the container has %d streams", len(d.streams))
		}
		item, err := h.packetItem(ctx, sh.StreamIndex, payloads[idx], d.stage.OwnershipMode)
		if err != nil {
			d.fail(ctx)
			return nil, err
		}
		out = append(out, item)
	}
	result, err := h.handOver(out)
	if err != nil {
		d.fail(ctx)
		return nil, err
	}
	return result, nil
}

func (d *demuxer) fail(ctx context.Context) {
	if err := d.shutdown(xcontext.DetachDone(ctx)); err != nil {
		logger.Errorf(ctx, "unable to shut down %s: %v", d.stage, err)
	}
}

func (d *demuxer) shutdown(ctx context.Context) (_err error) {
	if d.isShutDown {
		return nil
	}
	d.isShutDown = true
	logger.Debugf(ctx, "shutdown[%s]", d.stage)
	defer func() { logger.Debugf(ctx, "/shutdown[%s]: %v", d.stage, _err) }()

	ctx = xcontext.DetachDone(ctx)
	var errs []error
	if err := d.demuxer.Close(ctx); err != nil {
		errs = append(errs, engineFailure("close-demuxer", err))
	}
	if c, ok := d.reader.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("unable to close the input: %w", err))
		}
	}
	return errors.Join(errs...)
}

// closeInput closes r if it is an io.Closer, for when no demuxer will own it.
func closeInput(ctx context.Context, r io.Reader, err error) error {
	c, ok := r.(io.Closer)
	if !ok {
		return err
	}
	if closeErr := c.Close(); closeErr != nil {
		logger.Debugf(ctx, "unable to close the input: %v", closeErr)
		err = errors.Join(err, fmt.Errorf("unable to close the input: %w", closeErr))
	}
	return err
}
