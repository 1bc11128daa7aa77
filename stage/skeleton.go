// skeleton.go is the pull/transform loop shared by the engine-backed stages.

package stage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/avcompose/logger"
	"github.com/xaionaro-go/avcompose/promise"
	"github.com/xaionaro-go/avcompose/stream"
	"github.com/xaionaro-go/avcompose/types"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xcontext"
)

// transformer is the per-kind part of an engine-backed stage.
type transformer interface {
	// transform converts one upstream item into zero or more output items.
	// Payloads it creates must be tracked by the holder.
	transform(ctx context.Context, h *holder, item stream.Item) (stream.Batch, error)

	// flush is called once the upstream closed cleanly.
	flush(ctx context.Context, h *holder) (stream.Batch, error)

	close(ctx context.Context) error
}

// initFunc resolves the metadata of the stage being built and returns the
// transformer serving its pulls.
type initFunc func(
	ctx context.Context,
	upstream *Stage,
	upstreamStreams []types.StreamParameters,
) (transformer, []types.StreamParameters, error)

// startFunc resolves the metadata of a stage and returns its live stream.
type startFunc func(ctx context.Context, s *Stage) (*stream.Stream, []types.StreamParameters, error)

// start runs the init step of the placeholder s asynchronously; the
// returned promise is fulfilled only after the live stream was installed.
func start(
	ctx context.Context,
	env *Env,
	s *Stage,
	init startFunc,
) *promise.Promise[*Stage] {
	result := promise.New[*Stage]()
	ctx = logger.WithStage(ctx, s.String())
	observability.Go(ctx, func(ctx context.Context) {
		err := startStage(ctx, s, init)
		if err != nil {
			s.Streams.Reject(err)
			result.Reject(err)
			return
		}
		env.Metrics.ObserveStageBuilt(s.Component)
		result.Resolve(s)
	})
	return result
}

func startStage(ctx context.Context, s *Stage, init startFunc) (_err error) {
	logger.Debugf(ctx, "startStage[%s]", s)
	defer func() { logger.Debugf(ctx, "/startStage[%s]: %v", s, _err) }()

	r, streams, err := init(ctx, s)
	if err != nil {
		return fmt.Errorf("unable to initialize %s: %w", s, err)
	}
	logger.Tracef(ctx, "%s streams: %s", s, spew.Sdump(streams))
	s.install(r)
	s.Streams.Resolve(streams)
	return nil
}

// build starts a stage that transforms the batches of an upstream stage.
func build(
	ctx context.Context,
	env *Env,
	component types.Component,
	streamType types.StreamType,
	mode types.OwnershipMode,
	upstreamPromise *promise.Promise[*Stage],
	init initFunc,
) *promise.Promise[*Stage] {
	s := newPlaceholder(component, streamType, mode.Or(types.DefaultOwnershipMode))
	return start(ctx, env, s, func(ctx context.Context, s *Stage) (*stream.Stream, []types.StreamParameters, error) {
		upstream, err := upstreamPromise.Await(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to get the upstream: %w", err)
		}
		upstreamStreams, err := upstream.Streams.Await(ctx)
		if err != nil {
			err = fmt.Errorf("unable to get the streams of %s: %w", upstream, err)
			return nil, nil, abandon(ctx, upstream, err)
		}
		t, streams, err := init(ctx, upstream, upstreamStreams)
		if err != nil {
			return nil, nil, abandon(ctx, upstream, err)
		}
		p := &puller{
			env:             env,
			stage:           s,
			upstream:        upstream,
			upstreamStreams: upstreamStreams,
			transformer:     t,
		}
		return stream.New(s.String(), p.pull, p.shutdown), streams, nil
	})
}

// abandon cancels an upstream the failed stage will never pull from.
func abandon(ctx context.Context, upstream *Stage, err error) error {
	if cancelErr := upstream.Cancel(xcontext.DetachDone(ctx)); cancelErr != nil {
		err = errors.Join(err, fmt.Errorf("unable to cancel %s: %w", upstream, cancelErr))
	}
	return err
}

type puller struct {
	env             *Env
	stage           *Stage
	upstream        *Stage
	upstreamStreams []types.StreamParameters
	transformer     transformer
	finished        bool
	isShutDown      bool
}

// pull is always called with the stream lock held, so the puller needs no
// locking of its own.
func (p *puller) pull(ctx context.Context) (_ret stream.Batch, _err error) {
	component := p.stage.Component
	defer func() { p.env.Metrics.ObservePull(component, len(_ret), _err) }()
	if p.finished {
		return nil, io.EOF
	}

	h := newHolder(p.env, component)
	defer func() {
		if err := h.releaseAll(ctx); err != nil {
			logger.Errorf(ctx, "unable to release the payloads held by %s: %v", p.stage, err)
		}
	}()

	batch, err := p.upstream.Pull(ctx)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		p.finished = true
		out, err := p.transformer.flush(ctx, h)
		if shutdownErr := p.shutdown(ctx); shutdownErr != nil {
			err = errors.Join(err, shutdownErr)
		}
		if err != nil {
			return nil, err
		}
		if len(out) == 0 {
			return nil, io.EOF
		}
		return p.handOver(ctx, h, out)
	default:
		p.fail(ctx)
		return nil, err
	}

	h.trackBatch(batch)
	if err := p.validate(batch); err != nil {
		p.fail(ctx)
		return nil, err
	}
	out := make(stream.Batch, 0, len(batch))
	for _, item := range batch {
		items, err := p.transformer.transform(ctx, h, item)
		if err != nil {
			p.fail(ctx)
			return nil, err
		}
		out = append(out, items...)
	}
	return p.handOver(ctx, h, out)
}

func (p *puller) handOver(ctx context.Context, h *holder, out stream.Batch) (stream.Batch, error) {
	result, err := h.handOver(out)
	if err != nil {
		p.fail(ctx)
		return nil, err
	}
	return result, nil
}

func (p *puller) validate(batch stream.Batch) error {
	mode := p.upstream.OwnershipMode
	for _, item := range batch {
		if item.StreamIndex < 0 || item.StreamIndex >= len(p.upstreamStreams) {
			return malformed(item.StreamIndex, "the upstream %s has %d streams", p.upstream, len(p.upstreamStreams))
		}
		if !item.Payload.IsValid() {
			return malformed(item.StreamIndex, "invalid payload")
		}
		if item.Payload.IsConsumed() {
			return malformed(item.StreamIndex, "the payload was already consumed")
		}
		if item.Payload.Mode() != mode {
			return malformed(item.StreamIndex, "ownership mode mixing: %s declares %s, got %s", p.upstream, mode, item.Payload.Mode())
		}
	}
	return nil
}

func (p *puller) fail(ctx context.Context) {
	if err := p.shutdown(xcontext.DetachDone(ctx)); err != nil {
		logger.Errorf(ctx, "unable to shut down %s: %v", p.stage, err)
	}
}

// shutdown closes the engine objects of the stage and cancels the upstream.
// It is also the cancel hook of the stage stream.
func (p *puller) shutdown(ctx context.Context) (_err error) {
	if p.isShutDown {
		return nil
	}
	p.isShutDown = true
	logger.Debugf(ctx, "shutdown[%s]", p.stage)
	defer func() { logger.Debugf(ctx, "/shutdown[%s]: %v", p.stage, _err) }()

	ctx = xcontext.DetachDone(ctx)
	var errs []error
	if err := p.transformer.close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("unable to close %s: %w", p.stage, err))
	}
	if err := p.upstream.Cancel(ctx); err != nil {
		errs = append(errs, fmt.Errorf("unable to cancel %s: %w", p.upstream, err))
	}
	return errors.Join(errs...)
}
