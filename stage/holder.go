// holder.go tracks the payloads a pull handler is responsible for.

package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/logger"
	"github.com/xaionaro-go/avcompose/payload"
	"github.com/xaionaro-go/avcompose/stream"
	"github.com/xaionaro-go/avcompose/types"
	"github.com/xaionaro-go/xcontext"
)

// holder owns every payload a single pull brings into existence or receives
// from upstream. Whatever was not handed downstream by the end of the pull is
// released, which is what keeps failures and cancellations leak-free.
type holder struct {
	env       *Env
	component types.Component
	held      []payload.Payload
	issued    int
	freed     int
}

func newHolder(env *Env, component types.Component) *holder {
	return &holder{env: env, component: component}
}

// track takes a payload the stage itself brought into existence.
func (h *holder) track(p payload.Payload) payload.Payload {
	h.held = append(h.held, p)
	if p.Mode() == types.OwnershipModeHandle {
		h.issued++
	}
	return p
}

// trackBatch takes the payloads received from upstream; their handles were
// already counted as issued by the stage that allocated them.
func (h *holder) trackBatch(b stream.Batch) {
	for _, item := range b {
		h.held = append(h.held, item.Payload)
	}
}

func (h *holder) trackFrame(handle engine.Handle) payload.Payload {
	return h.track(payload.FrameHandle(handle))
}

func (h *holder) trackPacket(handle engine.Handle) payload.Payload {
	return h.track(payload.PacketHandle(handle))
}

// release frees p ahead of the end of the pull.
func (h *holder) release(ctx context.Context, p payload.Payload) error {
	isHandle := p.Mode() == types.OwnershipModeHandle && !p.IsConsumed()
	if err := p.Release(ctx, h.env.Engine); err != nil {
		return err
	}
	if isHandle {
		h.freed++
	}
	return nil
}

// handOver transfers the items downstream: the returned batch is the only
// live reference to their payloads. On failure the already transferred
// payloads stay held and are released with the rest.
func (h *holder) handOver(b stream.Batch) (stream.Batch, error) {
	result := make(stream.Batch, 0, len(b))
	for idx, item := range b {
		p, err := item.Payload.Transfer()
		if err != nil {
			for _, handed := range result {
				h.held = append(h.held, handed.Payload)
			}
			return nil, malformed(item.StreamIndex, "unable to hand over item #%d: %v", idx, err)
		}
		result = append(result, stream.Item{StreamIndex: item.StreamIndex, Payload: p})
	}
	return result, nil
}

// releaseAll frees everything still held. It runs with a detached context so
// that the cleanup of a cancelled pull still reaches the engine.
func (h *holder) releaseAll(ctx context.Context) error {
	ctx = xcontext.DetachDone(ctx)
	var errs []error
	for _, p := range h.held {
		if p.IsConsumed() {
			continue
		}
		if err := h.release(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("unable to release %s: %w", p, err))
		}
	}
	h.held = h.held[:0]
	if h.freed > 0 {
		logger.Tracef(ctx, "released %d handles", h.freed)
	}
	h.env.Metrics.ObserveHandles(h.component, h.issued, h.freed)
	h.issued, h.freed = 0, 0
	return errors.Join(errs...)
}
