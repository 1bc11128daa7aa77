// convert.go moves payloads between the handle and the owned-copy
// representations, and between native and engine frames.

package stage

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/payload"
	"github.com/xaionaro-go/avcompose/stream"
	"github.com/xaionaro-go/avcompose/types"
)

func engineFailure(op string, err error) error {
	return types.ErrEngineFailure{Op: op, Err: err}
}

func malformed(streamIndex int, format string, args ...any) error {
	return types.ErrMalformedPayload{StreamIndex: streamIndex, Reason: fmt.Sprintf(format, args...)}
}

// packetHandle returns a handle holding the packet of the item. The handle
// is either the item's own or a temporary one tracked by the holder; the
// caller must not free it.
func (h *holder) packetHandle(ctx context.Context, item stream.Item) (engine.Handle, error) {
	p := item.Payload
	if p.Mode() == types.OwnershipModeHandle {
		if p.HandleKind() != payload.HandleKindPacket {
			return engine.InvalidHandle, malformed(item.StreamIndex, "expected a packet handle, got a %s handle", p.HandleKind())
		}
		return p.PeekHandle()
	}

	v, err := p.PeekValue()
	if err != nil {
		return engine.InvalidHandle, malformed(item.StreamIndex, "%v", err)
	}
	pkt, ok := v.(*engine.Packet)
	if !ok {
		return engine.InvalidHandle, malformed(item.StreamIndex, "expected *engine.Packet, got %T", v)
	}
	handle, err := h.env.Engine.AllocPacket(ctx)
	if err != nil {
		return engine.InvalidHandle, engineFailure("alloc-packet", err)
	}
	h.trackPacket(handle)
	if err := h.env.Engine.CopyInPacket(ctx, handle, pkt); err != nil {
		return engine.InvalidHandle, engineFailure("copy-in-packet", err)
	}
	return handle, nil
}

// normalizeFrame returns the frame of the item in the engine representation
// and in the requested ownership mode. Native frames are converted through
// the bridge. The result may be the item's own payload (pass-through).
func (h *holder) normalizeFrame(
	ctx context.Context,
	item stream.Item,
	mode types.OwnershipMode,
) (payload.Payload, error) {
	p := item.Payload
	if p.Mode() == types.OwnershipModeHandle {
		if p.HandleKind() != payload.HandleKindFrame {
			return payload.Payload{}, malformed(item.StreamIndex, "expected a frame handle, got a %s handle", p.HandleKind())
		}
		if mode == types.OwnershipModeHandle {
			return p, nil
		}
		handle, err := p.PeekHandle()
		if err != nil {
			return payload.Payload{}, malformed(item.StreamIndex, "%v", err)
		}
		f, err := h.env.Engine.CopyOutFrame(ctx, handle)
		if err != nil {
			return payload.Payload{}, engineFailure("copy-out-frame", err)
		}
		return h.track(payload.Owned(f)), nil
	}

	v, err := p.PeekValue()
	if err != nil {
		return payload.Payload{}, malformed(item.StreamIndex, "%v", err)
	}
	var f *engine.Frame
	switch v := v.(type) {
	case *engine.Frame:
		if mode == types.OwnershipModeCopy {
			return p, nil
		}
		f = v
	case *engine.VideoFrame:
		if h.env.Bridge == nil {
			return payload.Payload{}, engineFailure("video-frame-to-engine", ErrNoBridge{})
		}
		f, err = h.env.Bridge.VideoFrameToEngine(ctx, v)
		if err != nil {
			return payload.Payload{}, engineFailure("video-frame-to-engine", err)
		}
	case *engine.AudioData:
		if h.env.Bridge == nil {
			return payload.Payload{}, engineFailure("audio-data-to-engine", ErrNoBridge{})
		}
		f, err = h.env.Bridge.AudioDataToEngine(ctx, v)
		if err != nil {
			return payload.Payload{}, engineFailure("audio-data-to-engine", err)
		}
	default:
		return payload.Payload{}, malformed(item.StreamIndex, "unrecognized frame shape %T", v)
	}

	if mode == types.OwnershipModeCopy {
		return h.track(payload.Owned(f)), nil
	}
	handle, err := h.env.Engine.AllocFrame(ctx)
	if err != nil {
		return payload.Payload{}, engineFailure("alloc-frame", err)
	}
	result := h.trackFrame(handle)
	if err := h.env.Engine.CopyInFrame(ctx, handle, f); err != nil {
		return payload.Payload{}, engineFailure("copy-in-frame", err)
	}
	return result, nil
}

// frameHandle returns a handle holding the frame of the item, converting it
// if needed. The caller must not free it.
func (h *holder) frameHandle(ctx context.Context, item stream.Item) (engine.Handle, error) {
	p, err := h.normalizeFrame(ctx, item, types.OwnershipModeHandle)
	if err != nil {
		return engine.InvalidHandle, err
	}
	return p.PeekHandle()
}

// emitPackets takes ownership of packet handles produced by the engine and
// returns the items to send downstream in the given ownership mode.
func (h *holder) emitPackets(
	ctx context.Context,
	streamIndex int,
	handles []engine.Handle,
	mode types.OwnershipMode,
) (stream.Batch, error) {
	payloads := make([]payload.Payload, 0, len(handles))
	for _, handle := range handles {
		payloads = append(payloads, h.trackPacket(handle))
	}
	result := make(stream.Batch, 0, len(handles))
	for _, p := range payloads {
		item, err := h.packetItem(ctx, streamIndex, p, mode)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, nil
}

func (h *holder) packetItem(
	ctx context.Context,
	streamIndex int,
	p payload.Payload,
	mode types.OwnershipMode,
) (stream.Item, error) {
	if mode == types.OwnershipModeHandle {
		return stream.Item{StreamIndex: streamIndex, Payload: p}, nil
	}
	handle, err := p.PeekHandle()
	if err != nil {
		return stream.Item{}, err
	}
	pkt, err := h.env.Engine.CopyOutPacket(ctx, handle)
	if err != nil {
		return stream.Item{}, engineFailure("copy-out-packet", err)
	}
	pkt.StreamIndex = streamIndex
	if err := h.release(ctx, p); err != nil {
		return stream.Item{}, engineFailure("free-packet", err)
	}
	return stream.Item{StreamIndex: streamIndex, Payload: h.track(payload.Owned(pkt))}, nil
}

// emitFrames takes ownership of frame handles produced by the engine and
// returns the items to send downstream. With native set the frames are
// converted into the bridge's native representation (always owned copies).
func (h *holder) emitFrames(
	ctx context.Context,
	streamIndex int,
	handles []engine.Handle,
	mode types.OwnershipMode,
	native bool,
) (stream.Batch, error) {
	payloads := make([]payload.Payload, 0, len(handles))
	for _, handle := range handles {
		payloads = append(payloads, h.trackFrame(handle))
	}
	result := make(stream.Batch, 0, len(handles))
	for _, p := range payloads {
		item, err := h.frameItem(ctx, streamIndex, p, mode, native)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, nil
}

func (h *holder) frameItem(
	ctx context.Context,
	streamIndex int,
	p payload.Payload,
	mode types.OwnershipMode,
	native bool,
) (stream.Item, error) {
	if mode == types.OwnershipModeHandle && !native {
		return stream.Item{StreamIndex: streamIndex, Payload: p}, nil
	}
	handle, err := p.PeekHandle()
	if err != nil {
		return stream.Item{}, err
	}
	f, err := h.env.Engine.CopyOutFrame(ctx, handle)
	if err != nil {
		return stream.Item{}, engineFailure("copy-out-frame", err)
	}
	if err := h.release(ctx, p); err != nil {
		return stream.Item{}, engineFailure("free-frame", err)
	}
	if !native {
		return stream.Item{StreamIndex: streamIndex, Payload: h.track(payload.Owned(f))}, nil
	}

	if h.env.Bridge == nil {
		return stream.Item{}, engineFailure("engine-to-native", ErrNoBridge{})
	}
	var v any
	switch f.MediaType {
	case types.MediaTypeVideo:
		v, err = h.env.Bridge.EngineToVideoFrame(ctx, f)
	case types.MediaTypeAudio:
		v, err = h.env.Bridge.EngineToAudioData(ctx, f)
	default:
		return stream.Item{}, malformed(streamIndex, "no native representation for %s frames", f.MediaType)
	}
	if err != nil {
		return stream.Item{}, engineFailure("engine-to-native", err)
	}
	return stream.Item{StreamIndex: streamIndex, Payload: h.track(payload.Owned(v))}, nil
}
