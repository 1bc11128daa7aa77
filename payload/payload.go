// Package payload implements the ownership-tagged value carried by every
// batch item: either an engine-owned handle that must be released or handed
// on exactly once, or a self-contained owned copy.
package payload

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/types"
	"go.uber.org/atomic"
)

type HandleKind int

const (
	UndefinedHandleKind = HandleKind(iota)
	HandleKindFrame
	HandleKindPacket
)

func (k HandleKind) String() string {
	switch k {
	case HandleKindFrame:
		return "frame"
	case HandleKindPacket:
		return "packet"
	default:
		return fmt.Sprintf("HandleKind(%d)", int(k))
	}
}

type cell struct {
	mode       types.OwnershipMode
	handleKind HandleKind
	handle     engine.Handle
	value      any
	consumed   atomic.Bool
}

// Payload is either a handle (OwnershipModeHandle) or an owned copy
// (OwnershipModeCopy). Copies of a Payload share the consumption state, so
// once any copy is taken or released all of them are spent.
type Payload struct {
	c *cell
}

func FrameHandle(h engine.Handle) Payload {
	return Payload{c: &cell{mode: types.OwnershipModeHandle, handleKind: HandleKindFrame, handle: h}}
}

func PacketHandle(h engine.Handle) Payload {
	return Payload{c: &cell{mode: types.OwnershipModeHandle, handleKind: HandleKindPacket, handle: h}}
}

func Owned(v any) Payload {
	return Payload{c: &cell{mode: types.OwnershipModeCopy, value: v}}
}

func (p Payload) IsValid() bool {
	return p.c != nil
}

func (p Payload) Mode() types.OwnershipMode {
	if p.c == nil {
		return types.OwnershipModeUndefined
	}
	return p.c.mode
}

func (p Payload) HandleKind() HandleKind {
	if p.c == nil {
		return UndefinedHandleKind
	}
	return p.c.handleKind
}

func (p Payload) IsConsumed() bool {
	return p.c == nil || p.c.consumed.Load()
}

// PeekValue returns the owned value without consuming the payload.
func (p Payload) PeekValue() (any, error) {
	if err := p.check(types.OwnershipModeCopy); err != nil {
		return nil, err
	}
	return p.c.value, nil
}

// PeekHandle returns the handle without consuming the payload.
func (p Payload) PeekHandle() (engine.Handle, error) {
	if err := p.check(types.OwnershipModeHandle); err != nil {
		return engine.InvalidHandle, err
	}
	return p.c.handle, nil
}

// TakeHandle consumes the payload and returns its handle; the caller
// becomes responsible for freeing or handing on the handle.
func (p Payload) TakeHandle() (engine.Handle, error) {
	if err := p.check(types.OwnershipModeHandle); err != nil {
		return engine.InvalidHandle, err
	}
	if !p.c.consumed.CompareAndSwap(false, true) {
		return engine.InvalidHandle, ErrPayloadConsumed{}
	}
	return p.c.handle, nil
}

// TakeOwned consumes the payload and returns its value.
func (p Payload) TakeOwned() (any, error) {
	if err := p.check(types.OwnershipModeCopy); err != nil {
		return nil, err
	}
	if !p.c.consumed.CompareAndSwap(false, true) {
		return nil, ErrPayloadConsumed{}
	}
	return p.c.value, nil
}

// Transfer consumes the payload and returns a fresh one with the same
// content. It is how a stage hands a payload downstream while making any
// further use of its own reference an error.
func (p Payload) Transfer() (Payload, error) {
	if p.c == nil {
		return Payload{}, ErrInvalidPayload{}
	}
	if !p.c.consumed.CompareAndSwap(false, true) {
		return Payload{}, ErrPayloadConsumed{}
	}
	return Payload{c: &cell{
		mode:       p.c.mode,
		handleKind: p.c.handleKind,
		handle:     p.c.handle,
		value:      p.c.value,
	}}, nil
}

// Release consumes the payload, freeing the handle through the engine if
// the payload is a handle. Releasing an already consumed payload is a no-op,
// which allows cleanup paths to release everything they might still hold.
func (p Payload) Release(ctx context.Context, eng engine.Engine) error {
	if p.c == nil {
		return nil
	}
	if !p.c.consumed.CompareAndSwap(false, true) {
		return nil
	}
	if p.c.mode != types.OwnershipModeHandle {
		return nil
	}
	switch p.c.handleKind {
	case HandleKindFrame:
		return eng.FreeFrame(ctx, p.c.handle)
	case HandleKindPacket:
		return eng.FreePacket(ctx, p.c.handle)
	default:
		return fmt.Errorf("unknown handle kind %s", p.c.handleKind)
	}
}

func (p Payload) check(mode types.OwnershipMode) error {
	if p.c == nil {
		return ErrInvalidPayload{}
	}
	if p.c.mode != mode {
		return ErrOwnershipMismatch{Expected: mode, Actual: p.c.mode}
	}
	if p.c.consumed.Load() {
		return ErrPayloadConsumed{}
	}
	return nil
}

func (p Payload) String() string {
	switch {
	case p.c == nil:
		return "Payload(<nil>)"
	case p.c.mode == types.OwnershipModeHandle:
		return fmt.Sprintf("Payload(%s %s)", p.c.handleKind, p.c.handle)
	default:
		return fmt.Sprintf("Payload(%T)", p.c.value)
	}
}
