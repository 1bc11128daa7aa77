package libav

import (
	"fmt"

	"github.com/xaionaro-go/avcompose/engine"
)

type ErrUnknownHandle struct {
	Handle engine.Handle
}

func (e ErrUnknownHandle) Error() string {
	return fmt.Sprintf("unknown handle %s", e.Handle)
}

type ErrUnknownStream struct {
	StreamIndex int
}

func (e ErrUnknownStream) Error() string {
	return fmt.Sprintf("unknown stream #%d", e.StreamIndex)
}
