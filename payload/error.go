package payload

import (
	"fmt"

	"github.com/xaionaro-go/avcompose/types"
)

// ErrPayloadConsumed is returned on any use of a payload after it was taken,
// transferred or released.
type ErrPayloadConsumed struct{}

func (ErrPayloadConsumed) Error() string {
	return "the payload was already consumed"
}

type ErrInvalidPayload struct{}

func (ErrInvalidPayload) Error() string {
	return "the payload is not initialized"
}

type ErrOwnershipMismatch struct {
	Expected types.OwnershipMode
	Actual   types.OwnershipMode
}

func (e ErrOwnershipMismatch) Error() string {
	return fmt.Sprintf("expected a payload in ownership mode '%s', got '%s'", e.Expected, e.Actual)
}
