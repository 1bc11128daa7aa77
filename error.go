package avcompose

import (
	"fmt"

	"github.com/xaionaro-go/avcompose/types"
)

// ErrNoInput is returned when a stage needs an input its initializer does
// not provide.
type ErrNoInput struct {
	Kind types.Kind
}

func (e ErrNoInput) Error() string {
	return fmt.Sprintf("the initializer of kind '%s' has no input", e.Kind)
}

// ErrNoStream is returned when a user stream initializer has no Stream.
type ErrNoStream struct {
	Kind types.Kind
}

func (e ErrNoStream) Error() string {
	return fmt.Sprintf("the initializer of kind '%s' has no stream", e.Kind)
}
