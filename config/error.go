package config

import (
	"fmt"

	"github.com/xaionaro-go/avcompose/types"
)

type ErrNoInput struct{}

func (ErrNoInput) Error() string {
	return "a stage without a kind must name a file"
}

type ErrAmbiguousInput struct {
	Kind types.Kind
}

func (e ErrAmbiguousInput) Error() string {
	return fmt.Sprintf("stage %s has both a file and an input stage", e.Kind)
}

type ErrUserStream struct {
	Kind types.Kind
}

func (e ErrUserStream) Error() string {
	return fmt.Sprintf("kind %s wraps a caller-supplied stream and cannot be described in a task", e.Kind)
}
