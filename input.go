package avcompose

import (
	"io"

	"github.com/xaionaro-go/avcompose/promise"
	"github.com/xaionaro-go/avcompose/stage"
)

// Input is what a stage is built from; it is one of *Initializer, Built,
// Future and Raw.
type Input interface {
	isInput()
}

// Built is an already constructed stage.
type Built struct {
	Stage *stage.Stage
}

func (Built) isInput() {}

// Future is an input that is not known yet; resolution waits for it.
type Future struct {
	Promise *promise.Promise[Input]
}

func (Future) isInput() {}

// Raw is a stream of container bytes.
type Raw struct {
	Reader io.Reader
}

func (Raw) isInput() {}

var (
	_ Input = (*Initializer)(nil)
	_ Input = Built{}
	_ Input = Future{}
	_ Input = Raw{}
)
