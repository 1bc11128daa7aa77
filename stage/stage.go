// Package stage implements the Stage Contract and the stage builders.
//
// A Stage is constructed as a placeholder (empty stream, unresolved
// metadata); an asynchronous init step awaits the upstream stage, resolves
// the metadata and installs the live pull-driven stream. Builders return a
// promise that is fulfilled only after that step succeeded.
package stage

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/metrics"
	"github.com/xaionaro-go/avcompose/promise"
	"github.com/xaionaro-go/avcompose/stream"
	"github.com/xaionaro-go/avcompose/types"
)

// Env holds the collaborators shared by all the stages of one pipeline.
type Env struct {
	Engine  engine.Engine
	Bridge  engine.Bridge
	Metrics *metrics.Metrics
}

type Stage struct {
	ID            uint64
	Component     types.Component
	StreamType    types.StreamType
	OwnershipMode types.OwnershipMode

	// Streams is the per-logical-stream metadata.
	Streams *promise.Promise[[]types.StreamParameters]

	reader *stream.Reader
}

var nextStageID atomic.Uint64

func newPlaceholder(
	component types.Component,
	streamType types.StreamType,
	ownershipMode types.OwnershipMode,
) *Stage {
	s := &Stage{
		ID:            nextStageID.Add(1),
		Component:     component,
		StreamType:    streamType,
		OwnershipMode: ownershipMode,
		Streams:       promise.New[[]types.StreamParameters](),
	}
	var r stream.Reader = stream.Empty(s.String())
	s.reader = &r
	return s
}

func (s *Stage) install(r stream.Reader) {
	xatomic.StorePointer(&s.reader, &r)
}

// Stream returns the stream of payload batches of the stage.
func (s *Stage) Stream() stream.Reader {
	return *xatomic.LoadPointer(&s.reader)
}

func (s *Stage) Pull(ctx context.Context) (stream.Batch, error) {
	return s.Stream().Pull(ctx)
}

func (s *Stage) Cancel(ctx context.Context) error {
	return s.Stream().Cancel(ctx)
}

func (s *Stage) String() string {
	if s == nil {
		return "Stage(<nil>)"
	}
	return fmt.Sprintf("%s#%d", s.Component, s.ID)
}
