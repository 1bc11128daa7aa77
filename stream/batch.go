// batch.go defines the unit of data moved by one pull.

package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/payload"
)

// Item is one payload tagged with the logical stream it belongs to.
type Item struct {
	StreamIndex int
	Payload     payload.Payload
}

func (i Item) String() string {
	return fmt.Sprintf("#%d:%s", i.StreamIndex, i.Payload)
}

// Batch is the ordered group of items produced by one pull.
type Batch []Item

// Release releases every payload of the batch that was not consumed yet.
func (b Batch) Release(ctx context.Context, eng engine.Engine) error {
	var errs []error
	for idx, item := range b {
		if err := item.Payload.Release(ctx, eng); err != nil {
			errs = append(errs, fmt.Errorf("unable to release item #%d (%s): %w", idx, item, err))
		}
	}
	return errors.Join(errs...)
}
