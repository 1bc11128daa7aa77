// adapter.go wraps caller-supplied streams into stages without involving
// the engine.

package stage

import (
	"context"

	"github.com/xaionaro-go/avcompose/stream"
	"github.com/xaionaro-go/avcompose/types"
)

// AdaptPacketStream returns a packet stage over r, whose items must be
// *engine.Packet owned copies described by streams.
func AdaptPacketStream(streams []types.StreamParameters, r stream.Reader) *Stage {
	return adapt(types.ComponentPacketStream, types.StreamTypePacket, streams, r)
}

// AdaptFrameStream returns a frame stage over r with one logical stream per
// entry of kinds. Items may be any frame representation as owned copies.
func AdaptFrameStream(kinds []types.MediaType, r stream.Reader) *Stage {
	streams := make([]types.StreamParameters, 0, len(kinds))
	for _, kind := range kinds {
		streams = append(streams, types.PlaceholderStreamParameters(kind))
	}
	return adapt(types.ComponentFrameStream, types.StreamTypeFrame, streams, r)
}

// AdaptMonoFrameStream is AdaptFrameStream for a single logical stream: every
// item is re-tagged with stream index 0 whatever index it carried.
func AdaptMonoFrameStream(kind types.MediaType, r stream.Reader) *Stage {
	mono := stream.MapItems(r.String(), r, func(_ context.Context, item stream.Item) (stream.Item, error) {
		item.StreamIndex = 0
		return item, nil
	})
	return AdaptFrameStream([]types.MediaType{kind}, mono)
}

func adapt(
	component types.Component,
	streamType types.StreamType,
	streams []types.StreamParameters,
	r stream.Reader,
) *Stage {
	s := newPlaceholder(component, streamType, types.OwnershipModeCopy)
	s.install(r)
	s.Streams.Resolve(streams)
	return s
}
