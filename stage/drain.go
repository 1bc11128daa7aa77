package stage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/logger"
	"github.com/xaionaro-go/avcompose/types"
	"github.com/xaionaro-go/xcontext"
)

// ErrNonSequentialChunk is returned by Drain when the container is written
// into a plain io.Writer but the muxer rewrote an earlier part of it.
type ErrNonSequentialChunk struct {
	Position int64
	Expected int64
}

func (e ErrNonSequentialChunk) Error() string {
	return fmt.Sprintf("chunk at position %d cannot be appended at %d; an io.WriterAt is required", e.Position, e.Expected)
}

// Drain pulls the file stage s until it closes, writing the chunks into w
// (with WriteAt if w is an io.WriterAt). It returns the number of bytes
// written. On failure the stage is cancelled.
func Drain(
	ctx context.Context,
	s *Stage,
	w io.Writer,
) (_ret int64, _err error) {
	logger.Debugf(ctx, "Drain[%s]", s)
	defer func() { logger.Debugf(ctx, "/Drain[%s]: %d, %v", s, _ret, _err) }()

	if s.StreamType != types.StreamTypeFile {
		return 0, fmt.Errorf("%s produces %s, not %s", s, s.StreamType, types.StreamTypeFile)
	}
	defer func() {
		if _err == nil {
			return
		}
		if err := s.Cancel(xcontext.DetachDone(ctx)); err != nil {
			logger.Errorf(ctx, "unable to cancel %s: %v", s, err)
		}
	}()

	writerAt, _ := w.(io.WriterAt)
	var written, end int64
	for {
		batch, err := s.Pull(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return written, nil
		default:
			return written, err
		}
		for _, item := range batch {
			v, err := item.Payload.TakeOwned()
			if err != nil {
				return written, malformed(item.StreamIndex, "%v", err)
			}
			chunk, ok := v.(*engine.FileChunk)
			if !ok {
				return written, malformed(item.StreamIndex, "expected *engine.FileChunk, got %T", v)
			}
			var n int
			if writerAt != nil {
				n, err = writerAt.WriteAt(chunk.Data, chunk.Position)
			} else {
				if chunk.Position != end {
					return written, ErrNonSequentialChunk{Position: chunk.Position, Expected: end}
				}
				n, err = w.Write(chunk.Data)
			}
			written += int64(n)
			end = max(end, chunk.Position+int64(n))
			if err != nil {
				return written, fmt.Errorf("unable to write %d bytes at %d: %w", len(chunk.Data), chunk.Position, err)
			}
		}
	}
}
