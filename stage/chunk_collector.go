package stage

import (
	"errors"
	"fmt"
	"io"

	"github.com/xaionaro-go/avcompose/engine"
)

// chunkCollector is the io.WriteSeeker the muxer writes the container into.
// Writes are collected as position-tagged chunks until drained; contiguous
// writes are merged.
type chunkCollector struct {
	position int64
	size     int64
	chunks   []*engine.FileChunk
}

var _ io.WriteSeeker = (*chunkCollector)(nil)

func (c *chunkCollector) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if n := len(c.chunks); n > 0 {
		last := c.chunks[n-1]
		if last.Position+int64(len(last.Data)) == c.position {
			last.Data = append(last.Data, b...)
			c.advance(len(b))
			return len(b), nil
		}
	}
	c.chunks = append(c.chunks, &engine.FileChunk{
		Position: c.position,
		Data:     append([]byte(nil), b...),
	})
	c.advance(len(b))
	return len(b), nil
}

func (c *chunkCollector) advance(n int) {
	c.position += int64(n)
	c.size = max(c.size, c.position)
}

func (c *chunkCollector) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = c.position
	case io.SeekEnd:
		base = c.size
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if base+offset < 0 {
		return 0, errors.New("negative position")
	}
	c.position = base + offset
	return c.position, nil
}

// drain returns the chunks written since the previous call.
func (c *chunkCollector) drain() []*engine.FileChunk {
	result := c.chunks
	c.chunks = nil
	return result
}
