// Package enginetest provides an in-memory engine and bridge that account
// for every handle and call, for testing stages without libav.
//
// The fake container format is line-based: the first line lists the media
// types of the logical streams ("video,audio"), every further line is one
// packet: "<streamIndex> <data>".
package enginetest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/xaionaro-go/avcompose/engine"
	"github.com/xaionaro-go/avcompose/types"
	"github.com/xaionaro-go/xsync"
)

type handleEntry struct {
	isFrame bool
	frame   engine.Frame
	packet  engine.Packet
}

type Engine struct {
	locker  xsync.Mutex
	nextID  engine.Handle
	handles map[engine.Handle]*handleEntry
	calls   map[string]int

	// FailOn makes the named operation ("decode", "encode", "mux", "demux",
	// "copy-in-frame", ...) return the error.
	FailOn map[string]error

	// BlockOn makes the named operation wait until its context is done.
	BlockOn map[string]bool

	// PacketsPerRead is how many packets a demuxer returns per ReadPackets.
	PacketsPerRead int

	// FlushFrames is how many extra frames a decoder emits on Flush.
	FlushFrames int
}

var _ engine.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{
		nextID:         1,
		handles:        map[engine.Handle]*handleEntry{},
		calls:          map[string]int{},
		FailOn:         map[string]error{},
		BlockOn:        map[string]bool{},
		PacketsPerRead: 1,
	}
}

// Calls returns how many times the named operation was invoked.
func (e *Engine) Calls(op string) int {
	return xsync.DoR1(context.Background(), &e.locker, func() int {
		return e.calls[op]
	})
}

// TotalCalls returns the number of engine invocations of any kind.
func (e *Engine) TotalCalls() int {
	return xsync.DoR1(context.Background(), &e.locker, func() int {
		total := 0
		for _, n := range e.calls {
			total += n
		}
		return total
	})
}

// LiveHandles returns the handles allocated and not yet freed.
func (e *Engine) LiveHandles() []engine.Handle {
	return xsync.DoR1(context.Background(), &e.locker, func() []engine.Handle {
		result := make([]engine.Handle, 0, len(e.handles))
		for h := range e.handles {
			result = append(result, h)
		}
		sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
		return result
	})
}

func (e *Engine) enter(ctx context.Context, op string) error {
	var (
		err   error
		block bool
	)
	e.locker.Do(ctx, func() {
		e.calls[op]++
		err = e.FailOn[op]
		block = e.BlockOn[op]
	})
	if err != nil {
		return err
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (e *Engine) alloc(ctx context.Context, entry *handleEntry) engine.Handle {
	return xsync.DoR1(ctx, &e.locker, func() engine.Handle {
		h := e.nextID
		e.nextID++
		e.handles[h] = entry
		return h
	})
}

func (e *Engine) get(ctx context.Context, h engine.Handle, isFrame bool) (*handleEntry, error) {
	var entry *handleEntry
	e.locker.Do(ctx, func() {
		entry = e.handles[h]
	})
	if entry == nil {
		return nil, fmt.Errorf("%s is not allocated", h)
	}
	if entry.isFrame != isFrame {
		return nil, fmt.Errorf("%s has a wrong kind", h)
	}
	return entry, nil
}

func (e *Engine) free(ctx context.Context, op string, h engine.Handle, isFrame bool) error {
	if err := e.enter(ctx, op); err != nil {
		return err
	}
	if _, err := e.get(ctx, h, isFrame); err != nil {
		return fmt.Errorf("double free or invalid handle: %w", err)
	}
	e.locker.Do(ctx, func() {
		delete(e.handles, h)
	})
	return nil
}

func (e *Engine) AllocFrame(ctx context.Context) (engine.Handle, error) {
	if err := e.enter(ctx, "alloc-frame"); err != nil {
		return engine.InvalidHandle, err
	}
	return e.alloc(ctx, &handleEntry{isFrame: true}), nil
}

func (e *Engine) FreeFrame(ctx context.Context, h engine.Handle) error {
	return e.free(ctx, "free-frame", h, true)
}

func (e *Engine) CopyInFrame(ctx context.Context, h engine.Handle, f *engine.Frame) error {
	if err := e.enter(ctx, "copy-in-frame"); err != nil {
		return err
	}
	entry, err := e.get(ctx, h, true)
	if err != nil {
		return err
	}
	entry.frame = *f
	entry.frame.Data = bytes.Clone(f.Data)
	return nil
}

func (e *Engine) CopyOutFrame(ctx context.Context, h engine.Handle) (*engine.Frame, error) {
	if err := e.enter(ctx, "copy-out-frame"); err != nil {
		return nil, err
	}
	entry, err := e.get(ctx, h, true)
	if err != nil {
		return nil, err
	}
	f := entry.frame
	f.Data = bytes.Clone(f.Data)
	return &f, nil
}

func (e *Engine) AllocPacket(ctx context.Context) (engine.Handle, error) {
	if err := e.enter(ctx, "alloc-packet"); err != nil {
		return engine.InvalidHandle, err
	}
	return e.alloc(ctx, &handleEntry{}), nil
}

func (e *Engine) FreePacket(ctx context.Context, h engine.Handle) error {
	return e.free(ctx, "free-packet", h, false)
}

func (e *Engine) CopyInPacket(ctx context.Context, h engine.Handle, p *engine.Packet) error {
	if err := e.enter(ctx, "copy-in-packet"); err != nil {
		return err
	}
	entry, err := e.get(ctx, h, false)
	if err != nil {
		return err
	}
	entry.packet = *p
	entry.packet.Data = bytes.Clone(p.Data)
	return nil
}

func (e *Engine) CopyOutPacket(ctx context.Context, h engine.Handle) (*engine.Packet, error) {
	if err := e.enter(ctx, "copy-out-packet"); err != nil {
		return nil, err
	}
	entry, err := e.get(ctx, h, false)
	if err != nil {
		return nil, err
	}
	p := entry.packet
	p.Data = bytes.Clone(p.Data)
	return &p, nil
}

// newPacket allocates a packet handle holding p, bypassing call accounting
// of the individual steps.
func (e *Engine) newPacket(ctx context.Context, p engine.Packet) engine.Handle {
	return e.alloc(ctx, &handleEntry{packet: p})
}

func (e *Engine) newFrame(ctx context.Context, f engine.Frame) engine.Handle {
	return e.alloc(ctx, &handleEntry{isFrame: true, frame: f})
}

// The frame size of the video streams of the fake container format.
const (
	VideoWidth  = 320
	VideoHeight = 240
)

// FormatContainer renders packets in the fake container format.
func FormatContainer(mediaTypes []types.MediaType, packets ...engine.Packet) []byte {
	var buf bytes.Buffer
	names := make([]string, 0, len(mediaTypes))
	for _, t := range mediaTypes {
		names = append(names, t.String())
	}
	fmt.Fprintln(&buf, strings.Join(names, ","))
	for _, p := range packets {
		fmt.Fprintf(&buf, "%d %s\n", p.StreamIndex, p.Data)
	}
	return buf.Bytes()
}

type demuxer struct {
	engine  *Engine
	streams []types.StreamParameters
	scanner *bufio.Scanner
	pts     map[int]int64
}

func (e *Engine) OpenDemuxer(ctx context.Context, r io.Reader, format string) (engine.Demuxer, error) {
	if err := e.enter(ctx, "open-demuxer"); err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return nil, fmt.Errorf("no header: %v", scanner.Err())
	}
	d := &demuxer{
		engine:  e,
		scanner: scanner,
		pts:     map[int]int64{},
	}
	for _, name := range strings.Split(scanner.Text(), ",") {
		mediaType, err := types.MediaTypeFromString(strings.TrimSpace(name))
		if err != nil {
			return nil, fmt.Errorf("invalid header: %w", err)
		}
		params := types.StreamParameters{
			CodecName: "fake",
			CodecID:   1,
			MediaType: mediaType,
			TimeBase:  types.Rational{Num: 1, Den: 1000},
		}
		if mediaType == types.MediaTypeVideo {
			params.Width, params.Height = VideoWidth, VideoHeight
		}
		d.streams = append(d.streams, params)
	}
	return d, nil
}

func (d *demuxer) Streams(ctx context.Context) ([]types.StreamParameters, error) {
	return d.streams, nil
}

func (d *demuxer) ReadPackets(ctx context.Context) ([]engine.StreamHandle, error) {
	if err := d.engine.enter(ctx, "demux"); err != nil {
		return nil, err
	}
	var result []engine.StreamHandle
	for len(result) < d.engine.PacketsPerRead && d.scanner.Scan() {
		idxStr, data, _ := strings.Cut(d.scanner.Text(), " ")
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 || idx >= len(d.streams) {
			for _, sh := range result {
				d.engine.FreePacket(ctx, sh.Handle)
			}
			return nil, fmt.Errorf("invalid packet line %q", d.scanner.Text())
		}
		pts := d.pts[idx]
		d.pts[idx]++
		h := d.engine.newPacket(ctx, engine.Packet{
			StreamIndex: idx,
			Data:        []byte(data),
			Pts:         pts,
			Dts:         pts,
			Duration:    1,
			TimeBase:    d.streams[idx].TimeBase,
			KeyFrame:    true,
		})
		result = append(result, engine.StreamHandle{StreamIndex: idx, Handle: h})
	}
	if len(result) == 0 {
		return nil, io.EOF
	}
	return result, nil
}

func (d *demuxer) Close(ctx context.Context) error {
	d.engine.enter(ctx, "close-demuxer")
	return nil
}
