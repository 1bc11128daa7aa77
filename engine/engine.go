// Package engine declares the codec engine and the codec bridge the stage
// builders delegate all bitstream and pixel/sample work to.
package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/xaionaro-go/avcompose/types"
)

// Handle is an engine-owned frame or packet. It is valid until it is freed
// through the engine that allocated it.
type Handle uint64

// InvalidHandle is never returned by a functioning engine.
const InvalidHandle = Handle(0)

func (h Handle) String() string {
	return fmt.Sprintf("handle#%d", uint64(h))
}

// StreamHandle is a packet handle tagged with the logical stream it belongs to.
type StreamHandle struct {
	StreamIndex int
	Handle      Handle
}

// FrameHandles is the part of the engine that manages native frame handles.
type FrameHandles interface {
	AllocFrame(ctx context.Context) (Handle, error)
	FreeFrame(ctx context.Context, h Handle) error

	// CopyInFrame replaces the content of the handle with a copy of the frame.
	CopyInFrame(ctx context.Context, h Handle, f *Frame) error

	// CopyOutFrame returns a self-contained copy of the handle's content.
	CopyOutFrame(ctx context.Context, h Handle) (*Frame, error)
}

// PacketHandles is the part of the engine that manages native packet handles.
type PacketHandles interface {
	AllocPacket(ctx context.Context) (Handle, error)
	FreePacket(ctx context.Context, h Handle) error
	CopyInPacket(ctx context.Context, h Handle, p *Packet) error
	CopyOutPacket(ctx context.Context, h Handle) (*Packet, error)
}

// Engine is the external media codec engine.
type Engine interface {
	FrameHandles
	PacketHandles

	OpenDemuxer(ctx context.Context, r io.Reader, format string) (Demuxer, error)
	NewDecoder(ctx context.Context, params types.StreamParameters) (Decoder, error)
	NewEncoder(ctx context.Context, cfg EncoderConfig) (Encoder, error)
	NewMuxer(ctx context.Context, format string, w io.WriteSeeker, streams []types.StreamParameters) (Muxer, error)
}

// Demuxer splits a container into packets.
type Demuxer interface {
	Streams(ctx context.Context) ([]types.StreamParameters, error)

	// ReadPackets returns the next group of packets, or io.EOF when the
	// container is exhausted. The caller owns the returned handles.
	ReadPackets(ctx context.Context) ([]StreamHandle, error)

	Close(ctx context.Context) error
}

// Decoder decodes the packets of one logical stream. It never takes
// ownership of its input; the caller owns every returned frame.
type Decoder interface {
	Decode(ctx context.Context, packet Handle) ([]Handle, error)

	// Flush drains the frames buffered inside the decoder.
	Flush(ctx context.Context) ([]Handle, error)

	Close(ctx context.Context) error
}

// EncoderConfig is the input of Engine.NewEncoder: the configuration
// requested by the caller plus the parameters of the stream being encoded.
type EncoderConfig struct {
	Input types.StreamParameters
	Video *types.VideoEncoderConfig
	Audio *types.AudioEncoderConfig
}

// Encoder encodes the frames of one logical stream. It never takes
// ownership of its input; the caller owns every returned packet.
type Encoder interface {
	OutputParameters(ctx context.Context) (types.StreamParameters, error)
	Encode(ctx context.Context, frame Handle) ([]Handle, error)
	Flush(ctx context.Context) ([]Handle, error)
	Close(ctx context.Context) error
}

// Muxer interleaves packets into a container written to the io.WriteSeeker
// given to Engine.NewMuxer. It never takes ownership of its input.
type Muxer interface {
	WritePacket(ctx context.Context, streamIndex int, packet Handle) error

	// Finish writes the trailer; no packets may be written afterwards.
	Finish(ctx context.Context) error

	Close(ctx context.Context) error
}

// Bridge converts between platform-native frame objects and the engine's
// frame representation.
type Bridge interface {
	VideoFrameToEngine(ctx context.Context, f *VideoFrame) (*Frame, error)
	AudioDataToEngine(ctx context.Context, a *AudioData) (*Frame, error)
	EngineToVideoFrame(ctx context.Context, f *Frame) (*VideoFrame, error)
	EngineToAudioData(ctx context.Context, f *Frame) (*AudioData, error)
}
