package bridge

import (
	"context"
	"errors"
	"io"
)

// ErrSourceEnded is returned by sources when the underlying media
// track has ended and no further frames will be produced.
var ErrSourceEnded = errors.New("source ended")

// FrameSource produces raw video frames pulled by a relay pipeline.
// Implementations sit between the transport's per-frame callbacks and
// the pipeline; ReadFrame blocks until a frame is available, the
// context is cancelled or the source ends.
type FrameSource interface {
	io.Closer

	// Start begins producing frames.
	Start(ctx context.Context) error

	// Stop halts production. Frames still queued may be read.
	Stop() error

	// ReadFrame reads the next frame (blocking). The caller owns the
	// returned frame and must Release it.
	ReadFrame(ctx context.Context) (*RawVideoFrame, error)
}

// SampleSource produces audio chunks pulled by a relay pipeline.
type SampleSource interface {
	io.Closer

	// Start begins producing chunks.
	Start(ctx context.Context) error

	// Stop halts production.
	Stop() error

	// ReadChunk reads the next chunk (blocking). The caller owns the
	// returned chunk and must Release it.
	ReadChunk(ctx context.Context) (*AudioChunk, error)
}
