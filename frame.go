package bridge

import "sync"

// I420Size returns the buffer size of an I420 frame: a full-resolution
// Y plane plus quarter-resolution U and V planes.
func I420Size(width, height int) int {
	ySize := width * height
	uvSize := halfCeil(width) * halfCeil(height)
	return ySize + uvSize*2
}

func halfCeil(v int) int {
	return (v + 1) / 2
}

// RawVideoFrame is one raw planar I420 frame acquired from the
// transport. Frames may wrap externally owned buffers; Release must be
// called exactly once on every acquired frame, on every exit path,
// even when the frame is dropped.
type RawVideoFrame struct {
	Data            []byte
	Width           int32
	Height          int32
	StreamID        string
	TimestampMicros int64

	releaseOnce sync.Once
	release     func()
}

// NewRawVideoFrame wraps a frame buffer with its release hook. release
// may be nil for frames whose memory needs no explicit return.
func NewRawVideoFrame(data []byte, width, height int32, streamID string, timestampMicros int64, release func()) *RawVideoFrame {
	return &RawVideoFrame{
		Data:            data,
		Width:           width,
		Height:          height,
		StreamID:        streamID,
		TimestampMicros: timestampMicros,
		release:         release,
	}
}

// Release returns the frame's buffer to its owner. Safe to call more
// than once; only the first call runs the hook.
func (f *RawVideoFrame) Release() {
	f.releaseOnce.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}

// AudioChunk is a run of mono float32 PCM samples acquired from the
// transport. ParticipantID is empty for mixed audio.
type AudioChunk struct {
	Samples         []float32
	ParticipantID   string
	TimestampMicros int64

	releaseOnce sync.Once
	release     func()
}

// NewAudioChunk wraps a sample buffer with its release hook.
func NewAudioChunk(samples []float32, participantID string, timestampMicros int64, release func()) *AudioChunk {
	return &AudioChunk{
		Samples:         samples,
		ParticipantID:   participantID,
		TimestampMicros: timestampMicros,
		release:         release,
	}
}

// Release returns the chunk's buffer to its owner. Safe to call more
// than once.
func (c *AudioChunk) Release() {
	c.releaseOnce.Do(func() {
		if c.release != nil {
			c.release()
		}
	})
}
