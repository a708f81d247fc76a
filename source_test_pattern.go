package bridge

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// TestPatternConfig configures a synthetic video source.
type TestPatternConfig struct {
	Width    int    // Frame width (default 640)
	Height   int    // Frame height (default 360)
	FPS      int    // Frames per second (default 30)
	StreamID string // Stream id stamped on produced frames
}

func (c TestPatternConfig) withDefaults() TestPatternConfig {
	if c.Width <= 0 {
		c.Width = 640
	}
	if c.Height <= 0 {
		c.Height = 360
	}
	if c.FPS <= 0 {
		c.FPS = 30
	}
	return c
}

// TestPatternSource is a synthetic FrameSource producing I420 frames
// with a moving box, paced at the configured frame rate. Frame buffers
// come from a pool and are returned by the frame's Release hook, so
// tests can verify every acquired frame is released.
type TestPatternSource struct {
	cfg TestPatternConfig

	running    atomic.Bool
	frameIndex atomic.Int64
	released   atomic.Int64

	pool      sync.Pool
	startedAt time.Time
	mu        sync.Mutex
}

// NewTestPatternSource creates a stopped synthetic source.
func NewTestPatternSource(config TestPatternConfig) *TestPatternSource {
	cfg := config.withDefaults()
	s := &TestPatternSource{cfg: cfg}
	size := I420Size(cfg.Width, cfg.Height)
	s.pool.New = func() any {
		return make([]byte, size)
	}
	return s
}

// Start begins producing frames.
func (s *TestPatternSource) Start(_ context.Context) error {
	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()
	s.running.Store(true)
	return nil
}

// Stop halts production.
func (s *TestPatternSource) Stop() error {
	s.running.Store(false)
	return nil
}

// Close halts production and drops pooled buffers.
func (s *TestPatternSource) Close() error {
	return s.Stop()
}

// ReadFrame blocks until the next frame interval and returns a
// generated frame. The caller must Release it.
func (s *TestPatternSource) ReadFrame(ctx context.Context) (*RawVideoFrame, error) {
	if !s.running.Load() {
		return nil, ErrSourceEnded
	}

	interval := time.Second / time.Duration(s.cfg.FPS)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(interval):
	}
	if !s.running.Load() {
		return nil, ErrSourceEnded
	}

	idx := s.frameIndex.Add(1)
	buf := s.pool.Get().([]byte)
	s.fillI420(buf, int(idx))

	s.mu.Lock()
	elapsed := time.Since(s.startedAt)
	s.mu.Unlock()

	frame := NewRawVideoFrame(buf, int32(s.cfg.Width), int32(s.cfg.Height), s.cfg.StreamID, elapsed.Microseconds(), func() {
		s.released.Add(1)
		s.pool.Put(buf)
	})
	return frame, nil
}

// Produced returns how many frames were generated.
func (s *TestPatternSource) Produced() int64 {
	return s.frameIndex.Load()
}

// Released returns how many frame buffers were returned.
func (s *TestPatternSource) Released() int64 {
	return s.released.Load()
}

// fillI420 renders a gray background with a white box sweeping across
// the luma plane; chroma stays neutral.
func (s *TestPatternSource) fillI420(buf []byte, frameIndex int) {
	w, h := s.cfg.Width, s.cfg.Height
	ySize := w * h

	for i := 0; i < ySize; i++ {
		buf[i] = 0x80
	}
	for i := ySize; i < len(buf); i++ {
		buf[i] = 0x80
	}

	boxSize := h / 4
	if boxSize < 8 {
		boxSize = 8
	}
	x0 := (frameIndex * 4) % (w - boxSize)
	y0 := (h - boxSize) / 2
	for y := y0; y < y0+boxSize; y++ {
		row := y * w
		for x := x0; x < x0+boxSize; x++ {
			buf[row+x] = 0xEB
		}
	}
}

// ToneSourceConfig configures a synthetic audio source.
type ToneSourceConfig struct {
	SampleRate    int           // default 48000
	Frequency     float64       // default 440 Hz
	ChunkDuration time.Duration // default 20ms
	ParticipantID string        // empty produces mixed-audio chunks
}

func (c ToneSourceConfig) withDefaults() ToneSourceConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.Frequency <= 0 {
		c.Frequency = 440
	}
	if c.ChunkDuration <= 0 {
		c.ChunkDuration = 20 * time.Millisecond
	}
	return c
}

// ToneSource is a synthetic SampleSource producing a sine tone in
// fixed-duration chunks.
type ToneSource struct {
	cfg ToneSourceConfig

	running  atomic.Bool
	phase    float64
	phaseMu  sync.Mutex
	produced atomic.Int64
	released atomic.Int64
}

// NewToneSource creates a stopped tone source.
func NewToneSource(config ToneSourceConfig) *ToneSource {
	return &ToneSource{cfg: config.withDefaults()}
}

// Start begins producing chunks.
func (s *ToneSource) Start(_ context.Context) error {
	s.running.Store(true)
	return nil
}

// Stop halts production.
func (s *ToneSource) Stop() error {
	s.running.Store(false)
	return nil
}

// Close halts production.
func (s *ToneSource) Close() error {
	return s.Stop()
}

// ReadChunk blocks for one chunk duration and returns the next run of
// samples. The caller must Release it.
func (s *ToneSource) ReadChunk(ctx context.Context) (*AudioChunk, error) {
	if !s.running.Load() {
		return nil, ErrSourceEnded
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.cfg.ChunkDuration):
	}
	if !s.running.Load() {
		return nil, ErrSourceEnded
	}

	n := int(float64(s.cfg.SampleRate) * s.cfg.ChunkDuration.Seconds())
	samples := make([]float32, n)
	step := 2 * math.Pi * s.cfg.Frequency / float64(s.cfg.SampleRate)

	s.phaseMu.Lock()
	phase := s.phase
	for i := range samples {
		samples[i] = float32(0.25 * math.Sin(phase))
		phase += step
	}
	s.phase = math.Mod(phase, 2*math.Pi)
	s.phaseMu.Unlock()

	idx := s.produced.Add(1)
	chunk := NewAudioChunk(samples, s.cfg.ParticipantID, idx*s.cfg.ChunkDuration.Microseconds(), func() {
		s.released.Add(1)
	})
	return chunk, nil
}

// Produced returns how many chunks were generated.
func (s *ToneSource) Produced() int64 {
	return s.produced.Load()
}

// Released returns how many chunks were released.
func (s *ToneSource) Released() int64 {
	return s.released.Load()
}
