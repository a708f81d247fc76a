package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFrameSource hands out a fixed set of frames then reports the
// source as ended.
type mockFrameSource struct {
	frames   chan *RawVideoFrame
	started  atomic.Bool
	stopped  atomic.Bool
	closed   atomic.Bool
	released atomic.Int64
}

func newMockFrameSource(n int) *mockFrameSource {
	s := &mockFrameSource{frames: make(chan *RawVideoFrame, n)}
	for i := 0; i < n; i++ {
		data := make([]byte, I420Size(4, 4))
		s.frames <- NewRawVideoFrame(data, 4, 4, "stream-1", int64(i)*33000, func() {
			s.released.Add(1)
		})
	}
	close(s.frames)
	return s
}

func (s *mockFrameSource) Start(context.Context) error { s.started.Store(true); return nil }
func (s *mockFrameSource) Stop() error                 { s.stopped.Store(true); return nil }
func (s *mockFrameSource) Close() error                { s.closed.Store(true); return nil }

func (s *mockFrameSource) ReadFrame(ctx context.Context) (*RawVideoFrame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-s.frames:
		if !ok {
			return nil, ErrSourceEnded
		}
		return frame, nil
	}
}

// mockSampleSource is the audio analog of mockFrameSource.
type mockSampleSource struct {
	chunks   chan *AudioChunk
	released atomic.Int64
}

func newMockSampleSource(chunks ...*AudioChunk) *mockSampleSource {
	s := &mockSampleSource{chunks: make(chan *AudioChunk, len(chunks))}
	for _, c := range chunks {
		s.chunks <- c
	}
	close(s.chunks)
	return s
}

func (s *mockSampleSource) Start(context.Context) error { return nil }
func (s *mockSampleSource) Stop() error                 { return nil }
func (s *mockSampleSource) Close() error                { return nil }

func (s *mockSampleSource) ReadChunk(ctx context.Context) (*AudioChunk, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case chunk, ok := <-s.chunks:
		if !ok {
			return nil, ErrSourceEnded
		}
		return chunk, nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestVideoRelayReleasesEveryFrame(t *testing.T) {
	sink := &mockSink{}
	ch := newTestChannel(t, sink)
	ch.EnableMediaSending()

	source := newMockFrameSource(5)
	pipe, err := NewVideoRelayPipeline(VideoRelayConfig{Source: source, Channel: ch})
	require.NoError(t, err)

	require.NoError(t, pipe.Start())
	assert.Equal(t, PipelineStateRunning, pipe.State())
	assert.Error(t, pipe.Start())

	waitFor(t, func() bool { return source.released.Load() == 5 })
	require.NoError(t, pipe.Close())

	stats := pipe.Stats()
	assert.Equal(t, uint64(5), stats.FramesRead)
	assert.Equal(t, uint64(5), stats.FramesRelayed)
	assert.Equal(t, uint64(5), ch.Stats().VideoSent)
	assert.True(t, source.stopped.Load())
	assert.True(t, source.closed.Load())
	assert.Equal(t, PipelineStateStopped, pipe.State())
}

func TestVideoRelayFilteredFramesReleased(t *testing.T) {
	sink := &mockSink{}
	ch := newTestChannel(t, sink)
	ch.EnableMediaSending()

	source := newMockFrameSource(4)
	var n atomic.Int64
	pipe, err := NewVideoRelayPipeline(VideoRelayConfig{
		Source:  source,
		Channel: ch,
		Filter:  func(*RawVideoFrame) bool { return n.Add(1)%2 == 0 },
	})
	require.NoError(t, err)

	require.NoError(t, pipe.Start())
	waitFor(t, func() bool { return source.released.Load() == 4 })
	require.NoError(t, pipe.Close())

	stats := pipe.Stats()
	assert.Equal(t, uint64(4), stats.FramesRead)
	assert.Equal(t, uint64(2), stats.FramesFiltered)
	assert.Equal(t, uint64(2), stats.FramesRelayed)
}

func TestVideoRelayGateClosedStillReleases(t *testing.T) {
	sink := &mockSink{}
	ch := newTestChannel(t, sink) // media sending never enabled

	source := newMockFrameSource(3)
	pipe, err := NewVideoRelayPipeline(VideoRelayConfig{Source: source, Channel: ch})
	require.NoError(t, err)

	require.NoError(t, pipe.Start())
	waitFor(t, func() bool { return source.released.Load() == 3 })
	require.NoError(t, pipe.Close())

	assert.Empty(t, sink.messages())
	assert.Equal(t, uint64(3), ch.Stats().GatedDrops)
}

func TestVideoRelayStopIdempotent(t *testing.T) {
	sink := &mockSink{}
	ch := newTestChannel(t, sink)

	pipe, err := NewVideoRelayPipeline(VideoRelayConfig{Source: newMockFrameSource(0), Channel: ch})
	require.NoError(t, err)

	assert.Equal(t, PipelineStateIdle, pipe.State())
	require.NoError(t, pipe.Stop()) // not running
	require.NoError(t, pipe.Start())
	require.NoError(t, pipe.Stop())
	require.NoError(t, pipe.Stop())
}

func TestVideoRelayConfigValidation(t *testing.T) {
	sink := &mockSink{}
	ch := newTestChannel(t, sink)

	_, err := NewVideoRelayPipeline(VideoRelayConfig{Channel: ch})
	assert.Error(t, err)
	_, err = NewVideoRelayPipeline(VideoRelayConfig{Source: newMockFrameSource(0)})
	assert.Error(t, err)
	_, err = NewAudioRelayPipeline(AudioRelayConfig{Channel: ch})
	assert.Error(t, err)
	_, err = NewAudioRelayPipeline(AudioRelayConfig{Source: newMockSampleSource()})
	assert.Error(t, err)
}

func TestAudioRelayRoutesByParticipant(t *testing.T) {
	sink := &mockSink{}
	ch := newTestChannel(t, sink)
	ch.EnableMediaSending()

	source := &mockSampleSource{chunks: make(chan *AudioChunk, 2)}
	source.chunks <- NewAudioChunk([]float32{0.1, 0.2}, "", 0, func() { source.released.Add(1) })
	source.chunks <- NewAudioChunk([]float32{0.3}, "device-7", 20000, func() { source.released.Add(1) })
	close(source.chunks)

	pipe, err := NewAudioRelayPipeline(AudioRelayConfig{Source: source, Channel: ch})
	require.NoError(t, err)

	require.NoError(t, pipe.Start())
	waitFor(t, func() bool { return source.released.Load() == 2 })
	require.NoError(t, pipe.Close())

	stats := pipe.Stats()
	assert.Equal(t, uint64(2), stats.ChunksRead)
	assert.Equal(t, uint64(2), stats.ChunksRelayed)

	chStats := ch.Stats()
	assert.Equal(t, uint64(1), chStats.AudioSent)
	assert.Equal(t, uint64(1), chStats.PerParticipantSent)
}

// errFrameSource fails every read until the context is cancelled.
type errFrameSource struct {
	reads atomic.Int64
}

func (s *errFrameSource) Start(context.Context) error { return nil }
func (s *errFrameSource) Stop() error                 { return nil }
func (s *errFrameSource) Close() error                { return nil }

func (s *errFrameSource) ReadFrame(ctx context.Context) (*RawVideoFrame, error) {
	if s.reads.Add(1) > 3 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, errors.New("decode failure")
}

func TestVideoRelayReportsSourceErrors(t *testing.T) {
	sink := &mockSink{}
	ch := newTestChannel(t, sink)

	var mu sync.Mutex
	var reported []error
	pipe, err := NewVideoRelayPipeline(VideoRelayConfig{
		Source:  &errFrameSource{},
		Channel: ch,
		OnError: func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	require.NoError(t, pipe.Start())
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) == 3
	})
	require.NoError(t, pipe.Close())

	assert.Equal(t, uint64(3), pipe.Stats().Errors)
}
