package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestPatternSourceProducesI420Frames(t *testing.T) {
	source := NewTestPatternSource(TestPatternConfig{Width: 32, Height: 18, FPS: 200, StreamID: "pattern"})
	require.NoError(t, source.Start(context.Background()))

	frame, err := source.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(32), frame.Width)
	assert.Equal(t, int32(18), frame.Height)
	assert.Equal(t, "pattern", frame.StreamID)
	assert.Len(t, frame.Data, I420Size(32, 18))

	frame.Release()
	frame.Release() // second release is a no-op
	assert.Equal(t, int64(1), source.Produced())
	assert.Equal(t, int64(1), source.Released())

	require.NoError(t, source.Close())
	_, err = source.ReadFrame(context.Background())
	assert.ErrorIs(t, err, ErrSourceEnded)
}

func TestTestPatternSourceHonorsContext(t *testing.T) {
	source := NewTestPatternSource(TestPatternConfig{FPS: 1})
	require.NoError(t, source.Start(context.Background()))
	defer source.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := source.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToneSourceProducesChunks(t *testing.T) {
	source := NewToneSource(ToneSourceConfig{SampleRate: 8000, ChunkDuration: time.Millisecond, ParticipantID: "p1"})
	require.NoError(t, source.Start(context.Background()))

	chunk, err := source.ReadChunk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p1", chunk.ParticipantID)
	assert.Len(t, chunk.Samples, 8) // 8000 Hz for 1ms

	nonZero := false
	for _, s := range chunk.Samples {
		if s != 0 {
			nonZero = true
		}
		assert.LessOrEqual(t, s, float32(0.25))
		assert.GreaterOrEqual(t, s, float32(-0.25))
	}
	assert.True(t, nonZero)

	chunk.Release()
	assert.Equal(t, int64(1), source.Released())

	require.NoError(t, source.Close())
	_, err = source.ReadChunk(context.Background())
	assert.ErrorIs(t, err, ErrSourceEnded)
}

func TestI420Size(t *testing.T) {
	assert.Equal(t, 6, I420Size(2, 2))
	assert.Equal(t, 1280*720*3/2, I420Size(1280, 720))
	// Odd dimensions round the chroma planes up.
	assert.Equal(t, 3*3+2*2*2, I420Size(3, 3))
}
