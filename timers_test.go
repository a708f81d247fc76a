package bridge

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodicTaskTicks(t *testing.T) {
	var ticks atomic.Int64
	task := NewPeriodicTask("test", 5*time.Millisecond, zerolog.Nop(), func() {
		ticks.Add(1)
	})

	assert.False(t, task.Running())
	task.Start()
	assert.True(t, task.Running())

	waitFor(t, func() bool { return ticks.Load() >= 3 })

	task.Stop()
	assert.False(t, task.Running())

	// No ticks arrive after Stop returns.
	settled := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, ticks.Load())
}

func TestPeriodicTaskRestartReplacesTicker(t *testing.T) {
	var ticks atomic.Int64
	task := NewPeriodicTask("test", 5*time.Millisecond, zerolog.Nop(), func() {
		ticks.Add(1)
	})

	task.Start()
	task.Start()
	task.Start()
	defer task.Stop()

	// With a single live ticker, 50ms cannot produce the ~30 ticks three
	// stacked tickers would.
	time.Sleep(50 * time.Millisecond)
	assert.Less(t, ticks.Load(), int64(20))
}

func TestPeriodicTaskStopIdempotent(t *testing.T) {
	task := NewPeriodicTask("test", time.Millisecond, zerolog.Nop(), func() {})
	task.Stop()
	task.Start()
	task.Stop()
	task.Stop()
	assert.False(t, task.Running())
}

func TestSilenceCheckReportsStatus(t *testing.T) {
	sink := &mockSink{}
	ch := newTestChannel(t, sink)

	check := silenceCheck(ch, time.Minute)

	// Never any audio: silent.
	check()
	payloads := sink.jsonPayloads(t)
	require.Len(t, payloads, 1)
	assert.Equal(t, true, payloads[0]["isSilent"])

	// Recent activity: not silent.
	ch.MarkAudioActivity()
	check()
	payloads = sink.jsonPayloads(t)
	require.Len(t, payloads, 2)
	assert.Equal(t, false, payloads[1]["isSilent"])
}

func TestMemoryCheckThreshold(t *testing.T) {
	var reports []string
	report := func(format string, args ...any) {
		reports = append(reports, format)
	}

	// Threshold zero never reports.
	memoryCheck(zerolog.Nop(), 0, report)()
	assert.Empty(t, reports)

	// A one-byte threshold always trips.
	memoryCheck(zerolog.Nop(), 1, report)()
	require.Len(t, reports, 1)
}
