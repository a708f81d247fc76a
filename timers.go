package bridge

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PeriodicTask runs a function on a fixed interval. Tasks are
// individually startable and stoppable; starting a running task first
// stops the previous ticker so duplicates never accumulate, and Stop
// is idempotent.
type PeriodicTask struct {
	name     string
	interval time.Duration
	fn       func()
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPeriodicTask creates a stopped task.
func NewPeriodicTask(name string, interval time.Duration, log zerolog.Logger, fn func()) *PeriodicTask {
	return &PeriodicTask{
		name:     name,
		interval: interval,
		fn:       fn,
		log:      log,
	}
}

// Start begins ticking. A previously running ticker of this task is
// stopped first. A task without a positive interval never starts.
func (t *PeriodicTask) Start() {
	t.Stop()

	if t.interval <= 0 {
		return
	}

	t.mu.Lock()
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wg.Add(1)
	t.mu.Unlock()

	t.log.Debug().Str("task", t.name).Dur("interval", t.interval).Msg("periodic task started")

	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.fn()
			}
		}
	}()
}

// Stop halts the task. Safe to call when not running.
func (t *PeriodicTask) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	t.wg.Wait()
	t.log.Debug().Str("task", t.name).Msg("periodic task stopped")
}

// Running reports whether the task is currently ticking.
func (t *PeriodicTask) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// silenceCheck reports audio activity over the channel: one
// SilenceStatus per tick, silent when no non-zero audio was observed
// within the window.
func silenceCheck(channel *MediaChannel, window time.Duration) func() {
	return func() {
		last := channel.LastAudioActivity()
		silent := last.IsZero() || time.Since(last) > window
		_ = channel.SendControl(SilenceStatus{IsSilent: silent})
	}
}

// memoryCheck samples heap usage and reports a diagnostic when it
// crosses the threshold. Threshold zero logs only.
func memoryCheck(log zerolog.Logger, thresholdBytes uint64, report func(format string, args ...any)) func() {
	return func() {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		log.Debug().Uint64("heap_alloc", ms.HeapAlloc).Uint64("sys", ms.Sys).Msg("memory check")
		if thresholdBytes > 0 && ms.HeapAlloc > thresholdBytes {
			report("memory usage high: heap_alloc=%d threshold=%d", ms.HeapAlloc, thresholdBytes)
		}
	}
}
