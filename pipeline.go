package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// PipelineState represents the state of a relay pipeline.
type PipelineState int

const (
	PipelineStateIdle    PipelineState = iota // Not started
	PipelineStateRunning                      // Relaying media
	PipelineStateStopped                      // Stopped
)

func (s PipelineState) String() string {
	switch s {
	case PipelineStateIdle:
		return "idle"
	case PipelineStateRunning:
		return "running"
	case PipelineStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VideoRelayStats provides video relay pipeline statistics.
type VideoRelayStats struct {
	FramesRead     uint64
	FramesRelayed  uint64
	FramesFiltered uint64
	Errors         uint64
}

// VideoRelayConfig configures a video relay pipeline.
type VideoRelayConfig struct {
	Source  FrameSource                     // Raw frame source
	Channel *MediaChannel                   // Output channel
	Filter  func(frame *RawVideoFrame) bool // Optional: relay only frames passing the filter
	OnError func(error)                     // Error callback
}

// VideoRelayPipeline pulls raw frames from a source and forwards them
// to the outbound channel: FrameSource -> filter -> MediaChannel.
// Every frame read is released in relayFrame regardless of exit path.
type VideoRelayPipeline struct {
	source  FrameSource
	channel *MediaChannel
	filter  func(*RawVideoFrame) bool

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats   VideoRelayStats
	statsMu sync.Mutex

	onError func(error)
	mu      sync.Mutex
}

// NewVideoRelayPipeline creates a new video relay pipeline.
func NewVideoRelayPipeline(config VideoRelayConfig) (*VideoRelayPipeline, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if config.Channel == nil {
		return nil, fmt.Errorf("channel is required")
	}

	p := &VideoRelayPipeline{
		source:  config.Source,
		channel: config.Channel,
		filter:  config.Filter,
		onError: config.OnError,
	}
	p.state.Store(int32(PipelineStateIdle))
	return p, nil
}

// Start starts the pipeline.
func (p *VideoRelayPipeline) Start() error {
	if PipelineState(p.state.Load()) == PipelineStateRunning {
		return fmt.Errorf("pipeline already running")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.state.Store(int32(PipelineStateRunning))

	if err := p.source.Start(p.ctx); err != nil {
		p.state.Store(int32(PipelineStateIdle))
		return fmt.Errorf("failed to start source: %w", err)
	}

	p.wg.Add(1)
	go p.processLoop()

	return nil
}

// Stop stops the pipeline. Safe to call when not running.
func (p *VideoRelayPipeline) Stop() error {
	if PipelineState(p.state.Load()) != PipelineStateRunning {
		return nil
	}

	p.state.Store(int32(PipelineStateStopped))
	p.cancel()
	p.wg.Wait()

	return p.source.Stop()
}

// Close stops the pipeline and releases the source.
func (p *VideoRelayPipeline) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	return p.source.Close()
}

// State returns the current pipeline state.
func (p *VideoRelayPipeline) State() PipelineState {
	return PipelineState(p.state.Load())
}

// Stats returns pipeline statistics.
func (p *VideoRelayPipeline) Stats() VideoRelayStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *VideoRelayPipeline) processLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		frame, err := p.source.ReadFrame(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil || errors.Is(err, ErrSourceEnded) {
				return
			}
			p.handleError(err)
			continue
		}
		if frame == nil {
			continue
		}

		p.relayFrame(frame)
	}
}

// relayFrame is the single place a frame is released: relayed,
// filtered and errored frames all exit through the deferred Release.
func (p *VideoRelayPipeline) relayFrame(frame *RawVideoFrame) {
	defer frame.Release()

	p.statsMu.Lock()
	p.stats.FramesRead++
	p.statsMu.Unlock()

	if p.filter != nil && !p.filter(frame) {
		p.statsMu.Lock()
		p.stats.FramesFiltered++
		p.statsMu.Unlock()
		return
	}

	if err := p.channel.SendVideoFrame(frame.TimestampMicros, frame.StreamID, frame.Width, frame.Height, frame.Data); err != nil {
		p.handleError(err)
		return
	}

	p.statsMu.Lock()
	p.stats.FramesRelayed++
	p.statsMu.Unlock()
}

func (p *VideoRelayPipeline) handleError(err error) {
	p.statsMu.Lock()
	p.stats.Errors++
	p.statsMu.Unlock()

	p.mu.Lock()
	cb := p.onError
	p.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

// AudioRelayStats provides audio relay pipeline statistics.
type AudioRelayStats struct {
	ChunksRead    uint64
	ChunksRelayed uint64
	Errors        uint64
}

// AudioRelayConfig configures an audio relay pipeline.
type AudioRelayConfig struct {
	Source  SampleSource  // Raw chunk source
	Channel *MediaChannel // Output channel
	OnError func(error)   // Error callback
}

// AudioRelayPipeline pulls audio chunks from a source and forwards
// them to the outbound channel. Chunks carrying a participant id go
// out as per-participant audio, the rest as mixed audio.
type AudioRelayPipeline struct {
	source  SampleSource
	channel *MediaChannel

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats   AudioRelayStats
	statsMu sync.Mutex

	onError func(error)
	mu      sync.Mutex
}

// NewAudioRelayPipeline creates a new audio relay pipeline.
func NewAudioRelayPipeline(config AudioRelayConfig) (*AudioRelayPipeline, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if config.Channel == nil {
		return nil, fmt.Errorf("channel is required")
	}

	p := &AudioRelayPipeline{
		source:  config.Source,
		channel: config.Channel,
		onError: config.OnError,
	}
	p.state.Store(int32(PipelineStateIdle))
	return p, nil
}

// Start starts the pipeline.
func (p *AudioRelayPipeline) Start() error {
	if PipelineState(p.state.Load()) == PipelineStateRunning {
		return fmt.Errorf("pipeline already running")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.state.Store(int32(PipelineStateRunning))

	if err := p.source.Start(p.ctx); err != nil {
		p.state.Store(int32(PipelineStateIdle))
		return fmt.Errorf("failed to start source: %w", err)
	}

	p.wg.Add(1)
	go p.processLoop()

	return nil
}

// Stop stops the pipeline. Safe to call when not running.
func (p *AudioRelayPipeline) Stop() error {
	if PipelineState(p.state.Load()) != PipelineStateRunning {
		return nil
	}

	p.state.Store(int32(PipelineStateStopped))
	p.cancel()
	p.wg.Wait()

	return p.source.Stop()
}

// Close stops the pipeline and releases the source.
func (p *AudioRelayPipeline) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	return p.source.Close()
}

// State returns the current pipeline state.
func (p *AudioRelayPipeline) State() PipelineState {
	return PipelineState(p.state.Load())
}

// Stats returns pipeline statistics.
func (p *AudioRelayPipeline) Stats() AudioRelayStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *AudioRelayPipeline) processLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		chunk, err := p.source.ReadChunk(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil || errors.Is(err, ErrSourceEnded) {
				return
			}
			p.handleError(err)
			continue
		}
		if chunk == nil {
			continue
		}

		p.relayChunk(chunk)
	}
}

func (p *AudioRelayPipeline) relayChunk(chunk *AudioChunk) {
	defer chunk.Release()

	p.statsMu.Lock()
	p.stats.ChunksRead++
	p.statsMu.Unlock()

	var err error
	if chunk.ParticipantID != "" {
		err = p.channel.SendPerParticipantAudio(chunk.ParticipantID, chunk.Samples)
	} else {
		err = p.channel.SendMixedAudio(chunk.Samples)
	}
	if err != nil {
		p.handleError(err)
		return
	}

	p.statsMu.Lock()
	p.stats.ChunksRelayed++
	p.statsMu.Unlock()
}

func (p *AudioRelayPipeline) handleError(err error) {
	p.statsMu.Lock()
	p.stats.Errors++
	p.statsMu.Unlock()

	p.mu.Lock()
	cb := p.onError
	p.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}
