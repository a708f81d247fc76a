package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Data channel labels the platform multiplexes collection traffic on,
// mapped to the schema used to decode their binary payloads.
var labelSchemas = map[string]string{
	"collections": MsgSpaceCollections,
	"captions":    MsgCaptionWrapper,
	"messages":    MsgChatMessageWrapper,
}

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	Config   Config
	Logger   zerolog.Logger
	Sink     ChannelSink
	UIProber UIProber // optional; enables the needed-interaction check

	// Optional relay sources. When nil the corresponding pipeline is
	// not constructed.
	FrameSource FrameSource
	AudioSource SampleSource

	// FlushGrace overrides the disable grace delay. Zero keeps the
	// default.
	FlushGrace time.Duration
}

// Bridge is the composition root: it constructs and owns every state
// object and wires transport events through the decoder, the stores
// and the outbound channel. No package-level state exists; everything
// lives here and is passed by reference.
type Bridge struct {
	log       zerolog.Logger
	cfg       Config
	sessionID string

	registry   *SchemaRegistry
	store      *ParticipantStore
	tracks     *TrackStore
	attributor *SpeakerAttributor
	captions   *CaptionStore
	chatLog    *ChatLog
	channel    *MediaChannel

	silenceTask *PeriodicTask
	memoryTask  *PeriodicTask
	uiTask      *PeriodicTask

	videoPipeline *VideoRelayPipeline
	audioPipeline *AudioRelayPipeline

	mu        sync.Mutex
	chatReady bool
	tornDown  bool
}

var _ TransportObserver = (*Bridge)(nil)

// NewBridge constructs a fully wired bridge around the given sink.
func NewBridge(config BridgeConfig) (*Bridge, error) {
	if config.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}

	b := &Bridge{
		cfg:       config.Config,
		sessionID: uuid.NewString(),
	}
	b.log = config.Logger.With().Str("session_id", b.sessionID).Logger()

	registry, err := NewMeetSchemaRegistry()
	if err != nil {
		return nil, fmt.Errorf("schema registry: %w", err)
	}
	b.registry = registry

	b.channel, err = NewMediaChannel(MediaChannelConfig{
		Logger:                      b.log,
		Sink:                        config.Sink,
		Audio:                       config.Config.AudioFormat(),
		FlushGrace:                  config.FlushGrace,
		MixedAudioDisabled:          !config.Config.SendMixedAudio,
		PerParticipantAudioDisabled: !config.Config.SendPerParticipantAudio,
		OnEnabled:                   b.onMediaEnabled,
		OnDisabled:                  b.onMediaDisabled,
		OnInboundJSON:               b.handleInboundJSON,
	})
	if err != nil {
		return nil, err
	}

	b.store = NewParticipantStore(ParticipantStoreConfig{
		Logger:          b.log,
		OnRosterUpdate:  b.handleRosterUpdate,
		OnDeviceOutputs: b.handleDeviceOutputs,
	})
	b.tracks = NewTrackStore(TrackStoreConfig{Logger: b.log})
	b.attributor = NewSpeakerAttributor(SpeakerAttributorConfig{Logger: b.log, Store: b.store})
	b.captions = NewCaptionStore(CaptionStoreConfig{Logger: b.log, OnCaption: b.handleCaption})
	b.chatLog = NewChatLog(ChatLogConfig{Logger: b.log, OnMessage: b.handleChatMessage})

	cfg := config.Config
	b.silenceTask = NewPeriodicTask("audio-activity", cfg.SilenceCheckInterval, b.log,
		silenceCheck(b.channel, cfg.SilenceWindow))
	b.memoryTask = NewPeriodicTask("memory", cfg.MemoryCheckInterval, b.log,
		memoryCheck(b.log, cfg.MemoryThresholdMB*1024*1024, b.channel.SendError))

	prober := config.UIProber
	b.uiTask = NewPeriodicTask("needed-interaction", cfg.UICheckInterval, b.log, func() {
		b.checkNeededInteraction(prober)
	})

	if config.FrameSource != nil {
		b.videoPipeline, err = NewVideoRelayPipeline(VideoRelayConfig{
			Source:  config.FrameSource,
			Channel: b.channel,
			Filter:  b.frameFromActiveTrack,
			OnError: b.reportPipelineError,
		})
		if err != nil {
			return nil, err
		}
	}
	if config.AudioSource != nil {
		b.audioPipeline, err = NewAudioRelayPipeline(AudioRelayConfig{
			Source:  config.AudioSource,
			Channel: b.channel,
			OnError: b.reportPipelineError,
		})
		if err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Start launches the diagnostic timers and relay pipelines. The
// audio-activity check starts later, when media sending is enabled.
func (b *Bridge) Start() error {
	b.memoryTask.Start()
	b.uiTask.Start()

	if b.videoPipeline != nil {
		if err := b.videoPipeline.Start(); err != nil {
			return fmt.Errorf("video pipeline: %w", err)
		}
	}
	if b.audioPipeline != nil {
		if err := b.audioPipeline.Start(); err != nil {
			return fmt.Errorf("audio pipeline: %w", err)
		}
	}

	b.log.Info().Msg("bridge started")
	return nil
}

// Teardown stops all timers, aborts the pipelines and closes the
// channel, releasing held media resources. Idempotent.
func (b *Bridge) Teardown() {
	b.mu.Lock()
	if b.tornDown {
		b.mu.Unlock()
		return
	}
	b.tornDown = true
	b.mu.Unlock()

	b.channel.DisableMediaSending()

	b.silenceTask.Stop()
	b.memoryTask.Stop()
	b.uiTask.Stop()

	if b.videoPipeline != nil {
		if err := b.videoPipeline.Close(); err != nil {
			b.log.Warn().Err(err).Msg("video pipeline close")
		}
	}
	if b.audioPipeline != nil {
		if err := b.audioPipeline.Close(); err != nil {
			b.log.Warn().Err(err).Msg("audio pipeline close")
		}
	}

	if err := b.channel.Close(); err != nil {
		b.log.Warn().Err(err).Msg("channel close")
	}
	b.log.Info().Msg("bridge torn down")
}

// Channel exposes the outbound channel for enable/disable control and
// direct media sends.
func (b *Bridge) Channel() *MediaChannel { return b.channel }

// Store exposes the participant state store.
func (b *Bridge) Store() *ParticipantStore { return b.store }

// Tracks exposes the video track store.
func (b *Bridge) Tracks() *TrackStore { return b.tracks }

// Attributor exposes the speaker attributor.
func (b *Bridge) Attributor() *SpeakerAttributor { return b.attributor }

// SessionID returns this bridge instance's identity.
func (b *Bridge) SessionID() string { return b.sessionID }

// --- TransportObserver ---

// OnPeerConnectionCreated subscribes the bridge to the connection's
// data channels and incoming tracks.
func (b *Bridge) OnPeerConnectionCreated(pc *webrtc.PeerConnection) {
	b.log.Debug().Msg("peer connection observed")
	pc.OnDataChannel(b.OnDataChannelCreated)
	pc.OnTrack(b.OnTrackAdded)
}

// OnDataChannelCreated subscribes to a data channel's binary messages
// when its label carries a known collection schema.
func (b *Bridge) OnDataChannelCreated(dc *webrtc.DataChannel) {
	label := dc.Label()
	if _, known := labelSchemas[label]; !known {
		b.log.Debug().Str("label", label).Msg("ignoring data channel")
		return
	}
	b.log.Debug().Str("label", label).Msg("data channel observed")
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			return
		}
		b.HandleCollectionMessage(label, msg.Data)
	})
}

// OnTrackAdded records a video track for stream selection, or begins
// contributing-source ingestion for an audio track.
func (b *Bridge) OnTrackAdded(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	streamID := track.StreamID()

	if track.Kind() == webrtc.RTPCodecTypeAudio {
		monitor := b.attributor.Monitor(track.ID())
		go b.ingestAudioLevels(track, monitor, audioLevelExtensionID(receiver))
		return
	}

	isShare := false
	if dev, ok := b.store.DeviceByStreamID(streamID); ok {
		isShare = dev.IsScreenShare()
	}
	b.tracks.Upsert(track.ID(), streamID, isShare)
}

// ObserveTrackEnded removes a track's record and monitor when the
// integration layer reports the underlying track ended.
func (b *Bridge) ObserveTrackEnded(trackID string) {
	b.tracks.Remove(trackID)
	b.attributor.RemoveMonitor(trackID)
}

func (b *Bridge) ingestAudioLevels(track *webrtc.TrackRemote, monitor *ReceiverMonitor, extID uint8) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			b.attributor.RemoveMonitor(track.ID())
			return
		}
		monitor.IngestPacket(pkt, extID)
	}
}

// audioLevelExtensionID finds the negotiated ssrc-audio-level
// extension id, defaulting to 1 when not negotiated.
func audioLevelExtensionID(receiver *webrtc.RTPReceiver) uint8 {
	if receiver == nil {
		return 1
	}
	for _, ext := range receiver.GetParameters().HeaderExtensions {
		if ext.URI == "urn:ietf:params:rtp-hdrext:ssrc-audio-level" {
			return uint8(ext.ID)
		}
	}
	return 1
}

// --- decoded message dispatch ---

// HandleCollectionMessage decodes one data-channel payload and applies
// it to the stores. A malformed buffer is isolated to this message:
// reported, never propagated to unrelated state.
func (b *Bridge) HandleCollectionMessage(label string, data []byte) {
	schema, ok := labelSchemas[label]
	if !ok {
		return
	}

	rec, err := b.registry.Decode(schema, data)
	if err != nil {
		b.log.Warn().Err(err).Str("label", label).Msg("decode failed")
		b.channel.SendError("failed to decode %s message: %v", label, err)
		return
	}

	switch schema {
	case MsgSpaceCollections:
		b.applySpaceCollections(rec)
	case MsgCaptionWrapper:
		if sub := rec.Record("caption"); sub != nil {
			b.captions.Upsert(captionFromRecord(sub))
		}
	case MsgChatMessageWrapper:
		if sub := rec.Record("message"); sub != nil {
			b.chatLog.Add(chatMessageFromRecord(sub))
		}
	}
}

func (b *Bridge) applySpaceCollections(rec Record) {
	if userList := rec.Record("userInfoList"); userList != nil {
		devices := devicesFromRecords(userList.Records("users"))
		// The incremental path cannot distinguish join from leave; a
		// true leave is only detected on the next full snapshot.
		if userList.Bool("fullList") || len(devices) > 1 {
			b.store.ApplyFullRoster(devices)
		} else if len(devices) == 1 {
			b.store.ApplySingleDevice(devices[0])
		}
	}

	if outList := rec.Record("deviceOutputInfoList"); outList != nil {
		outputs := deviceOutputsFromRecords(outList.Records("outputs"))
		if len(outputs) > 0 {
			b.store.ApplyDeviceOutputs(outputs)
		}
	}
}

// --- store event handlers ---

func (b *Bridge) handleRosterUpdate(update RosterUpdate) {
	msg := UsersUpdate{
		NewUsers:     update.Joined,
		RemovedUsers: update.Left,
		UpdatedUsers: update.Updated,
	}
	if msg.NewUsers == nil {
		msg.NewUsers = []Device{}
	}
	if msg.RemovedUsers == nil {
		msg.RemovedUsers = []Device{}
	}
	if msg.UpdatedUsers == nil {
		msg.UpdatedUsers = []Device{}
	}
	_ = b.channel.SendControl(msg)

	for _, d := range update.Left {
		if d.IsCurrentUser && d.Status == DeviceStatusRemoved {
			_ = b.channel.SendControl(MeetingStatusChange{Change: MeetingStatusRemovedFromMeeting})
		}
	}
}

func (b *Bridge) handleDeviceOutputs(outputs []DeviceOutput) {
	_ = b.channel.SendControl(DeviceOutputsUpdate{DeviceOutputs: outputs})
}

func (b *Bridge) handleCaption(caption CaptionRecord) {
	// Captions count as audio activity even when caption collection
	// is switched off.
	b.channel.MarkAudioActivity()
	if !b.cfg.CollectCaptions {
		return
	}
	_ = b.channel.SendControl(CaptionUpdate{Caption: caption})
}

func (b *Bridge) handleChatMessage(msg ChatMessageRecord) {
	_ = b.channel.SendControl(ChatMessageEvent{ChatMessageRecord: msg})
}

// --- lifecycle notifications ---

// NotifyMeetingEnded reports that the meeting finished.
func (b *Bridge) NotifyMeetingEnded() {
	_ = b.channel.SendControl(MeetingStatusChange{Change: MeetingStatusMeetingEnded})
}

// NotifyFailedToJoin reports a failed join attempt with its reason.
func (b *Bridge) NotifyFailedToJoin(reason string) {
	_ = b.channel.SendControl(MeetingStatusChange{Change: MeetingStatusFailedToJoin, Reason: reason})
}

// NotifyChatReady reports, once, that chat messages can be sent.
func (b *Bridge) NotifyChatReady() {
	b.mu.Lock()
	already := b.chatReady
	b.chatReady = true
	b.mu.Unlock()
	if already {
		return
	}
	_ = b.channel.SendControl(ChatStatusChange{Change: ChatStatusReadyToSend})
}

// --- internal hooks ---

func (b *Bridge) onMediaEnabled() {
	b.silenceTask.Start()
}

func (b *Bridge) onMediaDisabled() {
	b.silenceTask.Stop()
}

func (b *Bridge) frameFromActiveTrack(frame *RawVideoFrame) bool {
	selected, ok := b.tracks.SelectActiveVideoTrack()
	if !ok {
		// No tracked video yet; relay rather than starve the consumer.
		return true
	}
	return selected.StreamID == frame.StreamID
}

func (b *Bridge) reportPipelineError(err error) {
	b.channel.SendError("media pipeline: %v", err)
}

func (b *Bridge) checkNeededInteraction(prober UIProber) {
	if prober == nil {
		return
	}
	result, err := prober.Probe()
	if err != nil {
		b.channel.SendError("ui probe: %v", err)
		return
	}
	if !result.NeededInteraction {
		return
	}
	if result.Handled {
		_ = b.channel.SendControl(UiInteraction{Description: result.Description})
		return
	}
	b.channel.SendError("ui element not found: %s", result.Description)
}

func (b *Bridge) handleInboundJSON(payload []byte) {
	typ, err := ControlType(payload)
	if err != nil {
		b.log.Warn().Err(err).Msg("malformed inbound control message")
		return
	}
	b.log.Debug().Str("type", typ).Msg("inbound control message")
}
