package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultMediaFlushGrace is how long DisableMediaSending waits before
// closing the gate so in-flight encodes can flush.
const DefaultMediaFlushGrace = 2 * time.Second

// ChannelSink is the underlying message-oriented transport for the
// outbound channel. Messages are ordered and uncompressed.
type ChannelSink interface {
	SendMessage(data []byte) error
	Close() error
}

// ChannelStats counts outbound channel traffic.
type ChannelStats struct {
	JSONSent            uint64
	VideoSent           uint64
	AudioSent           uint64
	PerParticipantSent  uint64
	MediaChunksSent     uint64
	GatedDrops          uint64
	TransportDrops      uint64
	BytesSent           uint64
}

// MediaChannelConfig configures a MediaChannel.
type MediaChannelConfig struct {
	Logger     zerolog.Logger
	Sink       ChannelSink
	Audio      AudioFormatSpec // announced on enable
	FlushGrace time.Duration   // defaults to DefaultMediaFlushGrace

	// Feature toggles; a disabled path drops its sends silently.
	MixedAudioDisabled          bool
	PerParticipantAudioDisabled bool

	OnEnabled     func()       // media sending entered enabled state
	OnDisabled    func()       // media sending left enabled state
	OnInboundJSON func([]byte) // inbound JSON payloads (tag 1)

	sleep func(time.Duration) // test hook
}

// MediaChannel multiplexes JSON control messages and media frames onto
// one ordered binary channel. It starts with media sending disabled:
// media frames are silently dropped until EnableMediaSending, which is
// a deliberate quiet policy rather than an error. JSON messages are
// exempt from the gate.
type MediaChannel struct {
	log   zerolog.Logger
	sink  ChannelSink
	audio AudioFormatSpec
	grace time.Duration
	sleep func(time.Duration)

	mixedDisabled          bool
	perParticipantDisabled bool

	mu      sync.Mutex
	enabled bool
	stats   ChannelStats

	lastAudioActivity time.Time

	onEnabled     func()
	onDisabled    func()
	onInboundJSON func([]byte)
}

// NewMediaChannel creates a channel in the media-sending-disabled
// state.
func NewMediaChannel(config MediaChannelConfig) (*MediaChannel, error) {
	if config.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	grace := config.FlushGrace
	if grace == 0 {
		grace = DefaultMediaFlushGrace
	}
	sleep := config.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &MediaChannel{
		log:                    config.Logger,
		sink:                   config.Sink,
		audio:                  config.Audio,
		grace:                  grace,
		sleep:                  sleep,
		mixedDisabled:          config.MixedAudioDisabled,
		perParticipantDisabled: config.PerParticipantAudioDisabled,
		onEnabled:              config.OnEnabled,
		onDisabled:             config.OnDisabled,
		onInboundJSON:          config.OnInboundJSON,
	}, nil
}

// EnableMediaSending opens the media gate, announces the audio format
// and triggers collaborator start-up work.
func (c *MediaChannel) EnableMediaSending() {
	c.mu.Lock()
	already := c.enabled
	c.enabled = true
	c.mu.Unlock()
	if already {
		return
	}

	c.log.Info().Msg("media sending enabled")
	c.SendControl(AudioFormatUpdate{Format: c.audio})
	if c.onEnabled != nil {
		c.onEnabled()
	}
}

// DisableMediaSending waits the flush grace, closes the media gate and
// triggers collaborator teardown work. Safe to call when already
// disabled.
func (c *MediaChannel) DisableMediaSending() {
	c.mu.Lock()
	enabled := c.enabled
	c.mu.Unlock()
	if !enabled {
		return
	}

	c.sleep(c.grace)

	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()

	c.log.Info().Msg("media sending disabled")
	if c.onDisabled != nil {
		c.onDisabled()
	}
}

// Enabled reports whether media frames currently pass the gate.
func (c *MediaChannel) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SendControl sends a JSON control message. Control messages bypass
// the media gate in both states.
func (c *MediaChannel) SendControl(msg ControlMessage) error {
	payload, err := encodeControl(msg)
	if err != nil {
		return fmt.Errorf("encode control: %w", err)
	}
	return c.send(EncodeJSONMessage(payload), &c.stats.JSONSent)
}

// SendError emits a free-text Error diagnostic.
func (c *MediaChannel) SendError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.log.Warn().Str("diagnostic", msg).Msg("error diagnostic")
	_ = c.SendControl(ErrorMessage{Message: msg})
}

// SendVideoFrame sends one raw video frame. Dropped silently while the
// gate is closed.
func (c *MediaChannel) SendVideoFrame(timestampMicros int64, streamID string, width, height int32, data []byte) error {
	if !c.gatePass() {
		return nil
	}
	return c.send(EncodeVideoFrame(timestampMicros, streamID, width, height, data), &c.stats.VideoSent)
}

// SendMixedAudio sends mixed mono PCM samples. Dropped silently while
// the gate is closed. Non-silent payloads refresh the audio-activity
// clock regardless of gate state.
func (c *MediaChannel) SendMixedAudio(samples []float32) error {
	for _, s := range samples {
		if s != 0 {
			c.mu.Lock()
			c.lastAudioActivity = time.Now()
			c.mu.Unlock()
			break
		}
	}
	if c.mixedDisabled || !c.gatePass() {
		return nil
	}
	return c.send(EncodeMixedAudio(samples), &c.stats.AudioSent)
}

// SendPerParticipantAudio sends one participant's PCM samples. Dropped
// silently while the gate is closed.
func (c *MediaChannel) SendPerParticipantAudio(participantID string, samples []float32) error {
	if c.perParticipantDisabled || !c.gatePass() {
		return nil
	}
	msg, err := EncodePerParticipantAudio(participantID, samples)
	if err != nil {
		return err
	}
	return c.send(msg, &c.stats.PerParticipantSent)
}

// SendMediaChunk sends an opaque container-encoded chunk. Dropped
// silently while the gate is closed.
func (c *MediaChannel) SendMediaChunk(data []byte) error {
	if !c.gatePass() {
		return nil
	}
	return c.send(EncodeMediaChunk(data), &c.stats.MediaChunksSent)
}

// MarkAudioActivity refreshes the audio-activity clock. Caption
// traffic counts as activity too.
func (c *MediaChannel) MarkAudioActivity() {
	c.mu.Lock()
	c.lastAudioActivity = time.Now()
	c.mu.Unlock()
}

// LastAudioActivity returns when audio was last observed non-silent.
func (c *MediaChannel) LastAudioActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAudioActivity
}

// HandleInbound processes one message from the consumer. Only JSON is
// interpreted; other tags are reserved and ignored without error.
func (c *MediaChannel) HandleInbound(msg []byte) {
	typ, body, err := DecodeWireType(msg)
	if err != nil {
		c.log.Warn().Err(err).Msg("malformed inbound message")
		return
	}
	if typ != WireJSON {
		return
	}
	if c.onInboundJSON != nil {
		c.onInboundJSON(body)
	}
}

// Stats returns a snapshot of channel counters.
func (c *MediaChannel) Stats() ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close closes the underlying sink.
func (c *MediaChannel) Close() error {
	return c.sink.Close()
}

func (c *MediaChannel) gatePass() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		c.stats.GatedDrops++
		return false
	}
	return true
}

// send writes one framed message. A transport failure drops the
// message and is reported, never fatal.
func (c *MediaChannel) send(msg []byte, counter *uint64) error {
	if err := c.sink.SendMessage(msg); err != nil {
		c.mu.Lock()
		c.stats.TransportDrops++
		c.mu.Unlock()
		c.log.Warn().Err(err).Int("bytes", len(msg)).Msg("dropped outbound message")
		return nil
	}
	c.mu.Lock()
	*counter++
	c.stats.BytesSent += uint64(len(msg))
	c.mu.Unlock()
	return nil
}

// WebsocketSink is a ChannelSink over a local websocket connection,
// the transport the external consumer listens on.
type WebsocketSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// DialConsumer connects to the consumer's websocket endpoint, e.g.
// ws://localhost:8765.
func DialConsumer(ctx context.Context, url string) (*WebsocketSink, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial consumer %s: %w", url, err)
	}
	return &WebsocketSink{conn: conn}, nil
}

// NewWebsocketSink wraps an established connection.
func NewWebsocketSink(conn *websocket.Conn) *WebsocketSink {
	return &WebsocketSink{conn: conn}
}

// SendMessage writes one binary websocket message.
func (s *WebsocketSink) SendMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// ReadLoop delivers inbound messages to handler until the connection
// closes or ctx is cancelled.
func (s *WebsocketSink) ReadLoop(ctx context.Context, handler func([]byte)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		handler(msg)
	}
}

// Close closes the websocket connection.
func (s *WebsocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}
