package bridge

import (
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// ContributingSource is one audio energy sample attributed to a
// synchronization source, scoped to a single receiver. Readings are
// transient: each poll overwrites the previous one.
type ContributingSource struct {
	SourceID   string
	AudioLevel float64 // 0.0 (silent) .. 1.0 (full scale)
}

// ReceiverMonitor holds the latest contributing-source readings for
// one receiver.
type ReceiverMonitor struct {
	mu      sync.Mutex
	sources map[string]ContributingSource
}

func newReceiverMonitor() *ReceiverMonitor {
	return &ReceiverMonitor{sources: make(map[string]ContributingSource)}
}

// SetSources replaces all readings with the given poll result.
func (m *ReceiverMonitor) SetSources(sources []ContributingSource) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sources = make(map[string]ContributingSource, len(sources))
	for _, src := range sources {
		m.sources[src.SourceID] = src
	}
}

// IngestPacket derives a reading from an RTP packet carrying the
// audio-level header extension. CSRC entries identify the contributing
// sources; packets without CSRCs attribute to the SSRC itself.
func (m *ReceiverMonitor) IngestPacket(pkt *rtp.Packet, audioLevelExtID uint8) {
	ext := pkt.GetExtension(audioLevelExtID)
	if ext == nil {
		return
	}
	var level rtp.AudioLevelExtension
	if err := level.Unmarshal(ext); err != nil {
		return
	}

	reading := ContributingSource{AudioLevel: dbovToLinear(level.Level)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(pkt.CSRC) == 0 {
		reading.SourceID = strconv.FormatUint(uint64(pkt.SSRC), 10)
		m.sources[reading.SourceID] = reading
		return
	}
	for _, csrc := range pkt.CSRC {
		reading.SourceID = strconv.FormatUint(uint64(csrc), 10)
		m.sources[reading.SourceID] = reading
	}
}

// Sources returns a snapshot of the current readings.
func (m *ReceiverMonitor) Sources() []ContributingSource {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ContributingSource, 0, len(m.sources))
	for _, src := range m.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// dbovToLinear maps the extension's negated dBov level (0 loudest,
// 127 silent) to a linear 0..1 scale.
func dbovToLinear(level uint8) float64 {
	if level >= 127 {
		return 0
	}
	return math.Pow(10, -float64(level)/20)
}

// SpeakerAttributorConfig configures a SpeakerAttributor.
type SpeakerAttributorConfig struct {
	Logger zerolog.Logger
	Store  *ParticipantStore
}

// SpeakerAttributor maps contributing-source readings to participants
// through the store's stream-to-device index.
type SpeakerAttributor struct {
	mu        sync.Mutex
	log       zerolog.Logger
	store     *ParticipantStore
	receivers map[string]*ReceiverMonitor
}

// NewSpeakerAttributor creates an attributor backed by the given
// participant store.
func NewSpeakerAttributor(config SpeakerAttributorConfig) *SpeakerAttributor {
	return &SpeakerAttributor{
		log:       config.Logger,
		store:     config.Store,
		receivers: make(map[string]*ReceiverMonitor),
	}
}

// Monitor returns the monitor for the given receiver, creating it on
// first use.
func (a *SpeakerAttributor) Monitor(receiverID string) *ReceiverMonitor {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.receivers[receiverID]
	if !ok {
		m = newReceiverMonitor()
		a.receivers[receiverID] = m
	}
	return m
}

// RemoveMonitor drops a receiver's monitor when its track ends.
func (a *SpeakerAttributor) RemoveMonitor(receiverID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.receivers, receiverID)
}

// SpeakerForReceiver returns the participant speaking loudest on the
// given receiver. Sources that resolve to no known participant are
// dropped silently; a stream observed before its roster entry arrives
// is an expected transient state, not an error. Level ties resolve to
// the first source in reading order (stable sort).
func (a *SpeakerAttributor) SpeakerForReceiver(receiverID string) (Device, bool) {
	a.mu.Lock()
	m, ok := a.receivers[receiverID]
	a.mu.Unlock()
	if !ok {
		return Device{}, false
	}

	type candidate struct {
		device Device
		level  float64
	}
	var candidates []candidate
	for _, src := range m.Sources() {
		dev, ok := a.store.DeviceByStreamID(src.SourceID)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{device: dev, level: src.AudioLevel})
	}
	if len(candidates) == 0 {
		return Device{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].level > candidates[j].level })
	return candidates[0].device, true
}
