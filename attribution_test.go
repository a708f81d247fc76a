package bridge

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attributionFixture(t *testing.T) (*ParticipantStore, *SpeakerAttributor) {
	t.Helper()
	store := NewParticipantStore(ParticipantStoreConfig{})
	store.ApplyFullRoster([]Device{
		inMeeting("p1", "One"),
		inMeeting("p2", "Two"),
	})
	store.ApplyDeviceOutputs([]DeviceOutput{
		{DeviceID: "p1", Type: OutputAudio, StreamID: "1001"},
		{DeviceID: "p2", Type: OutputAudio, StreamID: "1002"},
	})
	return store, NewSpeakerAttributor(SpeakerAttributorConfig{Store: store})
}

func TestSpeakerAttributionPicksLoudestKnown(t *testing.T) {
	_, attr := attributionFixture(t)

	mon := attr.Monitor("recv-1")
	mon.SetSources([]ContributingSource{
		{SourceID: "9999", AudioLevel: 0.95}, // unresolvable, dropped
		{SourceID: "1001", AudioLevel: 0.2},
		{SourceID: "1002", AudioLevel: 0.9},
	})

	dev, ok := attr.SpeakerForReceiver("recv-1")
	require.True(t, ok)
	assert.Equal(t, "p2", dev.DeviceID)
}

func TestSpeakerAttributionNoReadings(t *testing.T) {
	_, attr := attributionFixture(t)

	_, ok := attr.SpeakerForReceiver("recv-unknown")
	assert.False(t, ok)

	mon := attr.Monitor("recv-1")
	mon.SetSources([]ContributingSource{{SourceID: "9999", AudioLevel: 1.0}})
	_, ok = attr.SpeakerForReceiver("recv-1")
	assert.False(t, ok)
}

func TestSpeakerAttributionMonitorLifecycle(t *testing.T) {
	_, attr := attributionFixture(t)

	mon := attr.Monitor("recv-1")
	assert.Same(t, mon, attr.Monitor("recv-1"))

	mon.SetSources([]ContributingSource{{SourceID: "1001", AudioLevel: 0.5}})
	_, ok := attr.SpeakerForReceiver("recv-1")
	assert.True(t, ok)

	attr.RemoveMonitor("recv-1")
	_, ok = attr.SpeakerForReceiver("recv-1")
	assert.False(t, ok)
}

func TestIngestPacketWithCSRC(t *testing.T) {
	const extID = 5

	mon := newReceiverMonitor()

	ext := rtp.AudioLevelExtension{Level: 20, Voice: true}
	payload, err := ext.Marshal()
	require.NoError(t, err)

	pkt := &rtp.Packet{Header: rtp.Header{SSRC: 42, CSRC: []uint32{1001, 1002}, Extension: true, ExtensionProfile: 0xBEDE}}
	require.NoError(t, pkt.SetExtension(extID, payload))
	mon.IngestPacket(pkt, extID)

	srcs := mon.Sources()
	require.Len(t, srcs, 2)
	assert.Equal(t, "1001", srcs[0].SourceID)
	assert.Equal(t, "1002", srcs[1].SourceID)
	assert.InDelta(t, 0.1, srcs[0].AudioLevel, 1e-9)
}

func TestIngestPacketFallsBackToSSRC(t *testing.T) {
	const extID = 5

	mon := newReceiverMonitor()

	ext := rtp.AudioLevelExtension{Level: 0}
	payload, err := ext.Marshal()
	require.NoError(t, err)

	pkt := &rtp.Packet{Header: rtp.Header{SSRC: 42, Extension: true, ExtensionProfile: 0xBEDE}}
	require.NoError(t, pkt.SetExtension(extID, payload))
	mon.IngestPacket(pkt, extID)

	srcs := mon.Sources()
	require.Len(t, srcs, 1)
	assert.Equal(t, "42", srcs[0].SourceID)
	assert.Equal(t, 1.0, srcs[0].AudioLevel)
}

func TestIngestPacketWithoutExtensionIgnored(t *testing.T) {
	mon := newReceiverMonitor()
	mon.IngestPacket(&rtp.Packet{Header: rtp.Header{SSRC: 42}}, 5)
	assert.Empty(t, mon.Sources())
}

func TestDbovToLinear(t *testing.T) {
	assert.Equal(t, 1.0, dbovToLinear(0))
	assert.Equal(t, 0.0, dbovToLinear(127))
	assert.InDelta(t, 0.1, dbovToLinear(20), 1e-9)
	assert.Greater(t, dbovToLinear(10), dbovToLinear(30))
}
