package bridge

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeVideoFrameLayout(t *testing.T) {
	data := []byte{0xAA, 0xBB, 0xCC}
	msg := EncodeVideoFrame(1234567, "str", 640, 480, data)

	require.Len(t, msg, 4+8+4+3+4+4+3)
	assert.Equal(t, uint32(WireVideo), binary.LittleEndian.Uint32(msg))
	assert.Equal(t, uint64(1234567), binary.LittleEndian.Uint64(msg[4:]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(msg[12:]))
	assert.Equal(t, "str", string(msg[16:19]))
	assert.Equal(t, uint32(640), binary.LittleEndian.Uint32(msg[19:]))
	assert.Equal(t, uint32(480), binary.LittleEndian.Uint32(msg[23:]))
	assert.Equal(t, data, msg[27:])
}

func TestVideoFrameRoundTrip(t *testing.T) {
	msg := EncodeVideoFrame(-5, "spaces/abc/devices/def", 1280, 720, []byte{1, 2, 3, 4})

	typ, body, err := DecodeWireType(msg)
	require.NoError(t, err)
	assert.Equal(t, WireVideo, typ)

	frame, err := DecodeVideoFrame(body)
	require.NoError(t, err)
	assert.Equal(t, int64(-5), frame.TimestampMicros)
	assert.Equal(t, "spaces/abc/devices/def", frame.StreamID)
	assert.Equal(t, int32(1280), frame.Width)
	assert.Equal(t, int32(720), frame.Height)
	assert.Equal(t, []byte{1, 2, 3, 4}, frame.Data)
}

func TestMixedAudioRoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -1, float32(math.Pi)}
	msg := EncodeMixedAudio(samples)

	typ, body, err := DecodeWireType(msg)
	require.NoError(t, err)
	assert.Equal(t, WireAudio, typ)

	got, err := DecodeAudioSamples(body)
	require.NoError(t, err)
	assert.Equal(t, samples, got)
}

func TestPerParticipantAudioRoundTrip(t *testing.T) {
	msg, err := EncodePerParticipantAudio("device-9", []float32{0.25, -0.25})
	require.NoError(t, err)

	typ, body, err := DecodeWireType(msg)
	require.NoError(t, err)
	assert.Equal(t, WirePerParticipantAudio, typ)
	assert.Equal(t, uint8(8), body[0])

	id, samples, err := DecodePerParticipantAudio(body)
	require.NoError(t, err)
	assert.Equal(t, "device-9", id)
	assert.Equal(t, []float32{0.25, -0.25}, samples)
}

func TestPerParticipantAudioIDTooLong(t *testing.T) {
	_, err := EncodePerParticipantAudio(strings.Repeat("x", 256), nil)
	assert.Error(t, err)
}

func TestJSONAndChunkFraming(t *testing.T) {
	msg := EncodeJSONMessage([]byte(`{"type":"Error"}`))
	typ, body, err := DecodeWireType(msg)
	require.NoError(t, err)
	assert.Equal(t, WireJSON, typ)
	assert.JSONEq(t, `{"type":"Error"}`, string(body))

	msg = EncodeMediaChunk([]byte{0xDE, 0xAD})
	typ, body, err = DecodeWireType(msg)
	require.NoError(t, err)
	assert.Equal(t, WireEncodedMediaChunk, typ)
	assert.Equal(t, []byte{0xDE, 0xAD}, body)
}

func TestDecodeShortMessages(t *testing.T) {
	_, _, err := DecodeWireType([]byte{1, 2})
	assert.ErrorIs(t, err, ErrShortMessage)

	_, err = DecodeVideoFrame(make([]byte, 11))
	assert.ErrorIs(t, err, ErrShortMessage)

	// Declared stream-id length overruns the body.
	body := binary.LittleEndian.AppendUint64(nil, 0)
	body = binary.LittleEndian.AppendUint32(body, 100)
	_, err = DecodeVideoFrame(body)
	assert.ErrorIs(t, err, ErrShortMessage)

	_, err = DecodeAudioSamples([]byte{1, 2, 3})
	assert.Error(t, err)

	_, _, err = DecodePerParticipantAudio(nil)
	assert.ErrorIs(t, err, ErrShortMessage)
	_, _, err = DecodePerParticipantAudio([]byte{5, 'a'})
	assert.ErrorIs(t, err, ErrShortMessage)
}

func TestWireTypeString(t *testing.T) {
	assert.Equal(t, "JSON", WireJSON.String())
	assert.Equal(t, "PER_PARTICIPANT_AUDIO", WirePerParticipantAudio.String())
	assert.Equal(t, "UNKNOWN", WireType(99).String())
}
