package bridge

import (
	"encoding/binary"
	"fmt"
	"math"
)

// WireType tags one framed unit on the multiplexed binary channel.
// Every message starts with the tag as a 4-byte little-endian signed
// integer, followed by a type-specific body.
type WireType int32

const (
	WireJSON                WireType = 1 // UTF-8 JSON document
	WireVideo               WireType = 2 // timestamp + stream id + dimensions + raw planar frame
	WireAudio               WireType = 3 // mixed mono f32le PCM samples
	WireEncodedMediaChunk   WireType = 4 // opaque container-encoded media
	WirePerParticipantAudio WireType = 5 // participant id + mono f32le PCM samples
)

func (t WireType) String() string {
	switch t {
	case WireJSON:
		return "JSON"
	case WireVideo:
		return "VIDEO"
	case WireAudio:
		return "AUDIO"
	case WireEncodedMediaChunk:
		return "ENCODED_MEDIA_CHUNK"
	case WirePerParticipantAudio:
		return "PER_PARTICIPANT_AUDIO"
	default:
		return "UNKNOWN"
	}
}

// ErrShortMessage is returned when a wire message is too short for its
// declared layout.
var ErrShortMessage = fmt.Errorf("short wire message")

func appendTag(buf []byte, t WireType) []byte {
	return binary.LittleEndian.AppendUint32(buf, uint32(t))
}

// EncodeJSONMessage frames a JSON document.
func EncodeJSONMessage(payload []byte) []byte {
	out := make([]byte, 0, 4+len(payload))
	out = appendTag(out, WireJSON)
	return append(out, payload...)
}

// EncodeVideoFrame frames one raw video frame:
// int64 LE timestamp (µs), int32 LE stream-id length, stream-id bytes,
// int32 LE width, int32 LE height, then the raw planar frame data.
func EncodeVideoFrame(timestampMicros int64, streamID string, width, height int32, data []byte) []byte {
	out := make([]byte, 0, 4+8+4+len(streamID)+4+4+len(data))
	out = appendTag(out, WireVideo)
	out = binary.LittleEndian.AppendUint64(out, uint64(timestampMicros))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(streamID)))
	out = append(out, streamID...)
	out = binary.LittleEndian.AppendUint32(out, uint32(width))
	out = binary.LittleEndian.AppendUint32(out, uint32(height))
	return append(out, data...)
}

// EncodeMixedAudio frames mixed mono f32le PCM samples.
func EncodeMixedAudio(samples []float32) []byte {
	out := make([]byte, 0, 4+4*len(samples))
	out = appendTag(out, WireAudio)
	return appendSamples(out, samples)
}

// EncodeMediaChunk frames an opaque container-encoded media chunk.
func EncodeMediaChunk(data []byte) []byte {
	out := make([]byte, 0, 4+len(data))
	out = appendTag(out, WireEncodedMediaChunk)
	return append(out, data...)
}

// EncodePerParticipantAudio frames one participant's mono f32le PCM
// samples: uint8 participant-id length, participant-id bytes, samples.
func EncodePerParticipantAudio(participantID string, samples []float32) ([]byte, error) {
	if len(participantID) > math.MaxUint8 {
		return nil, fmt.Errorf("participant id too long: %d bytes", len(participantID))
	}
	out := make([]byte, 0, 4+1+len(participantID)+4*len(samples))
	out = appendTag(out, WirePerParticipantAudio)
	out = append(out, uint8(len(participantID)))
	out = append(out, participantID...)
	return appendSamples(out, samples), nil
}

func appendSamples(buf []byte, samples []float32) []byte {
	for _, s := range samples {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(s))
	}
	return buf
}

// DecodeWireType splits a framed message into its tag and body.
func DecodeWireType(msg []byte) (WireType, []byte, error) {
	if len(msg) < 4 {
		return 0, nil, ErrShortMessage
	}
	return WireType(int32(binary.LittleEndian.Uint32(msg))), msg[4:], nil
}

// VideoFrameMessage is a decoded VIDEO wire body.
type VideoFrameMessage struct {
	TimestampMicros int64
	StreamID        string
	Width           int32
	Height          int32
	Data            []byte
}

// DecodeVideoFrame parses a VIDEO wire body.
func DecodeVideoFrame(body []byte) (VideoFrameMessage, error) {
	var m VideoFrameMessage
	if len(body) < 12 {
		return m, ErrShortMessage
	}
	m.TimestampMicros = int64(binary.LittleEndian.Uint64(body))
	idLen := int(binary.LittleEndian.Uint32(body[8:]))
	if len(body) < 12+idLen+8 {
		return m, ErrShortMessage
	}
	m.StreamID = string(body[12 : 12+idLen])
	off := 12 + idLen
	m.Width = int32(binary.LittleEndian.Uint32(body[off:]))
	m.Height = int32(binary.LittleEndian.Uint32(body[off+4:]))
	m.Data = body[off+8:]
	return m, nil
}

// DecodeAudioSamples parses a body of f32le PCM samples.
func DecodeAudioSamples(body []byte) ([]float32, error) {
	if len(body)%4 != 0 {
		return nil, fmt.Errorf("audio body length %d not a multiple of 4", len(body))
	}
	samples := make([]float32, len(body)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[4*i:]))
	}
	return samples, nil
}

// DecodePerParticipantAudio parses a PER_PARTICIPANT_AUDIO wire body.
func DecodePerParticipantAudio(body []byte) (string, []float32, error) {
	if len(body) < 1 {
		return "", nil, ErrShortMessage
	}
	idLen := int(body[0])
	if len(body) < 1+idLen {
		return "", nil, ErrShortMessage
	}
	id := string(body[1 : 1+idLen])
	samples, err := DecodeAudioSamples(body[1+idLen:])
	if err != nil {
		return "", nil, err
	}
	return id, samples, nil
}
