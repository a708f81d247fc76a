package bridge

import (
	"encoding/json"
	"fmt"
)

// ControlMessage is a JSON control message on the outbound channel,
// discriminated on the wire by a "type" field. The set of variants is
// closed; encodeControl matches exhaustively.
type ControlMessage interface {
	isControlMessage()
}

// Control message type discriminators.
const (
	ControlTypeUsersUpdate         = "UsersUpdate"
	ControlTypeDeviceOutputsUpdate = "DeviceOutputsUpdate"
	ControlTypeCaptionUpdate       = "CaptionUpdate"
	ControlTypeChatMessage         = "ChatMessage"
	ControlTypeSilenceStatus       = "SilenceStatus"
	ControlTypeError               = "Error"
	ControlTypeUiInteraction       = "UiInteraction"
	ControlTypeMeetingStatusChange = "MeetingStatusChange"
	ControlTypeChatStatusChange    = "ChatStatusChange"
	ControlTypeAudioFormatUpdate   = "AudioFormatUpdate"
)

// UsersUpdate reports a roster diff.
type UsersUpdate struct {
	NewUsers     []Device `json:"newUsers"`
	RemovedUsers []Device `json:"removedUsers"`
	UpdatedUsers []Device `json:"updatedUsers"`
}

// DeviceOutputsUpdate reports the full current device-output table.
type DeviceOutputsUpdate struct {
	DeviceOutputs []DeviceOutput `json:"deviceOutputs"`
}

// CaptionUpdate reports one caption upsert.
type CaptionUpdate struct {
	Caption CaptionRecord `json:"caption"`
}

// ChatMessageEvent reports one chat message.
type ChatMessageEvent struct {
	ChatMessageRecord
}

// SilenceStatus reports the liveness check's audio-activity verdict.
type SilenceStatus struct {
	IsSilent bool `json:"isSilent"`
}

// ErrorMessage is a free-text diagnostic for the external operator.
type ErrorMessage struct {
	Message string `json:"message"`
}

// UiInteraction reports an on-screen affordance that was handled or
// searched for.
type UiInteraction struct {
	Description string `json:"description"`
}

// MeetingStatusChange values.
const (
	MeetingStatusRemovedFromMeeting = "removed_from_meeting"
	MeetingStatusMeetingEnded       = "meeting_ended"
	MeetingStatusFailedToJoin       = "failed_to_join"
)

// MeetingStatusChange reports a meeting lifecycle transition.
type MeetingStatusChange struct {
	Change string `json:"change"`
	Reason string `json:"reason,omitempty"`
}

// ChatStatusReadyToSend signals the chat surface accepts messages.
const ChatStatusReadyToSend = "ready_to_send"

// ChatStatusChange reports a chat surface transition.
type ChatStatusChange struct {
	Change string `json:"change"`
}

// AudioFormatSpec describes the PCM layout of outbound audio frames.
type AudioFormatSpec struct {
	Format           string `json:"format"` // e.g. "f32le"
	SampleRate       int    `json:"sampleRate"`
	NumberOfChannels int    `json:"numberOfChannels"`
}

// AudioFormatUpdate announces the outbound audio format. Emitted when
// media sending is enabled.
type AudioFormatUpdate struct {
	Format AudioFormatSpec `json:"format"`
}

func (UsersUpdate) isControlMessage()         {}
func (DeviceOutputsUpdate) isControlMessage() {}
func (CaptionUpdate) isControlMessage()       {}
func (ChatMessageEvent) isControlMessage()    {}
func (SilenceStatus) isControlMessage()       {}
func (ErrorMessage) isControlMessage()        {}
func (UiInteraction) isControlMessage()       {}
func (MeetingStatusChange) isControlMessage() {}
func (ChatStatusChange) isControlMessage()    {}
func (AudioFormatUpdate) isControlMessage()   {}

// encodeControl serializes a control message with its "type"
// discriminator.
func encodeControl(msg ControlMessage) ([]byte, error) {
	wrap := func(typ string, body any) ([]byte, error) {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		fields["type"] = json.RawMessage(`"` + typ + `"`)
		return json.Marshal(fields)
	}

	switch v := msg.(type) {
	case UsersUpdate:
		return wrap(ControlTypeUsersUpdate, v)
	case DeviceOutputsUpdate:
		return wrap(ControlTypeDeviceOutputsUpdate, v)
	case CaptionUpdate:
		return wrap(ControlTypeCaptionUpdate, v)
	case ChatMessageEvent:
		return wrap(ControlTypeChatMessage, v)
	case SilenceStatus:
		return wrap(ControlTypeSilenceStatus, v)
	case ErrorMessage:
		return wrap(ControlTypeError, v)
	case UiInteraction:
		return wrap(ControlTypeUiInteraction, v)
	case MeetingStatusChange:
		return wrap(ControlTypeMeetingStatusChange, v)
	case ChatStatusChange:
		return wrap(ControlTypeChatStatusChange, v)
	case AudioFormatUpdate:
		return wrap(ControlTypeAudioFormatUpdate, v)
	default:
		return nil, fmt.Errorf("unknown control message %T", msg)
	}
}

// ControlType extracts the "type" discriminator from an inbound JSON
// control payload without decoding the rest.
func ControlType(payload []byte) (string, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return "", fmt.Errorf("control payload: %w", err)
	}
	return head.Type, nil
}
