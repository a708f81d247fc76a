package bridge

import "time"

// Message type names registered for the meeting platform's data
// channels. Payloads arrive as nested tag-length-value buffers; the
// field tables below mirror the subset of the platform's schema this
// bridge interprets. Unknown fields are skipped by the decoder, so the
// tables only name what we read.
const (
	MsgSpaceCollections     = "SpaceCollections"
	MsgUserInfoList         = "UserInfoList"
	MsgUserInfo             = "UserInfo"
	MsgDeviceOutputInfoList = "DeviceOutputInfoList"
	MsgDeviceOutputInfo     = "DeviceOutputInfo"
	MsgCaptionWrapper       = "CaptionWrapper"
	MsgCaption              = "Caption"
	MsgChatMessageWrapper   = "ChatMessageWrapper"
	MsgChatMessage          = "ChatMessage"
)

// NewMeetSchemaRegistry builds the schema registry for the platform's
// roster, device-output, caption and chat messages.
func NewMeetSchemaRegistry() (*SchemaRegistry, error) {
	return NewSchemaRegistry(
		Schema{Name: MsgUserInfo, Fields: []Field{
			{Number: 1, Name: "deviceId", Kind: FieldString},
			{Number: 2, Name: "fullName", Kind: FieldString},
			{Number: 3, Name: "profilePicture", Kind: FieldString},
			{Number: 4, Name: "status", Kind: FieldVarint},
			{Number: 5, Name: "displayName", Kind: FieldString},
			{Number: 6, Name: "parentDeviceId", Kind: FieldString},
			{Number: 7, Name: "isHost", Kind: FieldVarint},
			{Number: 8, Name: "self", Kind: FieldVarint},
		}},
		Schema{Name: MsgUserInfoList, Fields: []Field{
			{Number: 1, Name: "users", Kind: FieldMessage, Message: MsgUserInfo, Repeated: true},
			{Number: 2, Name: "fullList", Kind: FieldVarint},
		}},
		Schema{Name: MsgDeviceOutputInfo, Fields: []Field{
			{Number: 1, Name: "streamId", Kind: FieldString},
			{Number: 2, Name: "deviceId", Kind: FieldString},
			{Number: 3, Name: "outputType", Kind: FieldVarint},
			{Number: 4, Name: "disabled", Kind: FieldVarint},
		}},
		Schema{Name: MsgDeviceOutputInfoList, Fields: []Field{
			{Number: 1, Name: "outputs", Kind: FieldMessage, Message: MsgDeviceOutputInfo, Repeated: true},
		}},
		Schema{Name: MsgSpaceCollections, Fields: []Field{
			{Number: 1, Name: "userInfoList", Kind: FieldMessage, Message: MsgUserInfoList},
			{Number: 2, Name: "deviceOutputInfoList", Kind: FieldMessage, Message: MsgDeviceOutputInfoList},
		}},
		Schema{Name: MsgCaption, Fields: []Field{
			{Number: 1, Name: "captionId", Kind: FieldVarint},
			{Number: 2, Name: "deviceId", Kind: FieldString},
			{Number: 3, Name: "text", Kind: FieldString},
			{Number: 4, Name: "languageId", Kind: FieldVarint},
			{Number: 5, Name: "version", Kind: FieldVarint},
			{Number: 6, Name: "isFinal", Kind: FieldVarint},
		}},
		Schema{Name: MsgCaptionWrapper, Fields: []Field{
			{Number: 1, Name: "caption", Kind: FieldMessage, Message: MsgCaption},
		}},
		Schema{Name: MsgChatMessage, Fields: []Field{
			{Number: 1, Name: "messageId", Kind: FieldString},
			{Number: 2, Name: "deviceId", Kind: FieldString},
			{Number: 3, Name: "timestampMs", Kind: FieldInt64},
			{Number: 4, Name: "text", Kind: FieldString},
		}},
		Schema{Name: MsgChatMessageWrapper, Fields: []Field{
			{Number: 1, Name: "message", Kind: FieldMessage, Message: MsgChatMessage},
		}},
	)
}

// deviceFromRecord maps a decoded UserInfo record onto a Device.
func deviceFromRecord(rec Record) Device {
	return Device{
		DeviceID:       rec.String("deviceId"),
		DisplayName:    rec.String("displayName"),
		FullName:       rec.String("fullName"),
		ProfilePicture: rec.String("profilePicture"),
		Status:         DeviceStatus(rec.Uint("status")),
		ParentDeviceID: rec.String("parentDeviceId"),
		IsHost:         rec.Bool("isHost"),
		IsCurrentUser:  rec.Bool("self"),
	}
}

func devicesFromRecords(recs []Record) []Device {
	devs := make([]Device, 0, len(recs))
	for _, rec := range recs {
		devs = append(devs, deviceFromRecord(rec))
	}
	return devs
}

// deviceOutputFromRecord maps a decoded DeviceOutputInfo record onto a
// DeviceOutput.
func deviceOutputFromRecord(rec Record) DeviceOutput {
	return DeviceOutput{
		DeviceID: rec.String("deviceId"),
		Type:     OutputType(rec.Uint("outputType")),
		StreamID: rec.String("streamId"),
		Disabled: rec.Bool("disabled"),
	}
}

func deviceOutputsFromRecords(recs []Record) []DeviceOutput {
	outs := make([]DeviceOutput, 0, len(recs))
	for _, rec := range recs {
		outs = append(outs, deviceOutputFromRecord(rec))
	}
	return outs
}

// captionFromRecord maps a decoded Caption record onto a
// CaptionRecord.
func captionFromRecord(rec Record) CaptionRecord {
	return CaptionRecord{
		CaptionID:  rec.Uint("captionId"),
		DeviceID:   rec.String("deviceId"),
		Text:       rec.String("text"),
		LanguageID: rec.Uint("languageId"),
		Version:    rec.Uint("version"),
		IsFinal:    rec.Bool("isFinal"),
	}
}

// chatMessageFromRecord maps a decoded ChatMessage record onto a
// ChatMessageRecord, truncating the timestamp to whole seconds.
func chatMessageFromRecord(rec Record) ChatMessageRecord {
	ts := time.UnixMilli(rec.Int64("timestampMs")).Truncate(time.Second)
	return ChatMessageRecord{
		MessageID: rec.String("messageId"),
		DeviceID:  rec.String("deviceId"),
		Timestamp: ts.Unix(),
		Text:      rec.String("text"),
	}
}
