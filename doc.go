// Package bridge attaches to a live video-conferencing web session,
// reconstructs a consistent view of participants, devices and media
// streams from the platform's proprietary event stream, and re-emits a
// normalized binary protocol over a local channel for an external
// recording backend to consume.
//
// Key pieces include:
//   - SchemaRegistry: schema-driven decoder for the platform's nested
//     tag-length-value data-channel messages
//   - ParticipantStore: roster reconciliation with join/leave/update diffs
//   - TrackStore: active video stream selection (screen share first)
//   - SpeakerAttributor: contributing-source to participant attribution
//   - CaptionStore/ChatLog: caption and chat normalizers
//   - MediaChannel: the multiplexed outbound wire protocol and its
//     media-sending gate
//   - Bridge: the composition root wiring all of the above
//
// # Architecture
//
//	transport events -> SchemaRegistry -> {ParticipantStore, CaptionStore, ChatLog}
//	                                          -> {TrackStore, SpeakerAttributor}
//	relay pipelines: FrameSource/SampleSource -> MediaChannel -> websocket consumer
//
// The integration layer (browser automation, session setup) is out of
// scope; it drives the bridge through the TransportObserver contract
// and the channel's enable/disable controls.
package bridge
