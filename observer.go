package bridge

import "github.com/pion/webrtc/v4"

// TransportObserver is the interception contract between this bridge
// and the integration layer that hooks the platform's transport
// constructors. The bridge only defines the callbacks; how connection
// and channel creation is intercepted in a specific runtime is the
// integration layer's concern.
type TransportObserver interface {
	// OnPeerConnectionCreated is invoked for every peer connection the
	// session opens.
	OnPeerConnectionCreated(pc *webrtc.PeerConnection)

	// OnDataChannelCreated is invoked for every data channel. The
	// bridge subscribes to its binary messages for decoding.
	OnDataChannelCreated(dc *webrtc.DataChannel)

	// OnTrackAdded is invoked when a remote media track starts.
	OnTrackAdded(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
}

// UIProbeResult is one poll of the session's UI surface for an
// affordance that needs interaction (dialogs, confirmation prompts).
type UIProbeResult struct {
	NeededInteraction bool   // an affordance was found
	Handled           bool   // and was successfully dealt with
	Description       string // what was searched for or acted on
}

// UIProber is the out-of-scope UI-automation collaborator polled by
// the needed-interaction periodic check.
type UIProber interface {
	Probe() (UIProbeResult, error)
}
