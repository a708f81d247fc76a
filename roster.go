package bridge

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DeviceStatus is the platform-reported presence of a device.
type DeviceStatus int

const (
	DeviceStatusUnknown      DeviceStatus = iota
	DeviceStatusInMeeting                 // present in the meeting
	DeviceStatusNotInMeeting              // known but not currently present
	DeviceStatusRemoved                   // ejected by the host
)

func (s DeviceStatus) String() string {
	switch s {
	case DeviceStatusInMeeting:
		return "in_meeting"
	case DeviceStatusNotInMeeting:
		return "not_in_meeting"
	case DeviceStatusRemoved:
		return "removed_from_meeting"
	default:
		return "unknown"
	}
}

// Device is one participant presence in the meeting. A device with a
// ParentDeviceID is a screen-share pseudo-device owned by the sharer
// and is excluded from externally observable participant events.
type Device struct {
	DeviceID       string       `json:"deviceId"`
	DisplayName    string       `json:"displayName"`
	FullName       string       `json:"fullName"`
	ProfilePicture string       `json:"profilePicture"`
	Status         DeviceStatus `json:"-"`
	ParentDeviceID string       `json:"parentDeviceId,omitempty"`
	IsHost         bool         `json:"isHost"`
	IsCurrentUser  bool         `json:"isCurrentUser"`

	// HumanizedStatus mirrors Status for JSON consumers.
	HumanizedStatus string `json:"humanized_status"`
}

// IsScreenShare reports whether this is a screen-share pseudo-device.
func (d Device) IsScreenShare() bool {
	return d.ParentDeviceID != ""
}

// OutputType distinguishes a device's output channels.
type OutputType int

const (
	OutputAudio OutputType = 1
	OutputVideo OutputType = 2
)

func (t OutputType) String() string {
	switch t {
	case OutputAudio:
		return "audio"
	case OutputVideo:
		return "video"
	default:
		return "unknown"
	}
}

// DeviceOutput is one audio or video output channel of a device,
// uniquely keyed by (DeviceID, Type). Later updates overwrite earlier
// ones; no history is retained.
type DeviceOutput struct {
	DeviceID    string     `json:"deviceId"`
	Type        OutputType `json:"outputType"`
	StreamID    string     `json:"streamId"`
	Disabled    bool       `json:"disabled"`
	LastUpdated time.Time  `json:"-"`
}

type outputKey struct {
	deviceID string
	typ      OutputType
}

// RosterUpdate is the diff between two consecutive current rosters.
// Screen-share pseudo-devices never appear in any of the three sets.
type RosterUpdate struct {
	Joined  []Device
	Left    []Device
	Updated []Device
}

// Empty reports whether the update carries no changes.
func (u RosterUpdate) Empty() bool {
	return len(u.Joined) == 0 && len(u.Left) == 0 && len(u.Updated) == 0
}

// ParticipantStoreConfig configures a ParticipantStore.
type ParticipantStoreConfig struct {
	Logger          zerolog.Logger
	OnRosterUpdate  func(RosterUpdate)   // invoked for non-empty diffs only
	OnDeviceOutputs func([]DeviceOutput) // invoked on every outputs batch
	Now             func() time.Time     // defaults to time.Now
}

// ParticipantStore reconciles roster snapshots and device-output
// updates into join/leave/update semantics. All mutation happens under
// one lock; handlers are invoked synchronously while holding it, so
// they must not call back into the store.
type ParticipantStore struct {
	mu sync.Mutex

	log zerolog.Logger
	now func() time.Time

	current  map[string]Device // devices with status in_meeting, pseudo-devices included
	all      map[string]Device // every device ever seen, any status
	outputs  map[outputKey]DeviceOutput
	byStream map[string]string // stream id -> device id

	currentUserID string

	onRoster  func(RosterUpdate)
	onOutputs func([]DeviceOutput)
}

// NewParticipantStore creates an empty store.
func NewParticipantStore(config ParticipantStoreConfig) *ParticipantStore {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &ParticipantStore{
		log:       config.Logger,
		now:       now,
		current:   make(map[string]Device),
		all:       make(map[string]Device),
		outputs:   make(map[outputKey]DeviceOutput),
		byStream:  make(map[string]string),
		onRoster:  config.OnRosterUpdate,
		onOutputs: config.OnDeviceOutputs,
	}
}

// ApplyFullRoster replaces the current roster with the given snapshot
// and returns the diff against the previous one. Only devices with
// status in_meeting count as current. The handler fires only when the
// diff is non-empty.
func (s *ParticipantStore) ApplyFullRoster(devices []Device) RosterUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyFullRosterLocked(devices)
}

func (s *ParticipantStore) applyFullRosterLocked(devices []Device) RosterUpdate {
	// The current-user marker is assigned on first sighting and never
	// reassigned for the rest of the session, even if later snapshots
	// omit it.
	for i := range devices {
		d := &devices[i]
		if s.currentUserID == "" && d.IsCurrentUser && !d.IsScreenShare() {
			s.currentUserID = d.DeviceID
			s.log.Debug().Str("device_id", d.DeviceID).Msg("current user identified")
		}
		d.IsCurrentUser = d.DeviceID == s.currentUserID
		d.HumanizedStatus = d.Status.String()
	}

	newCurrent := make(map[string]Device, len(devices))
	incoming := make(map[string]Device, len(devices))
	for _, d := range devices {
		incoming[d.DeviceID] = d
		s.all[d.DeviceID] = d
		if d.Status == DeviceStatusInMeeting {
			newCurrent[d.DeviceID] = d
		}
	}

	var update RosterUpdate
	for id, d := range newCurrent {
		if d.IsScreenShare() {
			continue
		}
		prev, existed := s.current[id]
		switch {
		case !existed:
			update.Joined = append(update.Joined, d)
		case prev != d:
			update.Updated = append(update.Updated, d)
		}
	}
	for id, prev := range s.current {
		if prev.IsScreenShare() {
			continue
		}
		if _, stillHere := newCurrent[id]; stillHere {
			continue
		}
		// Prefer the incoming record for leavers so the reported
		// status reflects why they left (e.g. removed_from_meeting).
		if inc, ok := incoming[id]; ok {
			update.Left = append(update.Left, inc)
		} else {
			left := prev
			left.Status = DeviceStatusNotInMeeting
			left.HumanizedStatus = left.Status.String()
			update.Left = append(update.Left, left)
		}
	}

	s.current = newCurrent

	sortDevices(update.Joined)
	sortDevices(update.Left)
	sortDevices(update.Updated)

	if !update.Empty() && s.onRoster != nil {
		s.onRoster(update)
	}
	return update
}

// ApplySingleDevice merges one incrementally reported device into the
// current roster. The transport cannot distinguish join from leave on
// this path, so a true leave is only detected on the next full
// snapshot (bounded staleness of one snapshot interval).
func (s *ParticipantStore) ApplySingleDevice(device Device) RosterUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]Device, 0, len(s.current)+1)
	for id, d := range s.current {
		if id == device.DeviceID {
			continue
		}
		merged = append(merged, d)
	}
	merged = append(merged, device)
	return s.applyFullRosterLocked(merged)
}

// ApplyDeviceOutputs upserts output records keyed by (device id,
// output type). Unlike roster snapshots this is not diffed: every call
// fires the handler with the full current table.
func (s *ParticipantStore) ApplyDeviceOutputs(outputs []DeviceOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	for _, out := range outputs {
		out.LastUpdated = ts
		key := outputKey{deviceID: out.DeviceID, typ: out.Type}
		if prev, ok := s.outputs[key]; ok && prev.StreamID != out.StreamID {
			delete(s.byStream, prev.StreamID)
		}
		s.outputs[key] = out
		if out.StreamID != "" {
			s.byStream[out.StreamID] = out.DeviceID
		}
	}

	if s.onOutputs != nil {
		s.onOutputs(s.outputsLocked())
	}
}

// DeviceByID looks up any device ever seen, including screen-share
// pseudo-devices and devices no longer in the meeting.
func (s *ParticipantStore) DeviceByID(deviceID string) (Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.all[deviceID]
	return d, ok
}

// DeviceByStreamID resolves a transport stream id to its device via
// the device-output reverse index.
func (s *ParticipantStore) DeviceByStreamID(streamID string) (Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byStream[streamID]
	if !ok {
		return Device{}, false
	}
	d, ok := s.all[id]
	return d, ok
}

// DeviceByName returns the first current device whose display or full
// name matches. Names are not unique; callers tolerate ambiguity.
func (s *ParticipantStore) DeviceByName(name string) (Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range sortedDevices(s.current) {
		if d.DisplayName == name || d.FullName == name {
			return d, true
		}
	}
	return Device{}, false
}

// CurrentRoster returns the devices currently in the meeting,
// excluding screen-share pseudo-devices, sorted by device id.
func (s *ParticipantStore) CurrentRoster() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Device
	for _, d := range sortedDevices(s.current) {
		if !d.IsScreenShare() {
			out = append(out, d)
		}
	}
	return out
}

// Outputs returns the full output table sorted by device id and type.
func (s *ParticipantStore) Outputs() []DeviceOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputsLocked()
}

func (s *ParticipantStore) outputsLocked() []DeviceOutput {
	out := make([]DeviceOutput, 0, len(s.outputs))
	for _, o := range s.outputs {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// CurrentUserID returns the device id assigned as this client's own
// device, or "" when not yet sighted.
func (s *ParticipantStore) CurrentUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentUserID
}

func sortDevices(devs []Device) {
	sort.Slice(devs, func(i, j int) bool { return devs[i].DeviceID < devs[j].DeviceID })
}

func sortedDevices(m map[string]Device) []Device {
	out := make([]Device, 0, len(m))
	for _, d := range m {
		out = append(out, d)
	}
	sortDevices(out)
	return out
}
