package bridge

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// VideoTrackRecord is a locally observed media track bound to a
// transport stream.
type VideoTrackRecord struct {
	TrackID       string
	StreamID      string
	IsScreenShare bool
	FirstSeenAt   time.Time // preserved across re-upserts of the same track
}

// TrackStoreConfig configures a TrackStore.
type TrackStoreConfig struct {
	Logger zerolog.Logger
	Now    func() time.Time // defaults to time.Now
}

// TrackStore tracks live video tracks and selects the active one for
// relay: the most recently started screen share, falling back to the
// most recently started camera track. The selection is cached and
// invalidated on any upsert or delete.
type TrackStore struct {
	mu  sync.Mutex
	log zerolog.Logger
	now func() time.Time

	tracks map[string]VideoTrackRecord

	selected      VideoTrackRecord
	selectedOK    bool
	selectedValid bool
}

// NewTrackStore creates an empty track store.
func NewTrackStore(config TrackStoreConfig) *TrackStore {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &TrackStore{
		log:    config.Logger,
		now:    now,
		tracks: make(map[string]VideoTrackRecord),
	}
}

// Upsert records a track observation. FirstSeenAt is set on first
// observation only and never reset by later upserts.
func (ts *TrackStore) Upsert(trackID, streamID string, isScreenShare bool) VideoTrackRecord {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	rec, ok := ts.tracks[trackID]
	if !ok {
		rec = VideoTrackRecord{TrackID: trackID, FirstSeenAt: ts.now()}
		ts.log.Debug().Str("track_id", trackID).Str("stream_id", streamID).
			Bool("screen_share", isScreenShare).Msg("video track observed")
	}
	rec.StreamID = streamID
	rec.IsScreenShare = isScreenShare
	ts.tracks[trackID] = rec
	ts.selectedValid = false
	return rec
}

// Remove deletes a track when the underlying media track ends.
func (ts *TrackStore) Remove(trackID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, ok := ts.tracks[trackID]; !ok {
		return
	}
	delete(ts.tracks, trackID)
	ts.selectedValid = false
	ts.log.Debug().Str("track_id", trackID).Msg("video track removed")
}

// SelectActiveVideoTrack returns the track currently chosen for relay,
// or false when no track is live. Screen shares always outrank camera
// tracks regardless of recency.
func (ts *TrackStore) SelectActiveVideoTrack() (VideoTrackRecord, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.selectedValid {
		ts.selected, ts.selectedOK = ts.computeSelection()
		ts.selectedValid = true
	}
	return ts.selected, ts.selectedOK
}

func (ts *TrackStore) computeSelection() (VideoTrackRecord, bool) {
	var best VideoTrackRecord
	var found, foundShare bool

	for _, rec := range ts.tracks {
		if foundShare && !rec.IsScreenShare {
			continue
		}
		better := !found ||
			(rec.IsScreenShare && !foundShare) ||
			(rec.IsScreenShare == foundShare && rec.FirstSeenAt.After(best.FirstSeenAt)) ||
			(rec.IsScreenShare == foundShare && rec.FirstSeenAt.Equal(best.FirstSeenAt) && rec.TrackID < best.TrackID)
		if better {
			best = rec
			found = true
			foundShare = rec.IsScreenShare
		}
	}

	return best, found
}

// Tracks returns a snapshot of all live track records.
func (ts *TrackStore) Tracks() []VideoTrackRecord {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	out := make([]VideoTrackRecord, 0, len(ts.tracks))
	for _, rec := range ts.tracks {
		out = append(out, rec)
	}
	return out
}

// Len returns the number of live tracks.
func (ts *TrackStore) Len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.tracks)
}
