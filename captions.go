package bridge

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// CaptionRecord is one caption utterance. Later arrivals with the same
// caption id replace earlier ones; version ordering is not verified on
// arrival, so a stale version arriving late wins (last-write-wins,
// matching the platform's observed behavior).
type CaptionRecord struct {
	CaptionID  uint64 `json:"captionId"`
	DeviceID   string `json:"deviceId"`
	Version    uint64 `json:"version"`
	IsFinal    bool   `json:"isFinal"`
	Text       string `json:"text"`
	LanguageID uint64 `json:"languageId"`
}

// CaptionStoreConfig configures a CaptionStore.
type CaptionStoreConfig struct {
	Logger    zerolog.Logger
	OnCaption func(CaptionRecord) // invoked on every upsert
}

// CaptionStore normalizes decoded caption messages into CaptionRecord
// upserts keyed by caption id.
type CaptionStore struct {
	mu        sync.Mutex
	log       zerolog.Logger
	captions  map[uint64]CaptionRecord
	onCaption func(CaptionRecord)
}

// NewCaptionStore creates an empty caption store.
func NewCaptionStore(config CaptionStoreConfig) *CaptionStore {
	return &CaptionStore{
		log:       config.Logger,
		captions:  make(map[uint64]CaptionRecord),
		onCaption: config.OnCaption,
	}
}

// Upsert stores the caption and fires the handler.
func (cs *CaptionStore) Upsert(caption CaptionRecord) {
	cs.mu.Lock()
	cs.captions[caption.CaptionID] = caption
	cs.mu.Unlock()

	if cs.onCaption != nil {
		cs.onCaption(caption)
	}
}

// Caption returns the current version of the given caption id.
func (cs *CaptionStore) Caption(captionID uint64) (CaptionRecord, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	c, ok := cs.captions[captionID]
	return c, ok
}

// Captions returns all captions sorted by caption id.
func (cs *CaptionStore) Captions() []CaptionRecord {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	out := make([]CaptionRecord, 0, len(cs.captions))
	for _, c := range cs.captions {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CaptionID < out[j].CaptionID })
	return out
}
