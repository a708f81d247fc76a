package bridge

import (
	"sync"

	"github.com/rs/zerolog"
)

// ChatMessageRecord is one chat message, immutable once observed.
// Timestamp is in whole seconds.
type ChatMessageRecord struct {
	MessageID string `json:"messageId"`
	DeviceID  string `json:"deviceId"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}

// ChatLogConfig configures a ChatLog.
type ChatLogConfig struct {
	Logger    zerolog.Logger
	OnMessage func(ChatMessageRecord) // invoked for first sightings only
}

// ChatLog normalizes decoded chat messages, deduplicating by message
// id so re-delivered messages are observed exactly once.
type ChatLog struct {
	mu        sync.Mutex
	log       zerolog.Logger
	seen      map[string]struct{}
	messages  []ChatMessageRecord
	onMessage func(ChatMessageRecord)
}

// NewChatLog creates an empty chat log.
func NewChatLog(config ChatLogConfig) *ChatLog {
	return &ChatLog{
		log:       config.Logger,
		seen:      make(map[string]struct{}),
		onMessage: config.OnMessage,
	}
}

// Add records the message. It returns false when the message id was
// already observed, in which case the handler does not fire.
func (cl *ChatLog) Add(msg ChatMessageRecord) bool {
	cl.mu.Lock()
	if _, dup := cl.seen[msg.MessageID]; dup {
		cl.mu.Unlock()
		return false
	}
	cl.seen[msg.MessageID] = struct{}{}
	cl.messages = append(cl.messages, msg)
	cl.mu.Unlock()

	if cl.onMessage != nil {
		cl.onMessage(msg)
	}
	return true
}

// Messages returns all messages in arrival order.
func (cl *ChatLog) Messages() []ChatMessageRecord {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return append([]ChatMessageRecord(nil), cl.messages...)
}
