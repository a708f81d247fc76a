package bridge

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Config is the bridge's runtime configuration, loaded from the
// environment.
type Config struct {
	// ConsumerURL is the local websocket endpoint the recording
	// backend listens on.
	ConsumerURL string `env:"BRIDGE_CONSUMER_URL" envDefault:"ws://localhost:8765"`

	// BotName is this client's display name in the meeting.
	BotName string `env:"BRIDGE_BOT_NAME" envDefault:"Notetaker"`

	// Feature toggles. Disabled paths drop their data silently.
	SendMixedAudio          bool `env:"BRIDGE_SEND_MIXED_AUDIO" envDefault:"true"`
	SendPerParticipantAudio bool `env:"BRIDGE_SEND_PER_PARTICIPANT_AUDIO" envDefault:"true"`
	CollectCaptions         bool `env:"BRIDGE_COLLECT_CAPTIONS" envDefault:"true"`

	// Outbound audio format.
	AudioSampleRate int `env:"BRIDGE_AUDIO_SAMPLE_RATE" envDefault:"48000"`

	// Periodic task intervals.
	SilenceCheckInterval time.Duration `env:"BRIDGE_SILENCE_CHECK_INTERVAL" envDefault:"5s"`
	SilenceWindow        time.Duration `env:"BRIDGE_SILENCE_WINDOW" envDefault:"30s"`
	MemoryCheckInterval  time.Duration `env:"BRIDGE_MEMORY_CHECK_INTERVAL" envDefault:"60s"`
	MemoryThresholdMB    uint64        `env:"BRIDGE_MEMORY_THRESHOLD_MB" envDefault:"0"`
	UICheckInterval      time.Duration `env:"BRIDGE_UI_CHECK_INTERVAL" envDefault:"10s"`

	LogLevel string `env:"BRIDGE_LOG_LEVEL" envDefault:"info"`
}

// LoadConfig parses configuration from the environment.
func LoadConfig() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if c.AudioSampleRate <= 0 {
		return Config{}, fmt.Errorf("invalid audio sample rate %d", c.AudioSampleRate)
	}
	return c, nil
}

// AudioFormat returns the wire format announced to the consumer.
func (c Config) AudioFormat() AudioFormatSpec {
	return AudioFormatSpec{
		Format:           "f32le",
		SampleRate:       c.AudioSampleRate,
		NumberOfChannels: 1,
	}
}

// NewLogger builds a structured JSON logger at the given level.
// Unparseable levels fall back to info.
func NewLogger(level string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
