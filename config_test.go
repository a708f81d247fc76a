package bridge

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8765", cfg.ConsumerURL)
	assert.Equal(t, "Notetaker", cfg.BotName)
	assert.True(t, cfg.SendMixedAudio)
	assert.True(t, cfg.SendPerParticipantAudio)
	assert.True(t, cfg.CollectCaptions)
	assert.Equal(t, 48000, cfg.AudioSampleRate)
	assert.Equal(t, 5*time.Second, cfg.SilenceCheckInterval)
	assert.Equal(t, 30*time.Second, cfg.SilenceWindow)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("BRIDGE_CONSUMER_URL", "ws://127.0.0.1:9999")
	t.Setenv("BRIDGE_SEND_MIXED_AUDIO", "false")
	t.Setenv("BRIDGE_AUDIO_SAMPLE_RATE", "16000")
	t.Setenv("BRIDGE_SILENCE_WINDOW", "1m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "ws://127.0.0.1:9999", cfg.ConsumerURL)
	assert.False(t, cfg.SendMixedAudio)
	assert.Equal(t, 16000, cfg.AudioSampleRate)
	assert.Equal(t, time.Minute, cfg.SilenceWindow)
}

func TestLoadConfigRejectsBadSampleRate(t *testing.T) {
	t.Setenv("BRIDGE_AUDIO_SAMPLE_RATE", "-1")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestConfigAudioFormat(t *testing.T) {
	cfg := Config{AudioSampleRate: 44100}
	format := cfg.AudioFormat()
	assert.Equal(t, "f32le", format.Format)
	assert.Equal(t, 44100, format.SampleRate)
	assert.Equal(t, 1, format.NumberOfChannels)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("warn", &buf)
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())

	log.Info().Msg("filtered")
	assert.Empty(t, buf.String())

	log.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")

	// Unparseable levels fall back to info.
	log = NewLogger("shouting", &buf)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
