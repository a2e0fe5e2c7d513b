package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Idle", cfg.Avatar.DefaultClip)
	assert.Equal(t, "http://localhost:3000", cfg.Speech.ServerURL)
	assert.False(t, cfg.LipSync.StopSupersededAudio)
	assert.Equal(t, time.Second/60, cfg.Frame.Interval())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avatarsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
avatar:
  model_path: /srv/models/hannah.glb
  default_clip: Breathing
  clip_speed: 0.8
  expressions:
    talking:
      - expressions/M_Talking_Variations_001.glb
      - expressions/M_Talking_Variations_002.glb
    standing:
      - expressions/M_Standing_Expressions_001.glb
speech:
  timeout: 5s
lipsync:
  stop_superseded_audio: true
frame:
  rate: 30
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/models/hannah.glb", cfg.Avatar.ModelPath)
	assert.Equal(t, "Breathing", cfg.Avatar.DefaultClip)
	assert.Equal(t, float32(1.5), cfg.Avatar.Scale)
	assert.Equal(t, 0.8, cfg.Avatar.ClipSpeed)
	assert.Equal(t, []string{
		"expressions/M_Talking_Variations_001.glb",
		"expressions/M_Talking_Variations_002.glb",
	}, cfg.Avatar.Expressions.Talking)
	assert.Equal(t, []string{"expressions/M_Standing_Expressions_001.glb"}, cfg.Avatar.Expressions.Standing)
	assert.Equal(t, 5*time.Second, cfg.Speech.Timeout)
	assert.True(t, cfg.LipSync.StopSupersededAudio)
	assert.Equal(t, time.Second/30, cfg.Frame.Interval())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AVATARSYNC_SPEECH_SERVER_URL", "http://speech.internal:9000")
	t.Setenv("AVATARSYNC_LOG_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://speech.internal:9000", cfg.Speech.ServerURL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("frame:\n  rate: 0\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "frame.rate")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"scale", func(c *Config) { c.Avatar.Scale = 0 }, "avatar.scale"},
		{"clip speed", func(c *Config) { c.Avatar.ClipSpeed = -1 }, "avatar.clip_speed"},
		{"server", func(c *Config) { c.Speech.ServerURL = "" }, "speech.server_url"},
		{"timeout", func(c *Config) { c.Speech.Timeout = 0 }, "speech.timeout"},
		{"stream addr", func(c *Config) { c.Stream.Addr = "" }, "stream.addr"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	cfg := DefaultConfig()
	cfg.Stream.Enabled = false
	cfg.Stream.Addr = ""
	assert.NoError(t, cfg.Validate())
}
