// Package config provides configuration management for avatarsync
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Avatar  AvatarConfig  `mapstructure:"avatar"`
	Speech  SpeechConfig  `mapstructure:"speech"`
	LipSync LipSyncConfig `mapstructure:"lipsync"`
	Frame   FrameConfig   `mapstructure:"frame"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Log     LogConfig     `mapstructure:"log"`
}

// AvatarConfig configures the character model and its placement
type AvatarConfig struct {
	ModelPath   string  `mapstructure:"model_path"`
	DefaultClip string  `mapstructure:"default_clip"`
	Scale       float32 `mapstructure:"scale"`
	OffsetY     float32 `mapstructure:"offset_y"`
	WatchModel  bool    `mapstructure:"watch_model"`
	ClipSpeed   float64 `mapstructure:"clip_speed"`

	Expressions ExpressionsConfig `mapstructure:"expressions"`
}

// ExpressionsConfig lists expression animation files retargeted onto the avatar
type ExpressionsConfig struct {
	Talking  []string `mapstructure:"talking"`  // one plays per reply
	Standing []string `mapstructure:"standing"` // looped while idle when default_clip is empty
}

// SpeechConfig configures the chat/speech backend
type SpeechConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Greeting  string        `mapstructure:"greeting"` // sent once after the model loads; empty disables
}

// LipSyncConfig configures viseme scheduling
type LipSyncConfig struct {
	StopSupersededAudio bool `mapstructure:"stop_superseded_audio"`
}

// FrameConfig configures the render loop
type FrameConfig struct {
	Rate int `mapstructure:"rate"` // frames per second
}

// Interval is the time between frames.
func (f FrameConfig) Interval() time.Duration {
	if f.Rate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(f.Rate)
}

// StreamConfig configures the frame-state WebSocket stream
type StreamConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Avatar: AvatarConfig{
			ModelPath:   "models/avatar.glb",
			DefaultClip: "Idle",
			Scale:       1.5,
			OffsetY:     -1.2,
			ClipSpeed:   1.0,
		},
		Speech: SpeechConfig{
			ServerURL: "http://localhost:3000",
			Timeout:   30 * time.Second,
			Greeting:  "Hey! Ready to help you!",
		},
		Frame: FrameConfig{
			Rate: 60,
		},
		Stream: StreamConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8765",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path (if non-empty), avatarsync.yaml in the
// working directory, and AVATARSYNC_* environment variables, layered over
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("avatarsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AVATARSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply even when
// no config file mentions them.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("avatar.model_path", cfg.Avatar.ModelPath)
	v.SetDefault("avatar.default_clip", cfg.Avatar.DefaultClip)
	v.SetDefault("avatar.scale", cfg.Avatar.Scale)
	v.SetDefault("avatar.offset_y", cfg.Avatar.OffsetY)
	v.SetDefault("avatar.watch_model", cfg.Avatar.WatchModel)
	v.SetDefault("avatar.clip_speed", cfg.Avatar.ClipSpeed)
	v.SetDefault("avatar.expressions.talking", cfg.Avatar.Expressions.Talking)
	v.SetDefault("avatar.expressions.standing", cfg.Avatar.Expressions.Standing)
	v.SetDefault("speech.server_url", cfg.Speech.ServerURL)
	v.SetDefault("speech.timeout", cfg.Speech.Timeout)
	v.SetDefault("speech.greeting", cfg.Speech.Greeting)
	v.SetDefault("lipsync.stop_superseded_audio", cfg.LipSync.StopSupersededAudio)
	v.SetDefault("frame.rate", cfg.Frame.Rate)
	v.SetDefault("stream.enabled", cfg.Stream.Enabled)
	v.SetDefault("stream.addr", cfg.Stream.Addr)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.dir", cfg.Log.Dir)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Avatar.Scale <= 0 {
		return fmt.Errorf("avatar.scale must be positive, got %v", c.Avatar.Scale)
	}
	if c.Avatar.ClipSpeed <= 0 {
		return fmt.Errorf("avatar.clip_speed must be positive, got %v", c.Avatar.ClipSpeed)
	}
	if c.Frame.Rate <= 0 || c.Frame.Rate > 240 {
		return fmt.Errorf("frame.rate must be in 1..240, got %d", c.Frame.Rate)
	}
	if c.Speech.ServerURL == "" {
		return errors.New("speech.server_url is required")
	}
	if c.Speech.Timeout <= 0 {
		return fmt.Errorf("speech.timeout must be positive, got %s", c.Speech.Timeout)
	}
	if c.Stream.Enabled && c.Stream.Addr == "" {
		return errors.New("stream.addr is required when stream.enabled is set")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}
