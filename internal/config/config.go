// Package config provides the configuration schema and loader for the teddy
// bear backend.
package config

import "time"

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader], with secrets overlaid from the
// environment via [ApplyEnv].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8585").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// UpstreamConfig selects and authenticates the realtime API the relay
// bridges to.
type UpstreamConfig struct {
	// APIKey authenticates against the realtime API. Usually supplied via
	// the OPENAI_API_KEY environment variable rather than the config file.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the default websocket endpoint. Leave empty for the
	// OpenAI production endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the realtime model (e.g., "gpt-4o-realtime-preview").
	Model string `yaml:"model"`

	// Voice is the voice identity of the bear (e.g., "alloy").
	Voice string `yaml:"voice"`

	// Instructions is the system prompt establishing the bear's persona.
	Instructions string `yaml:"instructions"`

	// WatchdogSeconds bounds one relay exchange from session open to
	// response completion.
	WatchdogSeconds int `yaml:"watchdog_seconds"`
}

// Watchdog returns the configured watchdog as a duration, or zero when unset.
func (u UpstreamConfig) Watchdog() time.Duration {
	return time.Duration(u.WatchdogSeconds) * time.Second
}

// SegmenterConfig tunes the client-side utterance segmenter.
type SegmenterConfig struct {
	// SilenceThreshold is the normalised RMS level below which a frame
	// counts as silence.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// SilenceTimeoutMs is how long silence must persist before the open
	// utterance is finalised.
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`

	// SampleRate is the capture sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`
}

// SilenceTimeout returns the configured timeout as a duration, or zero when
// unset.
func (s SegmenterConfig) SilenceTimeout() time.Duration {
	return time.Duration(s.SilenceTimeoutMs) * time.Millisecond
}

// Default returns a Config populated with the built-in defaults. Loading a
// file overlays it; missing fields keep these values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8585",
			LogLevel:   LogInfo,
		},
		Upstream: UpstreamConfig{
			Model: "gpt-4o-realtime-preview",
			Voice: "alloy",
			Instructions: "You are a magical talking teddy bear speaking with a small child. " +
				"Answer warmly, simply, and briefly, and never discuss frightening topics.",
			WatchdogSeconds: 15,
		},
		Segmenter: SegmenterConfig{
			SilenceThreshold: 0.01,
			SilenceTimeoutMs: 1500,
			SampleRate:       16000,
		},
	}
}
