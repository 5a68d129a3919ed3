package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, overlays environment
// variables, and returns a validated [Config]. When path is empty the
// defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults and
// validates the result. The environment is not consulted. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// ApplyEnv overlays well-known environment variables onto cfg. Environment
// values take precedence over the file so secrets stay out of config files.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("TEDDY_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("TEDDY_MODEL"); v != "" {
		cfg.Upstream.Model = v
	}
	if v := os.Getenv("TEDDY_VOICE"); v != "" {
		cfg.Upstream.Voice = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr must not be empty"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Upstream.APIKey == "" {
		errs = append(errs, errors.New("upstream.api_key must be set (or OPENAI_API_KEY exported)"))
	}
	if cfg.Upstream.Model == "" {
		errs = append(errs, errors.New("upstream.model must not be empty"))
	}
	if cfg.Upstream.WatchdogSeconds < 0 {
		errs = append(errs, fmt.Errorf("upstream.watchdog_seconds must not be negative, got %d", cfg.Upstream.WatchdogSeconds))
	}

	if cfg.Segmenter.SilenceThreshold < 0 || cfg.Segmenter.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("segmenter.silence_threshold must be within [0, 1], got %g", cfg.Segmenter.SilenceThreshold))
	}
	if cfg.Segmenter.SilenceTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("segmenter.silence_timeout_ms must not be negative, got %d", cfg.Segmenter.SilenceTimeoutMs))
	}
	if cfg.Segmenter.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("segmenter.sample_rate must be positive, got %d", cfg.Segmenter.SampleRate))
	}

	return errors.Join(errs...)
}
