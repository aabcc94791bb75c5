// Package config loads abbyd's configuration: OSC transport addresses
// and timeouts, the observer's debounce/window knobs, the client
// channel's listen address, LLM provider settings and logging. It's a
// typed Config struct with toml tags, a Default() baseline, and a
// Load(path) that overlays a TOML file (via
// github.com/pelletier/go-toml/v2) on top of the defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// OSC holds the DAW bridge's transport configuration (spec.md §6).
type OSC struct {
	LocalPort  int    `toml:"local_port"`
	RemoteHost string `toml:"remote_host"`
	RemotePort int    `toml:"remote_port"`
}

// Timeouts holds the request/response shim's per-call timeouts
// (spec.md §5).
type Timeouts struct {
	LivenessSeconds int `toml:"liveness_seconds"`
	QuerySeconds    int `toml:"query_seconds"`
}

// Liveness returns the configured liveness timeout as a duration.
func (t Timeouts) Liveness() time.Duration {
	return time.Duration(t.LivenessSeconds) * time.Second
}

// Query returns the configured per-query timeout as a duration.
func (t Timeouts) Query() time.Duration {
	return time.Duration(t.QuerySeconds) * time.Second
}

// Observer holds the parameter observer's debounce and history window
// (spec.md §6).
type Observer struct {
	DebounceMillis  int `toml:"debounce_millis"`
	HistoryMinutes  int `toml:"history_minutes"`
}

// Debounce returns the configured debounce window as a duration.
func (o Observer) Debounce() time.Duration {
	return time.Duration(o.DebounceMillis) * time.Millisecond
}

// HistoryWindow returns the configured history retention window.
func (o Observer) HistoryWindow() time.Duration {
	return time.Duration(o.HistoryMinutes) * time.Minute
}

// Channel holds the client channel's (C8) listen configuration.
type Channel struct {
	ListenAddress string `toml:"listen_address"`
}

// LLM holds the completion provider's connection settings.
type LLM struct {
	Provider       string `toml:"provider"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	APIKeyEnv      string `toml:"api_key_env"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// APIKey resolves the actual API key from the environment variable
// named by APIKeyEnv.
func (l LLM) APIKey() string {
	if l.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(l.APIKeyEnv)
}

// Logging holds ambient logging configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Config is the top-level, fully-resolved configuration for abbyd.
type Config struct {
	DataDir  string   `toml:"data_dir"`
	OSC      OSC      `toml:"osc"`
	Timeouts Timeouts `toml:"timeouts"`
	Observer Observer `toml:"observer"`
	Channel  Channel  `toml:"channel"`
	LLM      LLM      `toml:"llm"`
	Logging  Logging  `toml:"logging"`
}

// Default returns abby's baseline configuration, matching every
// default named in spec.md §6.
func Default() Config {
	return Config{
		DataDir: "~/.abby",
		OSC: OSC{
			LocalPort:  11001,
			RemoteHost: "127.0.0.1",
			RemotePort: 11000,
		},
		Timeouts: Timeouts{
			LivenessSeconds: 5,
			QuerySeconds:    2,
		},
		Observer: Observer{
			DebounceMillis: 500,
			HistoryMinutes: 30,
		},
		Channel: Channel{
			ListenAddress: "127.0.0.1:8765",
		},
		LLM: LLM{
			Provider:       "anthropic",
			BaseURL:        "https://api.anthropic.com",
			Model:          "claude-sonnet-4-5",
			APIKeyEnv:      "ANTHROPIC_API_KEY",
			TimeoutSeconds: 60,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load resolves a configuration: it starts from Default(), then
// overlays the TOML file at path (if path is empty, the default
// per-user location ~/.abby/abbyd.toml is tried; a missing file at
// either location is not an error — the defaults stand alone).
func Load(path string) (*Config, error) {
	cfg := Default()

	resolved, exists, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	if exists {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", resolved, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", resolved, err)
		}
	}

	cfg.DataDir, err = expandHome(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c Config) validate() error {
	if c.OSC.LocalPort <= 0 || c.OSC.LocalPort > 65535 {
		return fmt.Errorf("config: osc.local_port out of range: %d", c.OSC.LocalPort)
	}
	if c.OSC.RemotePort <= 0 || c.OSC.RemotePort > 65535 {
		return fmt.Errorf("config: osc.remote_port out of range: %d", c.OSC.RemotePort)
	}
	if c.Timeouts.LivenessSeconds <= 0 {
		return errors.New("config: timeouts.liveness_seconds must be positive")
	}
	if c.Timeouts.QuerySeconds <= 0 {
		return errors.New("config: timeouts.query_seconds must be positive")
	}
	if c.Observer.DebounceMillis < 0 {
		return errors.New("config: observer.debounce_millis must not be negative")
	}
	if c.Observer.HistoryMinutes <= 0 {
		return errors.New("config: observer.history_minutes must be positive")
	}
	return nil
}

func resolvePath(path string) (resolved string, exists bool, err error) {
	if path == "" {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", false, nil
		}
		path = filepath.Join(home, ".abby", "abbyd.toml")
	} else {
		path, err = expandHome(path)
		if err != nil {
			return "", false, err
		}
	}

	_, statErr := os.Stat(path)
	if statErr == nil {
		return path, true, nil
	}
	if errors.Is(statErr, fs.ErrNotExist) {
		return path, false, nil
	}
	return "", false, fmt.Errorf("config: stat %s: %w", path, statErr)
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
