// Package config loads fridayx settings from a TOML file with environment
// overrides.
//
// Precedence, lowest first: built-in defaults, the config file, then
// FRIDAYX_* environment variables. A missing config file is not an error.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/canakyuz-co/fridayx/internal/logging"
	"github.com/canakyuz-co/fridayx/internal/offset"
)

// Backend modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Config holds all settings.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Editor    EditorConfig    `toml:"editor"`
	Backend   BackendConfig   `toml:"backend"`
	State     StateConfig     `toml:"state"`
	Hooks     HooksConfig     `toml:"hooks"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Workspace WorkspaceConfig `toml:"workspace"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// EditorConfig configures buffer synchronization.
type EditorConfig struct {
	// Encoding is the byte encoding the backend addresses deltas in.
	Encoding string `toml:"encoding"`
	// MaxFileSize is the read limit in bytes; larger files open truncated.
	MaxFileSize int64 `toml:"max_file_size"`
	// RequestTimeout bounds each backend call.
	RequestTimeout Duration `toml:"request_timeout"`
}

// BackendConfig selects and configures the buffer backend.
type BackendConfig struct {
	Mode   string `toml:"mode"`
	URL    string `toml:"url"`
	Token  string `toml:"token"`
	Listen string `toml:"listen"`
	Secret string `toml:"secret"`
}

// StateConfig configures persisted client state.
type StateConfig struct {
	// Path is the SQLite database file. Empty keeps state in memory.
	Path string `toml:"path"`
}

// HooksConfig lists Lua scripts run after saves.
type HooksConfig struct {
	Scripts []string `toml:"scripts"`
}

// MetricsConfig configures latency tracking.
type MetricsConfig struct {
	ReportEvery int `toml:"report_every"`
	MaxSamples  int `toml:"max_samples"`
}

// WorkspaceConfig configures file listing and watching.
type WorkspaceConfig struct {
	Ignore []string `toml:"ignore"`
	Watch  bool     `toml:"watch"`
}

// Duration is a time.Duration written as a string such as "10s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Editor: EditorConfig{
			Encoding:       string(offset.UTF8),
			MaxFileSize:    1 << 20,
			RequestTimeout: Duration{10 * time.Second},
		},
		Backend: BackendConfig{
			Mode:   ModeLocal,
			Listen: "127.0.0.1:7420",
		},
		Metrics: MetricsConfig{
			ReportEvery: 20,
			MaxSamples:  200,
		},
		Workspace: WorkspaceConfig{
			Ignore: []string{".git", "node_modules"},
			Watch:  true,
		},
	}
}

// Load reads path over the defaults, applies environment overrides, and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := cfg.decode(path, data); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode("<input>", data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(source string, data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		perr := &ParseError{Path: source, Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return perr
	}
	return nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return &ValidationError{Setting: "log.level", Message: err.Error()}
	}
	if _, err := offset.ParseEncoding(c.Editor.Encoding); err != nil {
		return &ValidationError{Setting: "editor.encoding", Message: err.Error()}
	}
	if c.Editor.MaxFileSize <= 0 {
		return &ValidationError{Setting: "editor.max_file_size", Message: "must be positive"}
	}
	if c.Editor.RequestTimeout.Duration <= 0 {
		return &ValidationError{Setting: "editor.request_timeout", Message: "must be positive"}
	}

	switch c.Backend.Mode {
	case ModeLocal:
	case ModeRemote:
		if c.Backend.URL == "" {
			return &ValidationError{Setting: "backend.url", Message: "required in remote mode"}
		}
		if !strings.HasPrefix(c.Backend.URL, "ws://") && !strings.HasPrefix(c.Backend.URL, "wss://") {
			return &ValidationError{Setting: "backend.url", Message: "must be a ws:// or wss:// url"}
		}
	default:
		return &ValidationError{Setting: "backend.mode", Message: fmt.Sprintf("unknown mode %q", c.Backend.Mode)}
	}

	if c.Metrics.ReportEvery <= 0 {
		return &ValidationError{Setting: "metrics.report_every", Message: "must be positive"}
	}
	if c.Metrics.MaxSamples <= 0 {
		return &ValidationError{Setting: "metrics.max_samples", Message: "must be positive"}
	}
	return nil
}
