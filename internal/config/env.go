package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FRIDAYX_"

type envSetter func(c *Config, value string) error

var envMapping = map[string]envSetter{
	"LOG_LEVEL": func(c *Config, v string) error {
		c.Log.Level = v
		return nil
	},
	"EDITOR_ENCODING": func(c *Config, v string) error {
		c.Editor.Encoding = v
		return nil
	},
	"EDITOR_MAX_FILE_SIZE": func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		c.Editor.MaxFileSize = n
		return nil
	},
	"EDITOR_REQUEST_TIMEOUT": func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.Editor.RequestTimeout = Duration{d}
		return nil
	},
	"BACKEND_MODE": func(c *Config, v string) error {
		c.Backend.Mode = v
		return nil
	},
	"BACKEND_URL": func(c *Config, v string) error {
		c.Backend.URL = v
		return nil
	},
	"BACKEND_TOKEN": func(c *Config, v string) error {
		c.Backend.Token = v
		return nil
	},
	"BACKEND_LISTEN": func(c *Config, v string) error {
		c.Backend.Listen = v
		return nil
	},
	"BACKEND_SECRET": func(c *Config, v string) error {
		c.Backend.Secret = v
		return nil
	},
	"STATE_PATH": func(c *Config, v string) error {
		c.State.Path = v
		return nil
	},
	"HOOKS_SCRIPTS": func(c *Config, v string) error {
		c.Hooks.Scripts = splitList(v)
		return nil
	},
	"WORKSPACE_IGNORE": func(c *Config, v string) error {
		c.Workspace.Ignore = splitList(v)
		return nil
	},
	"WORKSPACE_WATCH": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Workspace.Watch = b
		return nil
	},
}

// ApplyEnv overrides settings from FRIDAYX_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for name, set := range envMapping {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := set(c, v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
	}
	return nil
}

// splitList splits a comma-separated list, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
