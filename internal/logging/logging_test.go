package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"loud", LevelInfo, false},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		assert.Equal(t, got, tt.want)
		assert.Equal(t, err == nil, tt.ok)
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf})

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown %d", 1)
	l.Error("shown %d", 2)

	out := buf.String()
	assert.Equal(t, strings.Contains(out, "hidden"), false)
	assert.Equal(t, strings.Contains(out, "[WARN] shown 1"), true)
	assert.Equal(t, strings.Contains(out, "[ERROR] shown 2"), true)
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: LevelDebug, Output: &buf})
	l := base.WithComponent("editor").WithFields(map[string]any{"path": "a.txt", "version": 3})

	l.Info("synced")
	base.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, len(lines), 2)
	assert.Equal(t, strings.HasSuffix(lines[0], "synced {component=editor, path=a.txt, version=3}"), true)
	assert.Equal(t, strings.HasSuffix(lines[1], "plain"), true)
}

func TestNop(t *testing.T) {
	l := Nop()
	assert.Equal(t, l.Enabled(LevelError), false)
	l.WithField("k", "v").Error("nothing")

	var nilLogger *Logger
	assert.Equal(t, nilLogger.Enabled(LevelError), false)
}
