package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/noticesync/config"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestSecureHandler_MasksSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Level: "info", Format: "json"}, &buf)

	logger.Info("login step",
		"roll_no", "23XX10012",
		"password", "hunter2",
		"otp", "481516",
		"security_answer", "blue",
		"x-api-key", "abc",
	)

	m := decodeLine(t, &buf)
	assert.Equal(t, "23XX10012", m["roll_no"])
	assert.Equal(t, MaskValue, m["password"])
	assert.Equal(t, MaskValue, m["otp"])
	assert.Equal(t, MaskValue, m["security_answer"])
	assert.Equal(t, MaskValue, m["x-api-key"])
}

func TestSecureHandler_GroupsAndWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Format: "json"}, &buf).With("delivery_secret", "s3cr3t")

	logger.Info("request", slog.Group("creds", slog.String("password", "pw"), slog.String("user", "u")))

	m := decodeLine(t, &buf)
	assert.Equal(t, MaskValue, m["delivery_secret"])
	group, ok := m["creds"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, MaskValue, group["password"])
	assert.Equal(t, "u", group["user"])
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LogConfig{Level: "warn", Format: "text"}, &buf)

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}
