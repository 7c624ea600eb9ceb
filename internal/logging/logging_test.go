package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetup_JSONConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := Setup(Config{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)
	defer cleanup()

	logger.Debug("hidden")
	logger.Info("export finished", "table", "users", "rows", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"export finished"`)
	assert.Contains(t, out, `"table":"users"`)
}

func TestSetup_UnknownFormat(t *testing.T) {
	_, _, err := Setup(Config{Format: "xml"}, nil)
	assert.Error(t, err)
}

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h).With("job", "nightly")

	logger.Info("started")
	logger.Warn("skipping record")

	assert.Contains(t, a.String(), "started")
	assert.Contains(t, a.String(), "skipping record")
	assert.NotContains(t, b.String(), "started")
	assert.Contains(t, b.String(), "job=nightly")
}
