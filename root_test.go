package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew-hossack/vidtools/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests must either:
//   - Set globals AFTER newRootCmd() returns (direct function tests), or
//   - Use cmd.SetArgs() + cmd.Execute() to let Cobra parse flags.

// saveGlobals restores the CLI globals a test mutates.
func saveGlobals(t *testing.T) {
	t.Helper()

	oldCfg, oldVerbose, oldQuiet, oldJSON := resolvedCfg, flagVerbose, flagQuiet, flagJSON

	t.Cleanup(func() {
		resolvedCfg = oldCfg
		flagVerbose = oldVerbose
		flagQuiet = oldQuiet
		flagJSON = oldJSON
	})
}

func resolvedWithLogging(level, format string) *config.Resolved {
	r := &config.Resolved{Config: *config.DefaultConfig()}
	r.Logging.LogLevel = level
	r.Logging.LogFormat = format

	return r
}

func TestBuildLogger_DefaultIsInfo(t *testing.T) {
	saveGlobals(t)

	resolvedCfg = nil
	flagVerbose, flagQuiet = false, false

	logger := buildLogger(&bytes.Buffer{})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_ConfigLevel(t *testing.T) {
	saveGlobals(t)

	resolvedCfg = resolvedWithLogging("warn", "text")
	flagVerbose, flagQuiet = false, false

	logger := buildLogger(&bytes.Buffer{})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestBuildLogger_FlagsOverrideConfig(t *testing.T) {
	saveGlobals(t)

	resolvedCfg = resolvedWithLogging("error", "text")
	flagVerbose, flagQuiet = true, false

	logger := buildLogger(&bytes.Buffer{})
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))

	resolvedCfg = resolvedWithLogging("debug", "text")
	flagVerbose, flagQuiet = false, true

	logger = buildLogger(&bytes.Buffer{})
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelError))
}

func TestBuildLogger_Format(t *testing.T) {
	saveGlobals(t)

	flagVerbose, flagQuiet = false, false

	tests := []struct {
		format   string
		wantJSON bool
	}{
		{"json", true},
		{"text", false},
		{"auto", true}, // a buffer is not a terminal
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			resolvedCfg = resolvedWithLogging("info", tt.format)

			var buf bytes.Buffer
			buildLogger(&buf).Info("uploading file", slog.String("path", "/v/a.mp4"))

			var decoded map[string]any
			isJSON := json.Unmarshal(buf.Bytes(), &decoded) == nil

			assert.Equal(t, tt.wantJSON, isJSON, "output: %s", buf.String())
			assert.Contains(t, buf.String(), "/v/a.mp4")
		})
	}
}

func TestNewHTTPClient_Timeouts(t *testing.T) {
	r := &config.Resolved{ConnectTimeout: 3 * time.Second, DataTimeout: 7 * time.Second}

	c := newHTTPClient(r)
	assert.Zero(t, c.Timeout, "chunk uploads must not have an overall deadline")

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, tr.ResponseHeaderTimeout)
	assert.Equal(t, 3*time.Second, tr.TLSHandshakeTimeout)
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"upload", "sessions", "history", "config"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}
