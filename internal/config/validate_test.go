package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return DefaultConfig()
}

func TestValidate_Upload(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*UploadConfig)
		wantErr string
	}{
		{"max_attempts zero", func(u *UploadConfig) { u.MaxAttempts = 0 }, "upload.max_attempts"},
		{"max_attempts too high", func(u *UploadConfig) { u.MaxAttempts = 101 }, "upload.max_attempts"},
		{"backoff unparseable", func(u *UploadConfig) { u.BackoffBase = "soon" }, "upload.backoff_base"},
		{"backoff zero", func(u *UploadConfig) { u.BackoffBase = "0s" }, "must be positive"},
		{"chunk unaligned", func(u *UploadConfig) { u.ChunkSize = "1MB" }, "multiple of 320 KiB"},
		{"chunk too large", func(u *UploadConfig) { u.ChunkSize = "100MiB" }, "at most 60MiB"},
		{"chunk garbage", func(u *UploadConfig) { u.ChunkSize = "big" }, "upload.chunk_size"},
		{"status out of range", func(u *UploadConfig) { u.RetriableStatuses = []int{503, 200} }, "200 is not an HTTP error status"},
		{"bandwidth garbage", func(u *UploadConfig) { u.BandwidthLimit = "quick" }, "upload.bandwidth_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg.Upload)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ChunkSizeAccepted(t *testing.T) {
	for _, s := range []string{"whole", "0", "320KiB", "10MiB", "60MiB"} {
		t.Run(s, func(t *testing.T) {
			cfg := validConfig()
			cfg.Upload.ChunkSize = s
			assert.NoError(t, Validate(cfg))
		})
	}
}

func TestValidate_Network(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*NetworkConfig)
		wantErr string
	}{
		{"relative endpoint", func(n *NetworkConfig) { n.Endpoint = "/sessions" }, "absolute http(s) URL"},
		{"ftp endpoint", func(n *NetworkConfig) { n.Endpoint = "ftp://host/x" }, "absolute http(s) URL"},
		{"connect timeout low", func(n *NetworkConfig) { n.ConnectTimeout = "100ms" }, "network.connect_timeout"},
		{"data timeout garbage", func(n *NetworkConfig) { n.DataTimeout = "long" }, "network.data_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg.Network)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	cfg := validConfig()
	cfg.Network.Endpoint = "http://localhost:8080/sessions"
	assert.NoError(t, Validate(cfg))
}

func TestValidate_LoggingAndState(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.LogLevel = "verbose"
	cfg.Logging.LogFormat = "xml"
	cfg.State.SessionMaxAge = "5m"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.log_level")
	assert.Contains(t, err.Error(), "logging.log_format")
	assert.Contains(t, err.Error(), "state.session_max_age")
}
