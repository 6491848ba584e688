// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for vidtools. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import (
	"time"

	"github.com/andrew-hossack/vidtools/internal/upload"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Upload  UploadConfig  `toml:"upload"`
	Network NetworkConfig `toml:"network"`
	Logging LoggingConfig `toml:"logging"`
	State   StateConfig   `toml:"state"`
}

// UploadConfig controls the retry budget, backoff and chunking of uploads.
// chunk_size must be a multiple of 320 KiB, or "whole" to send the file in a
// single request.
type UploadConfig struct {
	MaxAttempts       int    `toml:"max_attempts"`
	BackoffBase       string `toml:"backoff_base"`
	ChunkSize         string `toml:"chunk_size"`
	RetriableStatuses []int  `toml:"retriable_statuses"`
	BandwidthLimit    string `toml:"bandwidth_limit"`
}

// NetworkConfig controls the session endpoint and HTTP client behavior.
type NetworkConfig struct {
	Endpoint       string `toml:"endpoint"`
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// StateConfig controls where session records and the upload journal live.
type StateConfig struct {
	DataDir       string `toml:"data_dir"`
	SessionMaxAge string `toml:"session_max_age"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath  string  // --config flag (empty = use default)
	Endpoint    *string // --endpoint
	ChunkSize   *string // --chunk-size
	MaxAttempts *int    // --max-attempts
}

// Resolved is the effective configuration after all override layers, with
// string settings parsed into their typed forms.
type Resolved struct {
	Config

	ConfigPath string
	Token      string `json:"-"` // bearer token from the environment; never rendered

	ChunkBytes     int64 // bytes per chunk, or upload.SingleRequest
	BandwidthBytes int64 // bytes/sec, 0 = unlimited
	BackoffBase    time.Duration
	ConnectTimeout time.Duration
	DataTimeout    time.Duration
	SessionMaxAge  time.Duration
}

// RetryPolicy returns the driver policy described by the [upload] section.
func (r *Resolved) RetryPolicy() upload.RetryPolicy {
	return upload.RetryPolicy{
		MaxAttempts:       r.Upload.MaxAttempts,
		BackoffBase:       r.BackoffBase,
		RetriableStatuses: r.Upload.RetriableStatuses,
	}
}
