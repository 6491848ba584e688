package config

import (
	"slices"

	"github.com/andrew-hossack/vidtools/internal/upload"
)

// Default values for configuration options. These are layer 0 of the
// override chain.
const (
	defaultMaxAttempts    = upload.DefaultMaxAttempts
	defaultBackoffBase    = "1s"
	defaultChunkSize      = "10MiB"
	defaultBandwidthLimit = "0"
	defaultConnectTimeout = "10s"
	defaultDataTimeout    = "60s"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultSessionMaxAge  = "168h"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Upload:  defaultUploadConfig(),
		Network: defaultNetworkConfig(),
		Logging: defaultLoggingConfig(),
		State:   defaultStateConfig(),
	}
}

func defaultUploadConfig() UploadConfig {
	return UploadConfig{
		MaxAttempts:       defaultMaxAttempts,
		BackoffBase:       defaultBackoffBase,
		ChunkSize:         defaultChunkSize,
		RetriableStatuses: slices.Clone(upload.DefaultRetriableStatuses),
		BandwidthLimit:    defaultBandwidthLimit,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: defaultConnectTimeout,
		DataTimeout:    defaultDataTimeout,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultStateConfig() StateConfig {
	return StateConfig{
		SessionMaxAge: defaultSessionMaxAge,
	}
}
