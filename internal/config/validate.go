package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/andrew-hossack/vidtools/internal/upload"
)

// Validation range constants.
const (
	minMaxAttempts    = 1
	maxMaxAttempts    = 100
	chunkAlignBytes   = 327680     // 320 KiB alignment for upload chunks
	maxChunkBytes     = 62_914_560 // 60 MiB
	minStatusCode     = 400
	maxStatusCode     = 599
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
	minSessionMaxAge  = 1 * time.Hour
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateUpload(&cfg.Upload)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateState(&cfg.State)...)

	return errors.Join(errs...)
}

func validateUpload(u *UploadConfig) []error {
	var errs []error

	if u.MaxAttempts < minMaxAttempts || u.MaxAttempts > maxMaxAttempts {
		errs = append(errs, fmt.Errorf("upload.max_attempts: must be between %d and %d, got %d",
			minMaxAttempts, maxMaxAttempts, u.MaxAttempts))
	}

	if d, err := time.ParseDuration(u.BackoffBase); err != nil {
		errs = append(errs, fmt.Errorf("upload.backoff_base: invalid duration %q: %w", u.BackoffBase, err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("upload.backoff_base: must be positive, got %s", u.BackoffBase))
	}

	errs = append(errs, validateChunkSize(u.ChunkSize)...)

	for _, code := range u.RetriableStatuses {
		if code < minStatusCode || code > maxStatusCode {
			errs = append(errs, fmt.Errorf("upload.retriable_statuses: %d is not an HTTP error status", code))
		}
	}

	if _, err := ParseBandwidth(u.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("upload.bandwidth_limit: %w", err))
	}

	return errs
}

func validateChunkSize(s string) []error {
	bytes, err := ParseChunkSize(s)
	if err != nil {
		return []error{fmt.Errorf("upload.chunk_size: %w", err)}
	}

	if bytes == upload.SingleRequest {
		return nil
	}

	if bytes > maxChunkBytes {
		return []error{fmt.Errorf("upload.chunk_size: must be at most 60MiB, got %s", s)}
	}

	if bytes%chunkAlignBytes != 0 {
		return []error{fmt.Errorf(
			"upload.chunk_size: must be a multiple of 320 KiB (%d bytes), got %s (%d bytes)",
			chunkAlignBytes, s, bytes)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if n.Endpoint != "" {
		if err := validateEndpoint(n.Endpoint); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, validateMinDuration("network.connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateMinDuration("network.data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("network.endpoint: %w", err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("network.endpoint: must be an absolute http(s) URL, got %q", raw)
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateState(s *StateConfig) []error {
	return validateMinDuration("state.session_max_age", s.SessionMaxAge, minSessionMaxAge)
}

func validateMinDuration(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be at least %s, got %s", field, minimum, value)}
	}

	return nil
}
