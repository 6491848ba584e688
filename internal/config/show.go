package config

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RenderEffective writes the resolved configuration as a human-readable
// summary to w. This powers the "config show" command. The bearer token is
// never printed; only whether one is set.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	if r.ConfigPath != "" {
		ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)
	} else {
		ew.printf("# Effective configuration (defaults)\n\n")
	}

	renderUploadSection(ew, &r.Upload)
	renderNetworkSection(ew, &r.Network, r.Token != "")
	renderLoggingSection(ew, &r.Logging)
	renderStateSection(ew, &r.State)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderUploadSection(ew *errWriter, u *UploadConfig) {
	ew.printf("[upload]\n")
	ew.printf("  max_attempts       = %d\n", u.MaxAttempts)
	ew.printf("  backoff_base       = %q\n", u.BackoffBase)
	ew.printf("  chunk_size         = %q\n", u.ChunkSize)
	ew.printf("  retriable_statuses = [%s]\n", joinInts(u.RetriableStatuses))
	ew.printf("  bandwidth_limit    = %q\n", u.BandwidthLimit)
	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, n *NetworkConfig, hasToken bool) {
	ew.printf("[network]\n")
	ew.printf("  endpoint        = %q\n", n.Endpoint)
	ew.printf("  connect_timeout = %q\n", n.ConnectTimeout)
	ew.printf("  data_timeout    = %q\n", n.DataTimeout)

	if n.UserAgent != "" {
		ew.printf("  user_agent      = %q\n", n.UserAgent)
	}

	if hasToken {
		ew.printf("  # bearer token set via %s\n", EnvToken)
	}

	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderStateSection(ew *errWriter, s *StateConfig) {
	ew.printf("[state]\n")
	ew.printf("  data_dir        = %q\n", s.DataDir)
	ew.printf("  session_max_age = %q\n", s.SessionMaxAge)
}

func joinInts(items []int) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = strconv.Itoa(item)
	}

	return strings.Join(parts, ", ")
}
