package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/andrew-hossack/vidtools/internal/upload"
)

// chunkWhole is the chunk_size spelling for single-request uploads.
const chunkWhole = "whole"

// ParseSize converts a human-readable size such as "10MiB" or "5MB" to bytes.
// SI and IEC suffixes are accepted. Empty string and "0" return 0; a bare
// number is raw bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}

	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	if n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: too large", s)
	}

	return int64(n), nil
}

// ParseBandwidth parses a rate such as "5MB/s" into bytes per second.
// "0" and "" mean unlimited and return 0.
func ParseBandwidth(s string) (int64, error) {
	s = strings.TrimSpace(s)

	trimmed, _ := strings.CutSuffix(s, "/s")

	n, err := ParseSize(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid bandwidth %q: %w", s, err)
	}

	return n, nil
}

// ParseChunkSize parses chunk_size. "whole" and "0" select single-request
// uploads and return upload.SingleRequest.
func ParseChunkSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, chunkWhole) {
		return upload.SingleRequest, nil
	}

	n, err := ParseSize(s)
	if err != nil {
		return 0, err
	}

	if n == 0 {
		return upload.SingleRequest, nil
	}

	return n, nil
}
