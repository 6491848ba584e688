package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"kibibytes", 1536, "1.5 KiB"},
		{"mebibytes", 5242880, "5.0 MiB"},
		{"chunk", 10 * 1024 * 1024, "10 MiB"},
		{"gibibytes", 1610612736, "1.5 GiB"},
		{"tebibytes", 1099511627776, "1.0 TiB"},
		{"negative clamps", -1, "0 B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}

func TestFormatTime(t *testing.T) {
	t.Run("today shows clock only", func(t *testing.T) {
		now := time.Now()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 7, 0, time.Local)

		assert.Equal(t, "00:00:07", formatTime(today))
	})

	t.Run("other day shows date", func(t *testing.T) {
		past := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.Local)

		assert.Equal(t, "2020-12-25 08:00", formatTime(past))
	})
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	headers := []string{"STATUS", "SIZE", "PATH"}
	rows := [][]string{
		{"succeeded", "1.2 GB", "/videos/keynote.mp4"},
		{"budget_exhausted", "0 B", "/videos/empty.mov"},
	}

	printTable(&buf, headers, rows)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "STATUS"))
	assert.Contains(t, lines[1], "/videos/keynote.mp4")
	// Columns are padded to the widest cell.
	assert.Equal(t, strings.Index(lines[1], "1.2 GB"), strings.Index(lines[2], "0 B"))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, printJSON(&buf, map[string]int{"retries": 3}))
	assert.Equal(t, "{\n  \"retries\": 3\n}\n", buf.String())
}
