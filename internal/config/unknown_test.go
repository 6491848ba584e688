package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, 3, levenshtein("abc", ""))
	assert.Equal(t, 1, levenshtein("chunk_size", "chunk_sise"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}

func TestClosestMatch(t *testing.T) {
	known := []string{"chunk_size", "max_attempts"}

	assert.Equal(t, "chunk_size", closestMatch("chnk_size", known))
	assert.Empty(t, closestMatch("completely_different", known))
}

func TestUnknownKeys_Section(t *testing.T) {
	path := writeTestConfig(t, `
[uplod]
max_attempts = 3
chunk_size = "10MiB"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config section "uplod", did you mean "upload"?`)
	assert.NotContains(t, err.Error(), "max_attempts")
}

func TestUnknownKeys_TopLevelKeyNamesItsSection(t *testing.T) {
	path := writeTestConfig(t, `chunk_size = "10MiB"`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `config key "chunk_size" must be set in the [upload] section`)
}

func TestUnknownKeys_NoSuggestion(t *testing.T) {
	path := writeTestConfig(t, `
[network]
proxy_url_for_everything = "x"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "proxy_url_for_everything" in [network]`)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestUnknownKeys_MultipleReported(t *testing.T) {
	path := writeTestConfig(t, `
[logging]
log_levl = "debug"
log_formt = "json"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"log_level"`)
	assert.Contains(t, err.Error(), `"log_format"`)
}
