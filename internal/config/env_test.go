package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvEndpoint, "https://upload.example.com/sessions")
	t.Setenv(EnvToken, "tok")

	overrides := ReadEnvOverrides()
	assert.Equal(t, "/custom/config.toml", overrides.ConfigPath)
	assert.Equal(t, "https://upload.example.com/sessions", overrides.Endpoint)
	assert.Equal(t, "tok", overrides.Token)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvEndpoint, "")
	t.Setenv(EnvToken, "")

	overrides := ReadEnvOverrides()
	assert.Empty(t, overrides.ConfigPath)
	assert.Empty(t, overrides.Endpoint)
	assert.Empty(t, overrides.Token)
}

func TestEnvVarConstants(t *testing.T) {
	assert.Equal(t, "VIDTOOLS_CONFIG", EnvConfig)
	assert.Equal(t, "VIDTOOLS_ENDPOINT", EnvEndpoint)
	assert.Equal(t, "VIDTOOLS_TOKEN", EnvToken)
}
