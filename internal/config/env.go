package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "VIDTOOLS_CONFIG"
	EnvEndpoint = "VIDTOOLS_ENDPOINT"
	EnvToken    = "VIDTOOLS_TOKEN"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // VIDTOOLS_CONFIG: override config file path
	Endpoint   string // VIDTOOLS_ENDPOINT: session creation URL
	Token      string // VIDTOOLS_TOKEN: bearer token for session creation
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Endpoint:   os.Getenv(EnvEndpoint),
		Token:      os.Getenv(EnvToken),
	}
}
