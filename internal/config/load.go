package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
// It returns a fully resolved and validated configuration ready for use.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides
	if env.Endpoint != "" {
		cfg.Network.Endpoint = env.Endpoint
	}

	// 4. Apply CLI overrides (pointer fields: nil = not specified)
	if cli.Endpoint != nil {
		cfg.Network.Endpoint = *cli.Endpoint
	}

	if cli.ChunkSize != nil {
		cfg.Upload.ChunkSize = *cli.ChunkSize
	}

	if cli.MaxAttempts != nil {
		cfg.Upload.MaxAttempts = *cli.MaxAttempts
	}

	// 5. Re-validate: overrides bypass the file-level check.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolve(cfg, cfgPath, env.Token)
}

// resolve parses the validated string settings into their typed forms.
func resolve(cfg *Config, path, token string) (*Resolved, error) {
	r := &Resolved{
		Config:     *cfg,
		ConfigPath: path,
		Token:      token,
	}

	if r.State.DataDir == "" {
		r.State.DataDir = DefaultDataDir()
	} else {
		r.State.DataDir = expandTilde(r.State.DataDir)
	}

	var err error

	if r.ChunkBytes, err = ParseChunkSize(cfg.Upload.ChunkSize); err != nil {
		return nil, err
	}

	if r.BandwidthBytes, err = ParseBandwidth(cfg.Upload.BandwidthLimit); err != nil {
		return nil, err
	}

	durations := []struct {
		dst *time.Duration
		raw string
	}{
		{&r.BackoffBase, cfg.Upload.BackoffBase},
		{&r.ConnectTimeout, cfg.Network.ConnectTimeout},
		{&r.DataTimeout, cfg.Network.DataTimeout},
		{&r.SessionMaxAge, cfg.State.SessionMaxAge},
	}

	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(d.raw); err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", d.raw, err)
		}
	}

	return r, nil
}
