// Package config reads shim settings from the environment.
package config

import (
	"github.com/apex/log"
	"github.com/caarlos0/env/v8"
	"github.com/pkg/errors"
)

// Prefix is prepended to every variable name.
const Prefix = "VTPATCH_"

// Config holds the shim settings.
type Config struct {
	// LibraryPath is tried before the default locations of the real
	// library.
	LibraryPath string `env:"LIBRARY"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"warn"`

	// Disable forwards every call untouched.
	Disable bool `env:"DISABLE"`
}

// Load parses the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Level returns LogLevel as an apex/log level.
func (c *Config) Level() (log.Level, error) {
	if c.LogLevel == "" {
		return log.WarnLevel, nil
	}
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InvalidLevel, errors.Wrapf(err, "%sLOG_LEVEL", Prefix)
	}
	return lvl, nil
}
