// Package config loads polystore settings from a YAML file, an optional
// .env file and POLYSTORE_* environment variables, in increasing order of
// precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/polystore/internal/cache"
	"github.com/roach88/polystore/internal/hydrate"
	"github.com/roach88/polystore/internal/store"
)

// Environment variables that override file settings.
const (
	EnvDB        = "POLYSTORE_DB"
	EnvDriver    = "POLYSTORE_DRIVER"
	EnvHydration = "POLYSTORE_HYDRATION"
	EnvCacheSize = "POLYSTORE_CACHE_SIZE"
	EnvManifest  = "POLYSTORE_MANIFEST"
)

// Defaults.
const (
	DefaultDBPath    = "polystore.db"
	DefaultHydration = "eager"
)

// Config is the complete runtime configuration.
type Config struct {
	Database  Database `yaml:"database"`
	Site      Site     `yaml:"site"`
	Cache     Cache    `yaml:"cache"`
	Hydration string   `yaml:"hydration"`
	// Manifest is a directory of CUE files applied by bootstrap.
	Manifest string `yaml:"manifest,omitempty"`
}

// Database selects the SQLite file and driver.
type Database struct {
	Path   string `yaml:"path"`
	Driver string `yaml:"driver"`
}

// Site describes the site entity installed on first start.
type Site struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	URL         string `yaml:"url,omitempty"`
}

// Cache bounds the entity cache.
type Cache struct {
	Capacity int `yaml:"capacity"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads path (skipped when empty), then envFile when it exists, then
// the environment. Unknown YAML fields are rejected.
func Load(path, envFile string) (*Config, error) {
	c := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("load env file %s: %w", envFile, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat env file %s: %w", envFile, err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDB); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvDriver); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(EnvHydration); v != "" {
		c.Hydration = v
	}
	if v := os.Getenv(EnvManifest); v != "" {
		c.Manifest = v
	}
	if v := os.Getenv(EnvCacheSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCacheSize, err)
		}
		c.Cache.Capacity = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = DefaultDBPath
	}
	if c.Database.Driver == "" {
		c.Database.Driver = store.DriverCGO
	}
	if c.Hydration == "" {
		c.Hydration = DefaultHydration
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = cache.DefaultCapacity
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case store.DriverCGO, store.DriverPure:
	default:
		errs = append(errs, fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver))
	}
	if _, err := hydrate.ParseMode(c.Hydration); err != nil {
		errs = append(errs, fmt.Errorf("hydration: %w", err))
	}
	if c.Cache.Capacity < 0 {
		errs = append(errs, fmt.Errorf("cache.capacity: must not be negative, got %d", c.Cache.Capacity))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// HydrationMode returns the parsed hydration mode.
func (c *Config) HydrationMode() hydrate.Mode {
	m, _ := hydrate.ParseMode(c.Hydration)
	return m
}
