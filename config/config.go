// Package config loads settings for minidb binaries from an optional
// YAML file, with MINIDB_* environment variables taking precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort          = 8080
	DefaultBacklog       = 10
	DefaultReadChunkSize = 1024
)

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	Port          int    `yaml:"port"`
	Backlog       int    `yaml:"backlog"`
	ReadChunkSize int    `yaml:"read_chunk_size"`
	MaxPending    int    `yaml:"max_pending"`
	LogDir        string `yaml:"log_dir"`
	Verbose       bool   `yaml:"verbose"`
}

// Load reads config from a YAML file at path (if path is not empty),
// applies env overrides and fills in defaults
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read '%s': %w", path, err)
		}
		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse '%s': %w", path, err)
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s='%s': %w", ErrInvalid, name, v, err)
	}
	*dst = n
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if err := envInt("MINIDB_PORT", &cfg.Port); err != nil {
		return err
	}
	if err := envInt("MINIDB_BACKLOG", &cfg.Backlog); err != nil {
		return err
	}
	if err := envInt("MINIDB_READ_CHUNK_SIZE", &cfg.ReadChunkSize); err != nil {
		return err
	}
	if err := envInt("MINIDB_MAX_PENDING", &cfg.MaxPending); err != nil {
		return err
	}
	if v := os.Getenv("MINIDB_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("MINIDB_VERBOSE"); v != "" {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: MINIDB_VERBOSE='%s': %w", ErrInvalid, v, err)
		}
		cfg.Verbose = verbose
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Backlog == 0 {
		c.Backlog = DefaultBacklog
	}
	if c.ReadChunkSize == 0 {
		c.ReadChunkSize = DefaultReadChunkSize
	}
}

// Validate checks that values are in range
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d is out of range", ErrInvalid, c.Port)
	}
	if c.Backlog < 0 {
		return fmt.Errorf("%w: backlog %d is negative", ErrInvalid, c.Backlog)
	}
	if c.ReadChunkSize < 0 {
		return fmt.Errorf("%w: read_chunk_size %d is negative", ErrInvalid, c.ReadChunkSize)
	}
	if c.MaxPending < 0 {
		return fmt.Errorf("%w: max_pending %d is negative", ErrInvalid, c.MaxPending)
	}
	return nil
}
