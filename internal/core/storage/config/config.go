package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/syntrixbase/msgstore/internal/core/storage/types"
)

// Config selects and configures the record store backend.
type Config struct {
	// Backend is "memory" or "pebble". "mem" and "leveldb" are accepted aliases.
	Backend string       `yaml:"backend"`
	Pebble  PebbleConfig `yaml:"pebble"`
}

type PebbleConfig struct {
	Path           string `yaml:"path"`
	BlockCacheSize int64  `yaml:"block_cache_size"`
}

func DefaultConfig() Config {
	return Config{
		Backend: string(types.KindMemory),
		Pebble: PebbleConfig{
			Path:           "db",
			BlockCacheSize: 64 * 1024 * 1024, // 64MB
		},
	}
}

// Kind returns the parsed backend. Call after Validate.
func (c *Config) Kind() types.Kind {
	kind, _ := types.ParseKind(c.Backend)
	return kind
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Backend == "" {
		c.Backend = defaults.Backend
	}
	if c.Pebble.Path == "" {
		c.Pebble.Path = defaults.Pebble.Path
	}
	if c.Pebble.BlockCacheSize == 0 {
		c.Pebble.BlockCacheSize = defaults.Pebble.BlockCacheSize
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("MSGSTORE_STORAGE_BACKEND"); val != "" {
		c.Backend = val
	}
	if val := os.Getenv("MSGSTORE_PEBBLE_PATH"); val != "" {
		c.Pebble.Path = val
	}
	if val := os.Getenv("MSGSTORE_PEBBLE_BLOCK_CACHE_SIZE"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Pebble.BlockCacheSize = n
		}
	}
}

// ResolvePaths resolves the pebble path relative to dataDir.
func (c *Config) ResolvePaths(_, dataDir string) {
	if c.Pebble.Path != "" && !filepath.IsAbs(c.Pebble.Path) {
		c.Pebble.Path = filepath.Join(dataDir, c.Pebble.Path)
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	kind, ok := types.ParseKind(c.Backend)
	if !ok {
		return fmt.Errorf("storage.backend: unknown backend %q", c.Backend)
	}
	if kind == types.KindPebble && c.Pebble.Path == "" {
		return fmt.Errorf("storage.pebble.path is required for the pebble backend")
	}
	if c.Pebble.BlockCacheSize < 0 {
		return fmt.Errorf("storage.pebble.block_cache_size must be non-negative")
	}
	return nil
}
