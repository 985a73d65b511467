package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config enables the file blob store.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

func DefaultConfig() Config {
	return Config{Dir: "file-storage"}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Dir == "" {
		c.Dir = DefaultConfig().Dir
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("MSGSTORE_BLOB_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Enabled = b
		}
	}
	if val := os.Getenv("MSGSTORE_BLOB_DIR"); val != "" {
		c.Dir = val
	}
}

// ResolvePaths resolves the blob directory relative to dataDir.
func (c *Config) ResolvePaths(_, dataDir string) {
	if c.Dir != "" && !filepath.IsAbs(c.Dir) {
		c.Dir = filepath.Join(dataDir, c.Dir)
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.Enabled && c.Dir == "" {
		return fmt.Errorf("blob.dir is required when blob storage is enabled")
	}
	return nil
}
