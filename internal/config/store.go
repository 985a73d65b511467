package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/syntrixbase/msgstore/internal/core/priority"
)

// StoreConfig holds the store budgets applied at startup. Runtime changes are
// written back here unless NoUpdate is set.
type StoreConfig struct {
	MaxByteSize *uint32                 `yaml:"max_byte_size,omitempty"`
	Groups      []priority.GroupDefault `yaml:"groups,omitempty"`
	NoUpdate    bool                    `yaml:"no_update"`
}

func (c *StoreConfig) ApplyDefaults() { _ = c }

func (c *StoreConfig) ApplyEnvOverrides() {
	if val := os.Getenv("MSGSTORE_STORE_MAX_BYTE_SIZE"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			limit := uint32(n)
			c.MaxByteSize = &limit
		}
	}
	if val := os.Getenv("MSGSTORE_NO_UPDATE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.NoUpdate = b
		}
	}
}

func (c *StoreConfig) ResolvePaths(_, _ string) { _ = c }

// Validate rejects duplicate priorities and group budgets above the store
// budget.
func (c *StoreConfig) Validate() error {
	seen := make(map[uint32]bool, len(c.Groups))
	for _, g := range c.Groups {
		if seen[g.Priority] {
			return fmt.Errorf("store.groups: duplicate priority %d", g.Priority)
		}
		seen[g.Priority] = true
		if c.MaxByteSize != nil && g.MaxByteSize > *c.MaxByteSize {
			return fmt.Errorf("store.groups: priority %d max_byte_size %d exceeds store max_byte_size %d",
				g.Priority, g.MaxByteSize, *c.MaxByteSize)
		}
	}
	return nil
}

// ExportConfig configures backups taken by the export operation.
type ExportConfig struct {
	// Compress writes flat backups as zstd.
	Compress bool `yaml:"compress"`
}

func (c *ExportConfig) ApplyDefaults() { _ = c }

func (c *ExportConfig) ApplyEnvOverrides() {
	if val := os.Getenv("MSGSTORE_EXPORT_COMPRESS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Compress = b
		}
	}
}

func (c *ExportConfig) ResolvePaths(_, _ string) { _ = c }

func (c *ExportConfig) Validate() error { return nil }
