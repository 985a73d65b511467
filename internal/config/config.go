package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	blob "github.com/syntrixbase/msgstore/internal/core/blob/config"
	events "github.com/syntrixbase/msgstore/internal/core/pubsub/config"
	storage "github.com/syntrixbase/msgstore/internal/core/storage/config"
	gateway "github.com/syntrixbase/msgstore/internal/gateway/config"
	"github.com/syntrixbase/msgstore/internal/server"
)

const (
	ConfigFile      = "config.yml"
	LocalConfigFile = "config.local.yml"

	DefaultConfigDir = "config"
	DefaultDataDir   = "data"
)

// Config holds the application configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`

	Server  server.Config         `yaml:"server"`
	Gateway gateway.GatewayConfig `yaml:"gateway"`
	Logging LoggingConfig         `yaml:"logging"`
	Storage storage.Config        `yaml:"storage"`
	Blob    blob.Config           `yaml:"blob"`
	Store   StoreConfig           `yaml:"store"`
	Export  ExportConfig          `yaml:"export"`
	Events  events.Config         `yaml:"events"`
}

// LoadOptions controls where LoadConfig looks.
type LoadOptions struct {
	// ConfigDir holds config.yml and config.local.yml.
	ConfigDir string
	// DataDir overrides data_dir from the files and environment.
	DataDir string
	// SkipFiles ignores both config files.
	SkipFiles bool
	// Override applies command line flags after environment overrides and
	// before paths are resolved.
	Override func(*Config)
}

// Default returns a config with every section at its defaults.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir,
		Server:  server.DefaultConfig(),
		Gateway: gateway.DefaultGatewayConfig(),
		Logging: DefaultLoggingConfig(),
		Storage: storage.DefaultConfig(),
		Blob:    blob.DefaultConfig(),
		Events:  events.DefaultConfig(),
	}
}

// LoadConfig builds the configuration.
// Order: defaults -> config.yml -> config.local.yml -> ApplyDefaults ->
// ApplyEnvOverrides -> opts.Override -> ResolvePaths -> Validate.
func LoadConfig(opts LoadOptions) (*Config, error) {
	if opts.ConfigDir == "" {
		opts.ConfigDir = DefaultConfigDir
	}
	cfg := Default()

	if !opts.SkipFiles {
		for _, name := range []string{ConfigFile, LocalConfigFile} {
			if err := loadFile(filepath.Join(opts.ConfigDir, name), cfg); err != nil {
				return nil, err
			}
		}
	}

	if val := os.Getenv("MSGSTORE_DATA_DIR"); val != "" {
		cfg.DataDir = val
	}
	sections := cfg.sections()
	PrepareServiceConfigs(sections...)
	if opts.Override != nil {
		opts.Override(cfg)
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}

	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data_dir: %w", err)
	}
	cfg.DataDir = dataDir
	configDir, err := filepath.Abs(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}

	if err := FinishServiceConfigs(configDir, dataDir, sections...); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func (c *Config) sections() []ServiceConfig {
	return []ServiceConfig{
		&c.Server,
		&c.Gateway,
		&c.Logging,
		&c.Storage,
		&c.Blob,
		&c.Store,
		&c.Export,
		&c.Events,
	}
}

// loadFile merges one YAML file into cfg. A missing file is skipped.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	slog.Debug("Loaded config file", "path", path)
	return nil
}
