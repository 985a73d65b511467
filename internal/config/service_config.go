package config

// ServiceConfig is the lifecycle every config section implements.
type ServiceConfig interface {
	// ApplyDefaults fills zero values with defaults.
	ApplyDefaults()

	// ApplyEnvOverrides applies MSGSTORE_* environment overrides.
	ApplyEnvOverrides()

	// ResolvePaths makes relative paths absolute.
	// - configDir: base for config-related paths
	// - dataDir: base for runtime data (logs, database, blobs)
	ResolvePaths(configDir, dataDir string)

	// Validate returns an error if the section is invalid.
	Validate() error
}

// PrepareServiceConfigs runs the first half of the lifecycle: defaults, then
// environment overrides. Command line overrides go in between the halves.
func PrepareServiceConfigs(configs ...ServiceConfig) {
	for _, cfg := range configs {
		cfg.ApplyDefaults()
		cfg.ApplyEnvOverrides()
	}
}

// FinishServiceConfigs resolves paths and validates, stopping at the first
// invalid section.
func FinishServiceConfigs(configDir, dataDir string, configs ...ServiceConfig) error {
	for _, cfg := range configs {
		cfg.ResolvePaths(configDir, dataDir)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplyServiceConfigs runs the whole lifecycle on each section.
func ApplyServiceConfigs(configDir, dataDir string, configs ...ServiceConfig) error {
	PrepareServiceConfigs(configs...)
	return FinishServiceConfigs(configDir, dataDir, configs...)
}
