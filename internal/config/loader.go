package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load loads configuration with precedence:
// defaults → YAML file → environment variables → command line flags.
// It performs runtime transformations and validation before returning.
// args excludes the program name.
func Load(args []string) (*Config, error) {
	// Step 1: Start with defaults
	cfg := defaultConfig()

	// Step 2: Apply the configuration file, if any
	path := configFileFromArgs(args)
	if path == "" {
		path = getEnvString(EnvConfigFile)
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// Step 3: Apply environment variables
	loadFromEnv(cfg)

	// Step 4: Apply command line flags (highest precedence)
	fs := newFlagSet(programName(), cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Step 5: Apply runtime validations and transformations
	if err := applyRuntimeValidation(cfg); err != nil {
		return nil, err
	}

	// Step 6: Validate the final configuration
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFile decodes a YAML file over cfg. Keys missing from the file keep
// their current values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) // #nosec G304 - path is operator supplied
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func programName() string {
	if len(os.Args) > 0 {
		return os.Args[0]
	}
	return "logship"
}
