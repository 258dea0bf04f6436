package config

import (
	"fmt"
	"os"

	"aviator/engine"

	"gopkg.in/yaml.v3"
)

// distributionFile is the on-disk shape of a crash point distribution:
//
//	bands:
//	  - {weight: 0.5, min: 1.0, max: 3.0}
//	  - {weight: 0.5, min: 3.0, max: 9.0}
type distributionFile struct {
	Bands []engine.Band `yaml:"bands"`
}

// LoadBands reads and validates a crash point distribution from a YAML file
func LoadBands(path string) ([]engine.Band, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read distribution file: %w", err)
	}

	var file distributionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse distribution file %s: %w", path, err)
	}

	if err := engine.ValidateBands(file.Bands); err != nil {
		return nil, fmt.Errorf("invalid distribution in %s: %w", path, err)
	}
	return file.Bands, nil
}

// CrashBands returns the configured distribution, falling back to the default bands
func (c *Config) CrashBands() ([]engine.Band, error) {
	if c.CrashDistributionFile == "" {
		return engine.DefaultBands, nil
	}
	return LoadBands(c.CrashDistributionFile)
}
