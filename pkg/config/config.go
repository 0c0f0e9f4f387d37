// Package config provides configuration loading and management for the
// bone-enhancement pipeline. It handles loading configuration from
// YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel
		// processing; 0 means all available
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Sheetness measure parameters
	Sheetness struct {
		// Sigmas are the smoothing scales, in physical units
		Sigmas []float64 `yaml:"sigmas"`

		// EnhanceBright selects bright (bone) vs dark enhancement
		EnhanceBright bool `yaml:"enhanceBright"`

		// Recipe selects the parameter formulas: "journal" or
		// "implementation"
		Recipe string `yaml:"recipe"`

		// ForegroundValue and BackgroundValue label the optional mask
		ForegroundValue float64 `yaml:"foregroundValue"`
		BackgroundValue float64 `yaml:"backgroundValue"`
	} `yaml:"sheetness"`

	// Preprocessing (unsharp mask) parameters
	Preprocessing struct {
		// Enabled toggles the stage entirely
		Enabled bool `yaml:"enabled"`

		// Sigma is the smoothing scale of the subtracted Gaussian
		Sigma float64 `yaml:"sigma"`

		// ScalingConstant is the unsharp gain
		ScalingConstant float64 `yaml:"scalingConstant"`
	} `yaml:"preprocessing"`

	// Output parameters
	Output struct {
		// SaveBestScale additionally writes the winning-sigma volume
		SaveBestScale bool `yaml:"saveBestScale"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Sheetness.Sigmas = []float64{0.5, 1.0, 2.0}
	cfg.Sheetness.EnhanceBright = true
	cfg.Sheetness.Recipe = "implementation"
	cfg.Sheetness.ForegroundValue = 1
	cfg.Sheetness.BackgroundValue = 0

	cfg.Preprocessing.Enabled = true
	cfg.Preprocessing.Sigma = 1.0
	cfg.Preprocessing.ScalingConstant = 10.0

	cfg.Output.SaveBestScale = false
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
