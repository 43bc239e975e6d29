package cli

// This file contains the optional YAML configuration file support for
// run defaults.

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = ".cargowatch.yaml"

// Config holds run defaults loaded from a YAML config file. Flags on
// the command line win over config values.
type Config struct {
	// Color toggles colored diagnostic output; nil keeps the default
	Color *bool `yaml:"color"`
	// EstimateBytes enables progress reporting when set
	EstimateBytes int64 `yaml:"estimate_bytes"`
	// OpenURLs opens detected server URLs automatically
	OpenURLs bool `yaml:"open_urls"`
	// FilterPrefixes are extra backtrace path fragments to drop
	FilterPrefixes []string `yaml:"filter_prefixes"`
}

// loadConfig reads the config at path, or the default file if path is
// empty. A missing default file is not an error; an unreadable or
// malformed explicit file is.
func loadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}
