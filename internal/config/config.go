// Package config loads Artefacta's YAML configuration file. Precedence is
// flag > env > config file > built-in default, applied by the CLI layer on
// top of what Load/DefaultConfig return here.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Artefacta configuration.
type Config struct {
	Local       string `yaml:"local"`
	Remote      string `yaml:"remote"`
	Compression int    `yaml:"compression_level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Local:       "./artefacta-store",
		Remote:      "",
		Compression: 1,
	}
}

// Load reads and parses the YAML config file at path, overlaying it onto
// DefaultConfig so missing fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// FindConfigFile searches standard locations for an artefacta.yaml: cwd,
// /etc, then the user's XDG config dir.
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"artefacta.yaml",
		"/etc/artefacta/artefacta.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "artefacta", "artefacta.yaml"))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}
