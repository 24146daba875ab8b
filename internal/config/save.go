package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Save writes the config to the user's config directory.
func (c *Config) Save() error {
	return c.SaveTo(filepath.Join(ConfigDir(), "config.yaml"))
}

// SaveTo writes the config to a specific path.
// The file may hold client secrets, so it is written owner-only.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// Redacted returns a copy safe for logging, with secrets masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.Provider.APIKey != "" {
		out.Provider.APIKey = "***"
	}
	if out.Auth.ClientSecret != "" {
		out.Auth.ClientSecret = "***"
	}
	if out.Auth.StaticToken != "" {
		out.Auth.StaticToken = "***"
	}
	return out
}
