package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	configDir  = ".dataview"
	configFile = "config"
	configType = "yaml"
)

// Load reads the configuration from ~/.dataview/config.yaml.
// Returns an empty config if the file does not exist.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, fmt.Errorf("config dir: %w", err)
	}
	return LoadFrom(dir)
}

// LoadFrom reads config.yaml from dir. Passwords are not loaded; see
// LookupPassword.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configFile)
	v.SetConfigType(configType)
	v.AddConfigPath(dir)

	// Defaults
	v.SetDefault("preferences.theme", "default")
	v.SetDefault("preferences.log_level", "info")

	cfg := &Config{}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// a saved file carries the keys even when they are empty
	if cfg.Preferences.Theme == "" {
		cfg.Preferences.Theme = "default"
	}
	if cfg.Preferences.LogLevel == "" {
		cfg.Preferences.LogLevel = "info"
	}

	return cfg, nil
}

// Save writes the configuration to ~/.dataview/config.yaml.
func Save(cfg *Config) error {
	dir, err := Dir()
	if err != nil {
		return fmt.Errorf("config dir: %w", err)
	}
	return SaveTo(dir, cfg)
}

// SaveTo writes config.yaml into dir. Connection passwords go to the
// keyring instead of the file.
func SaveTo(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	for _, c := range cfg.Connections {
		if c.Password == "" {
			continue
		}
		if err := StorePassword(c.Name, c.Password); err != nil {
			return fmt.Errorf("store password for %s: %w", c.Name, err)
		}
	}

	v := viper.New()
	v.Set("connections", cfg.Connections)
	v.Set("preferences", cfg.Preferences)
	v.Set("paging", cfg.Paging)

	path := filepath.Join(dir, configFile+"."+configType)
	return v.WriteConfigAs(path)
}

// DefaultConnection returns the default connection from config, or the first one.
func DefaultConnection(cfg *Config) *Connection {
	if len(cfg.Connections) == 0 {
		return nil
	}

	if cfg.Preferences.DefaultConnection != "" {
		if c := cfg.FindConnection(cfg.Preferences.DefaultConnection); c != nil {
			return c
		}
	}

	return &cfg.Connections[0]
}

// Dir returns the directory holding the configuration and log files.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configDir), nil
}
