package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// LoadFromPath decodes a config file on top of the defaults.
func LoadFromPath(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if !FileExists(configPath) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	meta, err := toml.DecodeFile(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 && DebugLog != nil {
		DebugLog.Printf("[config] ignoring unknown keys in %s: %v", configPath, undecoded)
	}

	return cfg, nil
}

func Save(cfg *Config, configPath string) error {
	if err := EnsureDir(filepath.Dir(configPath)); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600: may contain an API key
	f, err := os.OpenFile(configPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

func CreateDefaultConfig(configPath string) error {
	if err := EnsureDir(filepath.Dir(configPath)); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if FileExists(configPath) {
		return nil
	}

	if err := os.WriteFile(configPath, []byte(GenerateConfigTemplate()), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
