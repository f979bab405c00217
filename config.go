package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	EnvConfig  = "PARTFLASH_CONFIG"
	EnvSelect  = "PARTFLASH_SELECT"
	EnvImage   = "PARTFLASH_IMAGE"
	EnvVerbose = "PARTFLASH_VERBOSE"
)

// Config holds defaults that flags override.
type Config struct {
	Select  string `toml:"select"`
	Image   string `toml:"image"`
	Verbose bool   `toml:"verbose"`
	TempDir string `toml:"tmpdir"`
}

// loadConfig reads the config file and applies environment overrides.
// An explicit path must exist; the default location is optional.
func loadConfig(explicit string) (Config, error) {
	var cfg Config

	path, required := explicit, explicit != ""
	if path == "" {
		path, required = os.Getenv(EnvConfig), os.Getenv(EnvConfig) != ""
	}
	if path == "" {
		path = defaultConfigPath()
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if required || !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "partflash", "config.toml")
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvSelect)); v != "" {
		cfg.Select = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvImage)); v != "" {
		cfg.Image = v
	}
	if v, ok := parseBool(os.Getenv(EnvVerbose)); ok {
		cfg.Verbose = v
	}
}
