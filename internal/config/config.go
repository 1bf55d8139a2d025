package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Root prefixes /sys and /dev lookups; empty means the live system.
	Root string `yaml:"root,omitempty"`
	// TagIndex backend: "bydisk" or "lsblk"
	TagIndex string `yaml:"tag_index"`
	LSM      LSM    `yaml:"lsm"`
	Log      Log    `yaml:"log"`
	Sim      Sim    `yaml:"sim"`
}

type LSM struct {
	URI      string        `yaml:"uri,omitempty"`
	Password string        `yaml:"password,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Sim struct {
	State string `yaml:"state"`
}

// defaultConfig covers every field Load may leave unset
var defaultConfig = Config{
	TagIndex: "bydisk",
	LSM: LSM{
		Timeout: 3 * time.Second,
	},
	Log: Log{
		Level:  "info",
		Format: "text",
	},
	Sim: Sim{
		State: "/var/lib/blkdevctl/sim.db",
	},
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

// candidates are searched in order when no path is given.
func candidates() []string {
	return []string{
		"/etc/blkdevctl/config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/blkdevctl/config.yaml"),
		"config.yaml",
	}
}

// Load reads path, or the first existing default location when path is
// empty. A missing default file yields the built-in configuration; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		for _, c := range candidates() {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	cfg := defaultConfig
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Apply defaults for cleared values
	if cfg.TagIndex == "" {
		cfg.TagIndex = defaultConfig.TagIndex
	}
	if cfg.LSM.Timeout <= 0 {
		cfg.LSM.Timeout = defaultConfig.LSM.Timeout
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultConfig.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaultConfig.Log.Format
	}
	if cfg.Sim.State == "" {
		cfg.Sim.State = defaultConfig.Sim.State
	}

	return &cfg, nil
}
