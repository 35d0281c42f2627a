package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr"`
	DataDir  string `json:"dataDir" yaml:"dataDir"`

	// Persistence selects the persister backing served streams:
	// memory | file | pebble.
	Persistence string `json:"persistence" yaml:"persistence"`
	// Fsync applies to the pebble persistence: always | interval | never.
	Fsync           string `json:"fsync" yaml:"fsync"`
	FsyncIntervalMs int    `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`

	// Streams are opened at server start; further streams are created on
	// first publish when AllowAutoCreateStreams is set.
	Streams                []StreamConfig `json:"streams" yaml:"streams"`
	AllowAutoCreateStreams bool           `json:"allowAutoCreateStreams" yaml:"allowAutoCreateStreams"`

	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	LogFormat string `json:"logFormat" yaml:"logFormat"`
}

// StreamConfig declares one served stream.
type StreamConfig struct {
	Name string `json:"name" yaml:"name"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:               ":8080",
		Persistence:            "pebble",
		Fsync:                  "always",
		AllowAutoCreateStreams: true,
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// Load reads configuration from a JSON or YAML file (by extension),
// overlaying the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
