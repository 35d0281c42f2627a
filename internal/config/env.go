package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays STROM_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("STROM_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("STROM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("STROM_PERSISTENCE"); v != "" {
		cfg.Persistence = v
	}
	if v := os.Getenv("STROM_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v := os.Getenv("STROM_FSYNC_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.FsyncIntervalMs = n
		}
	}
	if v := os.Getenv("STROM_ALLOW_AUTO_CREATE_STREAMS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AllowAutoCreateStreams = b
		}
	}
	if v := os.Getenv("STROM_STREAMS"); v != "" {
		cfg.Streams = nil
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				cfg.Streams = append(cfg.Streams, StreamConfig{Name: name})
			}
		}
	}
	if v := os.Getenv("STROM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STROM_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}
