package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr %q", cfg.HTTPAddr)
	}
	if cfg.Persistence != "pebble" || cfg.Fsync != "always" {
		t.Fatalf("persistence defaults wrong: %+v", cfg)
	}
	if !cfg.AllowAutoCreateStreams {
		t.Fatalf("auto-create should default on")
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strom.json")
	data := `{"httpAddr":":9090","persistence":"file","streams":[{"name":"orders"}]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.Persistence != "file" {
		t.Fatalf("loaded %+v", cfg)
	}
	if len(cfg.Streams) != 1 || cfg.Streams[0].Name != "orders" {
		t.Fatalf("streams %+v", cfg.Streams)
	}
	// Untouched keys keep defaults.
	if cfg.Fsync != "always" {
		t.Fatalf("fsync default lost: %q", cfg.Fsync)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strom.yaml")
	data := "httpAddr: \":7070\"\npersistence: memory\nstreams:\n  - name: metrics\n  - name: audit\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":7070" || cfg.Persistence != "memory" {
		t.Fatalf("loaded %+v", cfg)
	}
	if len(cfg.Streams) != 2 || cfg.Streams[1].Name != "audit" {
		t.Fatalf("streams %+v", cfg.Streams)
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strom.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFromEnvOverlay(t *testing.T) {
	t.Setenv("STROM_HTTP_ADDR", ":6060")
	t.Setenv("STROM_PERSISTENCE", "memory")
	t.Setenv("STROM_STREAMS", "a, b ,c")
	t.Setenv("STROM_ALLOW_AUTO_CREATE_STREAMS", "false")
	t.Setenv("STROM_LOG_LEVEL", "debug")

	cfg := Default()
	FromEnv(&cfg)
	if cfg.HTTPAddr != ":6060" || cfg.Persistence != "memory" || cfg.LogLevel != "debug" {
		t.Fatalf("overlay wrong: %+v", cfg)
	}
	if cfg.AllowAutoCreateStreams {
		t.Fatalf("bool overlay lost")
	}
	if len(cfg.Streams) != 3 || cfg.Streams[1].Name != "b" {
		t.Fatalf("streams overlay wrong: %+v", cfg.Streams)
	}
}
