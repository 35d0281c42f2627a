package runtime

import (
	"os"
	"path/filepath"
	"testing"

	cfgpkg "github.com/rzbill/strom/internal/config"
)

func memConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Persistence = "memory"
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestOpenStreamIsIdempotent(t *testing.T) {
	rt, err := Open(Options{Config: memConfig(t)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	a, err := rt.OpenStream("orders")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	b, err := rt.OpenStream("orders")
	if err != nil {
		t.Fatalf("reopen stream: %v", err)
	}
	if a != b {
		t.Fatalf("OpenStream returned distinct instances for one name")
	}
	if got, ok := rt.Stream("orders"); !ok || got != a {
		t.Fatalf("Stream lookup failed")
	}
	if _, ok := rt.Stream("ghost"); ok {
		t.Fatalf("unknown stream resolved")
	}
}

func TestOpenStreamRejectsBadNames(t *testing.T) {
	rt, err := Open(Options{Config: memConfig(t)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	for _, name := range []string{"", "Has Space", "UPPER", "x/y"} {
		if _, err := rt.OpenStream(name); err == nil {
			t.Fatalf("name %q should be rejected", name)
		}
	}
}

func TestConfiguredStreamsOpenAtStart(t *testing.T) {
	cfg := memConfig(t)
	cfg.Streams = []cfgpkg.StreamConfig{{Name: "a"}, {Name: "b"}}
	rt, err := Open(Options{Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	if got := len(rt.StreamNames()); got != 2 {
		t.Fatalf("%d streams open, want 2", got)
	}
}

func TestFilePersistenceWritesJournals(t *testing.T) {
	cfg := memConfig(t)
	cfg.Persistence = "file"
	rt, err := Open(Options{Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	s, err := rt.OpenStream("orders")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if _, err := s.Publish([]byte(`{"n":1}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	journal := filepath.Join(cfg.DataDir, "streams", "orders.json")
	if _, err := os.Stat(journal); err != nil {
		t.Fatalf("journal missing: %v", err)
	}
}

func TestUnknownPersistenceRejected(t *testing.T) {
	cfg := memConfig(t)
	cfg.Persistence = "cloud"
	if _, err := Open(Options{Config: cfg}); err == nil {
		t.Fatalf("expected error for unknown persistence")
	}
}
