package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	cfgpkg "github.com/rzbill/strom/internal/config"
	"github.com/rzbill/strom/internal/metrics"
	"github.com/rzbill/strom/internal/persistence"
	pebblestore "github.com/rzbill/strom/internal/storage/pebble"
	"github.com/rzbill/strom/internal/stream"
	logpkg "github.com/rzbill/strom/pkg/log"
)

var streamNameRe = regexp.MustCompile(`^[a-z0-9-_]{1,64}$`)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
}

// Runtime wires storage, config, metrics, and the named-stream registry for
// a single-node instance. Server-hosted streams carry Raw (opaque JSON)
// entries.
type Runtime struct {
	cfg     cfgpkg.Config
	logger  logpkg.Logger
	db      *pebblestore.DB
	metrics *metrics.Registry

	mu      sync.Mutex
	streams map[string]*stream.Stream[stream.Raw]
}

// Open initializes the underlying storage and the configured streams.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}

	rt := &Runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewRegistry(),
		streams: map[string]*stream.Stream[stream.Raw]{},
	}

	switch cfg.Persistence {
	case "pebble", "":
		mode, err := pebblestore.ParseFsyncMode(cfg.Fsync)
		if err != nil {
			return nil, err
		}
		db, err := pebblestore.Open(pebblestore.Options{
			DataDir:       filepath.Join(cfg.DataDir, "store"),
			Fsync:         mode,
			FsyncInterval: time.Duration(cfg.FsyncIntervalMs) * time.Millisecond,
		})
		if err != nil {
			return nil, err
		}
		rt.db = db
	case "memory", "file":
	default:
		return nil, fmt.Errorf("runtime: unknown persistence %q", cfg.Persistence)
	}

	for _, sc := range cfg.Streams {
		if _, err := rt.OpenStream(sc.Name); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

// OpenStream returns the named stream, opening it on first use.
func (rt *Runtime) OpenStream(name string) (*stream.Stream[stream.Raw], error) {
	if !streamNameRe.MatchString(name) {
		return nil, fmt.Errorf("runtime: invalid stream name %q", name)
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if s, ok := rt.streams[name]; ok {
		return s, nil
	}
	p, err := rt.newPersister(name)
	if err != nil {
		return nil, err
	}
	s := stream.New(p,
		stream.WithLogger[stream.Raw](rt.logger.WithComponent("stream").With(logpkg.Str("stream", name))),
		stream.WithMetrics[stream.Raw](rt.metrics.ForStream(name)),
	)
	rt.streams[name] = s
	rt.logger.Info("stream opened", logpkg.Str("stream", name), logpkg.Str("persistence", rt.persistenceKind()))
	return s, nil
}

// Stream returns an already open stream.
func (rt *Runtime) Stream(name string) (*stream.Stream[stream.Raw], bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	s, ok := rt.streams[name]
	return s, ok
}

// StreamNames lists the open streams.
func (rt *Runtime) StreamNames() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	names := make([]string, 0, len(rt.streams))
	for name := range rt.streams {
		names = append(names, name)
	}
	return names
}

func (rt *Runtime) persistenceKind() string {
	if rt.cfg.Persistence == "" {
		return "pebble"
	}
	return rt.cfg.Persistence
}

func (rt *Runtime) newPersister(name string) (persistence.Persister[stream.Raw], error) {
	codec := persistence.JSONCodec[stream.Raw]{}
	switch rt.persistenceKind() {
	case "memory":
		return persistence.NewMemory[stream.Raw](), nil
	case "file":
		dir := filepath.Join(rt.cfg.DataDir, "streams")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		return persistence.NewFile[stream.Raw](filepath.Join(dir, name+".json"), codec)
	default:
		return persistence.NewPebble[stream.Raw](rt.db, name, codec)
	}
}

// CheckHealth performs a simple storage probe.
func (rt *Runtime) CheckHealth(ctx context.Context) error {
	if rt.persistenceKind() != "pebble" {
		return nil
	}
	if rt.db == nil {
		return errors.New("runtime: db not open")
	}
	it, err := rt.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Metrics returns the process metrics registry.
func (rt *Runtime) Metrics() *metrics.Registry { return rt.metrics }

// Config returns the runtime configuration.
func (rt *Runtime) Config() cfgpkg.Config { return rt.cfg }

// Logger returns the process logger.
func (rt *Runtime) Logger() logpkg.Logger { return rt.logger }

// Close shuts every stream down, then the shared database.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	streams := rt.streams
	rt.streams = map[string]*stream.Stream[stream.Raw]{}
	rt.mu.Unlock()
	var firstErr error
	for name, s := range streams {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("runtime: close stream %q: %w", name, err)
		}
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
