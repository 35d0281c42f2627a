package serverrun

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cfgpkg "github.com/rzbill/strom/internal/config"
	"github.com/rzbill/strom/internal/runtime"
	httpserver "github.com/rzbill/strom/internal/server/http"
	logpkg "github.com/rzbill/strom/pkg/log"
)

// Options configures one server run.
type Options struct {
	Config cfgpkg.Config
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// everything down: server first, runtime (streams, storage) second.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so direct callers
	// get signal handling too.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config

	logger, err := logpkg.ApplyConfig(&logpkg.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		logger = logpkg.NewLogger()
	}
	// Route stdlib logs (e.g. Pebble) through our logger.
	logpkg.RedirectStdLog(logger)

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	logger.Info("starting strom server",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("persistence", cfg.Persistence),
		logpkg.Str("data_dir", rt.Config().DataDir),
		logpkg.Int("streams", len(rt.StreamNames())),
	)

	srv := httpserver.New(rt, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(sctx, cfg.HTTPAddr) }()

	select {
	case <-sctx.Done():
		srv.Close()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}
