package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rzbill/strom/internal/runtime"
	"github.com/rzbill/strom/internal/stream"
	logpkg "github.com/rzbill/strom/pkg/log"
)

// Server exposes the runtime's streams over HTTP.
//
// Routes:
//   - /v1/healthz                     liveness probe
//   - /metrics                        Prometheus exposition
//   - /v1/streams                     GET: list open streams
//   - /v1/streams/{name}              the stream's pub/sub protocol
//   - /v1/streams/{name}/publish      POST: append one raw JSON entry
type Server struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
	srv    *http.Server
	lis    net.Listener
}

// New builds the server over an open runtime.
func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = rt.Logger()
	}
	mux := http.NewServeMux()
	s := &Server{rt: rt, logger: logger.WithComponent("http"), srv: &http.Server{Handler: cors(mux)}}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.Handle("/metrics", rt.Metrics().Handler())
	mux.HandleFunc("/v1/streams", s.handleListStreams)
	mux.HandleFunc("/v1/streams/", s.handleStream)
	return s
}

// Handler exposes the full route tree, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http server listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the listener.
func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_serving"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, map[string]any{"streams": s.rt.StreamNames()})
}

// handleStream dispatches /v1/streams/{name}[/publish].
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/streams/")
	name, action, _ := strings.Cut(rest, "/")
	if name == "" {
		writeError(w, http.StatusBadRequest, "Stream name is required")
		return
	}

	switch action {
	case "":
		st, ok := s.lookup(w, name, true)
		if !ok {
			return
		}
		st.ServeHTTP(w, r)
	case "publish":
		s.handlePublish(w, r, name)
	default:
		writeError(w, http.StatusNotFound, "Unknown stream action")
	}
}

// lookup resolves a stream by name. Reads never auto-create; a publish may,
// subject to configuration.
func (s *Server) lookup(w http.ResponseWriter, name string, readOnly bool) (*stream.Stream[stream.Raw], bool) {
	if st, ok := s.rt.Stream(name); ok {
		return st, true
	}
	if readOnly || !s.rt.Config().AllowAutoCreateStreams {
		writeError(w, http.StatusNotFound, "Stream not found")
		return nil, false
	}
	st, err := s.rt.OpenStream(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return st, true
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	st, ok := s.lookup(w, name, false)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "Body must be a JSON value")
		return
	}
	pos, err := st.Publish(stream.Raw(body))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, stream.ErrStreamInGracefulShutdown) {
			status = http.StatusServiceUnavailable
		} else if errors.Is(err, stream.ErrPublishToReleasedPublisher) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, pos)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}
