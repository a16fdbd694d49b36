// Package server is the HTTP front of "speakdrill serve": it serves the
// origin through the offline cache worker, accepts worker commands and
// exposes metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/speakdrill/speakdrill/internal/cache"
	"github.com/speakdrill/speakdrill/internal/config"
	"github.com/speakdrill/speakdrill/internal/metrics"
)

// Paths served by the front itself. Everything else goes to the worker.
const (
	MessagePath = "/__speakdrill/message"
	StatusPath  = "/__speakdrill/status"
	MetricsPath = "/metrics"
)

const maxMessageSize = 1 << 20

// Server routes requests to the cache worker.
type Server struct {
	env     config.ServerEnv
	worker  *cache.Worker
	metrics *metrics.Metrics
	logger  *log.Logger
	router  chi.Router
}

// New builds the router. m may be nil to disable /metrics.
func New(env config.ServerEnv, worker *cache.Worker, m *metrics.Metrics, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{env: env, worker: worker, metrics: m, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if env.LogRequests {
		r.Use(RequestLogger(logger))
	}
	if m != nil {
		r.Use(metrics.RequestMiddleware(m))
		if env.Metrics {
			r.Method(http.MethodGet, MetricsPath, m.Handler(func() {
				m.SetStoreStats(worker.Stats())
			}))
		}
	}

	r.Post(MessagePath, s.handleMessage)
	r.Get(StatusPath, s.handleStatus)
	r.Handle("/*", worker.Handler())

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleMessage accepts a worker command and queues it. The reply does not
// wait for the command to run.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		http.Error(w, "unable to read body", http.StatusBadRequest)
		return
	}
	msg, err := cache.DecodeMessage(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !s.worker.Post(msg) {
		http.Error(w, "worker unavailable", http.StatusServiceUnavailable)
		return
	}
	s.logger.Debug("message queued", "type", msg.Type, "urls", len(msg.URLs))
	w.WriteHeader(http.StatusAccepted)
}

type storeStatus struct {
	Items    int64 `json:"items"`
	Size     int64 `json:"size"`
	Capacity int64 `json:"capacity"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
}

type statusResponse struct {
	State  string                 `json:"state"`
	Stores map[string]storeStatus `json:"stores"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		State:  s.worker.State().String(),
		Stores: make(map[string]storeStatus),
	}
	for name, st := range s.worker.Stats() {
		resp.Stores[name] = storeStatus{
			Items:    st.ItemCount,
			Size:     st.Size,
			Capacity: st.Capacity,
			Hits:     st.Hits,
			Misses:   st.Misses,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("unable to write status", "error", err)
	}
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.env.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.env.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	s.logger.Info("server starting", "addr", ln.Addr().String(), "state", s.worker.State())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.env.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
