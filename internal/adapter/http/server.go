// Package http is the operational HTTP surface: liveness, readiness, and
// Prometheus metrics. Nothing here serves driver data; the consumer-facing
// API is out of scope.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/fhv-driver-etl/internal/domain"
)

// checkTimeout bounds the store ping and readiness check per request.
const checkTimeout = 2 * time.Second

// SyncStatus reports the ingestion pipeline's state. The syncer satisfies
// this: ready means at least one sync pass has succeeded, and LastSync
// carries that pass's summary.
type SyncStatus interface {
	CheckReadiness(ctx context.Context) error
	LastSync() (domain.SyncResult, bool)
}

// Pinger verifies the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthResponse is the /healthz payload.
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// readyResponse is the /readyz payload. LastSync is set only once the
// service is ready.
type readyResponse struct {
	Status   string             `json:"status"`
	Reason   string             `json:"reason,omitempty"`
	LastSync *domain.SyncResult `json:"last_sync,omitempty"`
}

// Server exposes the ops endpoints for the ETL service.
type Server struct {
	httpServer *http.Server
	status     SyncStatus
	db         Pinger
	logger     *slog.Logger
}

// NewServer wires /healthz (store reachability), /readyz (sync pipeline
// state), and /metrics onto addr.
func NewServer(addr string, status SyncStatus, db Pinger, logger *slog.Logger) *Server {
	s := &Server{
		status: status,
		db:     db,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("ops server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleHealth reports liveness. The process serving a response is half the
// answer; the other half is whether the store behind every operation is
// reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("health check: store unreachable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:   "degraded",
			Database: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "ok"})
}

// handleReady reports whether the service has completed a sync pass. Ready
// responses include that pass's summary so operators can see data freshness
// without querying the store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	if err := s.status.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, readyResponse{
			Status: "not ready",
			Reason: err.Error(),
		})
		return
	}

	resp := readyResponse{Status: "ready"}
	if last, ok := s.status.LastSync(); ok {
		resp.LastSync = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort ops response
}
