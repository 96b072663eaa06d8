package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/FaserF/keyprice-scraper/internal/database"
	"github.com/FaserF/keyprice-scraper/internal/monitor"
)

// Server exposes /metrics, /status, /health and the manual-refresh endpoint.
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	metrics  *Metrics
	monitors map[string]*monitor.Monitor
}

// NewServer creates a new HTTP server. monitors is keyed by product id; db
// may be nil when the history store is disabled.
func NewServer(addr string, monitors map[string]*monitor.Monitor, db *database.DB, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	metrics := NewMetrics()

	s := &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger:   logger.With().Str("component", "http").Logger(),
		metrics:  metrics,
		monitors: monitors,
	}

	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/status", NewStatusHandler(monitors, db))
	mux.HandleFunc("/refresh", s.handleRefresh)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			panic(err)
		}
	})

	return s
}

// handleRefresh triggers a fetch outside the schedule for one product. The
// call blocks until the fetch (or the one already in flight it coalesces
// onto) completes, so the caller observes its result.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	productID := r.URL.Query().Get("product")
	mon, ok := s.monitors[productID]
	if !ok {
		http.Error(w, "unknown product", http.StatusNotFound)
		return
	}

	s.logger.Info().Str("productId", productID).Msg("manual refresh requested")

	err := mon.RequestRefresh(r.Context())
	response := map[string]any{
		"product": productID,
		"success": err == nil,
	}
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		response["error"] = err.Error()
		w.WriteHeader(http.StatusBadGateway)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error().Err(err).Msg("encoding refresh response")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Metrics returns the Prometheus metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}
