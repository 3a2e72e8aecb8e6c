package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tradinglab/internal/api/health"
	"tradinglab/internal/api/stream"
	"tradinglab/internal/metrics"
	"tradinglab/pkg/errors"
	"tradinglab/pkg/logger"
)

// ServerConfig contains configuration for HTTP server
type ServerConfig struct {
	Port        int
	ServiceName string
	Version     string
}

// Server wraps HTTP server with lifecycle management
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer creates and configures HTTP server with all routes
func NewServer(cfg ServerConfig, healthHandler *health.Handler, hub *stream.Hub, h *Handlers, log *logger.Logger) *Server {
	mux := http.NewServeMux()

	// Health check endpoints (Kubernetes probes)
	mux.HandleFunc("/health", healthHandler.HandleHealth)
	mux.HandleFunc("/ready", healthHandler.HandleReadiness)
	mux.HandleFunc("/live", healthHandler.HandleLiveness)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", metrics.Handler())

	// Event stream
	mux.HandleFunc("/ws", hub.HandleWS)

	// Onboarding step machine
	mux.HandleFunc("GET /onboarding/state", h.OnboardingState)
	mux.HandleFunc("POST /onboarding/next", h.OnboardingNext)
	mux.HandleFunc("POST /onboarding/back", h.OnboardingBack)
	mux.HandleFunc("POST /onboarding/skip", h.OnboardingSkip)
	mux.HandleFunc("POST /onboarding/complete", h.OnboardingComplete)
	mux.HandleFunc("POST /onboarding/reset", h.OnboardingReset)
	mux.HandleFunc("POST /onboarding/strategy", h.SelectStrategy)
	mux.HandleFunc("POST /onboarding/strategy/config", h.SetStrategyConfig)
	mux.HandleFunc("POST /onboarding/logout", h.Logout)

	// Account network
	mux.HandleFunc("GET /network", h.NetworkSnapshot)
	mux.HandleFunc("POST /network/core", h.ConnectCore)
	mux.HandleFunc("POST /network/satellites", h.ConnectSatellite)
	mux.HandleFunc("DELETE /network/satellites/{id}", h.RemoveSatellite)
	mux.HandleFunc("POST /network/reset", h.ResetNetwork)

	// Strategy activation
	mux.HandleFunc("POST /activation", h.StartActivation)
	mux.HandleFunc("GET /activation/{id}", h.ActivationStatus)
	mux.HandleFunc("POST /activation/check", h.CheckConflicts)

	// Root endpoint (service info)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"service":"%s","version":"%s","status":"running"}`,
			cfg.ServiceName, cfg.Version)
	})

	port := 8080
	if cfg.Port > 0 {
		port = cfg.Port
	}

	log.Infof("HTTP server configured on port %d", port)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		log:        log,
	}
}

// Start begins listening for HTTP requests
// Blocks until server is stopped or encounters an error
func (s *Server) Start() error {
	s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
// Waits for active connections to complete within timeout
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}

	s.log.Info("HTTP server stopped")
	return nil
}
