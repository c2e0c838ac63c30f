// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/FairForge/switchyard/internal/config"
	"github.com/FairForge/switchyard/internal/endpoint"
	"github.com/FairForge/switchyard/internal/health"
	"github.com/FairForge/switchyard/internal/orchestrator"
	"github.com/FairForge/switchyard/internal/statestore"
)

// ScoreSource hands out the most recent assessment per unit/environment.
type ScoreSource interface {
	LastScore(unitID string, env endpoint.Environment) *health.Score
}

// Server is the read-only status API. It never mutates state; cutovers and
// failovers go through the CLI, which holds the orchestrator locks.
type Server struct {
	cfg        *config.Config
	store      statestore.Store
	scores     ScoreSource
	rto        *orchestrator.RTOTracker
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates a status API server listening on the configured port.
func NewServer(cfg *config.Config, store statestore.Store, scores ScoreSource,
	rto *orchestrator.RTOTracker, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:       cfg,
		store:     store,
		scores:    scores,
		rto:       rto,
		gatherer:  gatherer,
		logger:    logger,
		startTime: time.Now(),
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Service.APIPort),
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed separately so tests can mount it.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", s.handleHealthz)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/units", s.handleListUnits)
		r.Get("/units/{id}", s.handleGetUnit)
		r.Get("/units/{id}/health", s.handleUnitHealth)
		r.Get("/rto", s.handleRTO)
	})
	return r
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status API listening", zap.String("addr", s.httpServer.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": s.cfg.Service.Name,
		"uptime":  time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.logger.Error("API error", zap.Error(err), zap.Int("status", status))
	s.respondJSON(w, status, map[string]string{"error": err.Error()})
}
