// Copyright 2025 James Ross
package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gwbischof/starq/internal/breaker"
	"github.com/gwbischof/starq/internal/config"
	"github.com/gwbischof/starq/internal/queuecore"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server is the business-API HTTP server: queue and job routes, separate
// from obs.StartHTTPServer's metrics/health listener.
type Server struct {
	cfg     *config.Config
	store   *queuecore.Store
	breaker *breaker.CircuitBreaker
	log     *zap.Logger
	server  *http.Server
}

func NewServer(cfg *config.Config, store *queuecore.Store, cb *breaker.CircuitBreaker, log *zap.Logger) *Server {
	return &Server{cfg: cfg, store: store, breaker: cb, log: log}
}

// Router builds the route table, exported so tests can exercise it directly
// with httptest without going through Start/Shutdown.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	h := &handlers{store: s.store, cfg: s.cfg, log: s.log}

	r.HandleFunc("/api/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/queues", h.listQueues).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/queues", h.createQueue).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/queues/{name}", h.getQueue).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/queues/{name}", h.deleteQueue).Methods(http.MethodDelete)
	r.HandleFunc("/api/v1/queues/{name}/jobs", h.submitJobs).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/queues/{name}/jobs", h.listJobs).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/queues/{name}/jobs/claim", h.claimJobs).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/queues/{name}/jobs/{job_id}/complete", h.completeJob).Methods(http.MethodPut)
	r.HandleFunc("/api/v1/queues/{name}/jobs/{job_id}/fail", h.failJob).Methods(http.MethodPut)

	var handler http.Handler = r
	handler = RecoveryMiddleware(s.log)(handler)
	handler = RequestIDMiddleware()(handler)
	if limit := s.cfg.HTTP.RateLimitPerSec; limit > 0 {
		handler = RateLimitMiddleware(rate.Limit(limit), s.cfg.HTTP.RateLimitBurst)(handler)
	}
	handler = AuthMiddleware(s.cfg.Auth.APIKeys)(handler)
	return handler
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.HTTP.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
	}
	s.log.Info("starting api server", zap.String("addr", s.cfg.HTTP.ListenAddr))
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
