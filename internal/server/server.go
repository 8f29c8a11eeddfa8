// Package server exposes health and Prometheus endpoints for a running bot.
package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Veraticus/pricebot/internal/certs"
	"github.com/Veraticus/pricebot/internal/common"
)

const (
	pingTimeout     = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health is the /healthz response body.
type Health struct {
	Status        string  `json:"status"`
	Uptime        string  `json:"uptime"`
	Storage       string  `json:"storage"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
}

// Server is the ops HTTP server.
type Server struct {
	started  time.Time
	pinger   Pinger
	logger   common.Logger
	gatherer prometheus.Gatherer
	now      func() time.Time
	certs    certs.Manager
	addr     string
}

// Option configures a Server.
type Option func(*Server)

// WithTLS serves HTTPS using the manager's certificate.
func WithTLS(m certs.Manager) Option {
	return func(s *Server) {
		s.certs = m
	}
}

// New creates a server listening on addr. Metrics come from the default registry.
func New(addr string, pinger Pinger, logger common.Logger, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		pinger:   pinger,
		logger:   logger,
		gatherer: prometheus.DefaultGatherer,
		now:      time.Now,
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if s.certs != nil {
		cert, err := s.certs.Certificate()
		if err != nil {
			return fmt.Errorf("failed to load ops server certificate: %w", err)
		}
		srv.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Ops server listening", common.Fields{"address": s.addr, "tls": s.certs != nil})
		if s.certs != nil {
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("Ops server stopped", nil)
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := s.now().Sub(s.started)
	health := Health{
		Status:        "ok",
		Storage:       "ok",
		Uptime:        uptime.Truncate(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		Goroutines:    runtime.NumGoroutine(),
	}
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := s.pinger.Ping(ctx); err != nil {
		health.Status = "degraded"
		health.Storage = err.Error()
		code = http.StatusServiceUnavailable
		s.logger.Warn("Health check failed", common.Fields{"error": err})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Error("Failed to write health response", common.Fields{"error": err})
	}
}
