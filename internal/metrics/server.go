package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mpifr-bdr/reynard/internal/log"
)

// Server is the per-daemon HTTP server exposing /metrics, grounded on
// the teacher's internal/metrics.Server (same ListenAndServe/Shutdown
// shape), adapted to log through logrus instead of log/slog.
type Server struct {
	addr   string
	path   string
	log    *logrus.Entry
	server *http.Server
}

// NewServer builds a metrics server. path defaults to "/metrics".
func NewServer(addr, path string) *Server {
	if path == "" {
		path = "/metrics"
	}
	return &Server{addr: addr, path: path, log: log.Component("metrics")}
}

// Start begins serving in the background and returns immediately; the
// listener is bound inside the serving goroutine, so bind and
// ListenAndServe errors surface asynchronously via log.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.Handler())

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.WithField("addr", s.addr).WithField("path", s.path).Info("starting metrics server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("metrics server failed")
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics: shutdown: %w", err)
	}
	s.log.Info("metrics server stopped")
	return nil
}
