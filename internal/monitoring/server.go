package monitoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// Server exposes /metrics and /healthz for the watcher process.
type Server struct {
	addr      string
	collector *Collector
	logger    *slog.Logger
	started   time.Time
	router    *gin.Engine
}

// NewServer builds the router; call Serve to listen.
func NewServer(addr string, collector *Collector, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		addr:      addr,
		collector: collector,
		logger:    logger,
		started:   time.Now().UTC(),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", s.health)
	if registry := collector.Registry(); registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
	s.router = router
	return s
}

// Handler returns the underlying router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("monitoring listener started", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("monitoring listener: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("monitoring shutdown: %w", err)
	}
	s.logger.Info("monitoring listener stopped")
	return nil
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"status":     "ok",
		"started_at": s.started.Format(time.RFC3339),
	}
	if last := s.collector.LastPass(); !last.IsZero() {
		body["last_pass_at"] = last.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, body)
}
