// Package httpapi serves the operator API: engine status, pause/resume,
// manual target execution, manual closes, audit listings and Prometheus
// metrics. It is a control surface, not a public API; it binds to the
// configured address without auth.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sniper/internal/engine/monitor"
	"sniper/internal/engine/scheduler"
	"sniper/internal/gateway/exchange"
	"sniper/internal/logger"
	"sniper/internal/metrics"
	"sniper/internal/store"
)

type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig carries the handler dependencies.
type ServerConfig struct {
	Addr      string
	Scheduler *scheduler.Scheduler
	Monitor   *monitor.Monitor
	Stores    *store.Stores
	Client    exchange.Client
	Metrics   *metrics.Metrics

	// BreakerState reports the exchange circuit breaker, e.g. "closed".
	BreakerState func() string

	StartedAt time.Time
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Stores == nil {
		return nil, errors.New("http server requires stores")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
			cfg.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	h := &handlers{cfg: cfg}
	h.register(router.Group("/api/v1"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string { return s.addr }

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("http: listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}
