// Package livehttp exposes the engine's operational HTTP surface: health,
// prometheus metrics, risk status and trade/diagnostic queries.
package livehttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"optrix/internal/logger"
	"optrix/internal/risk"
	"optrix/internal/store"
	"optrix/internal/tenant"
)

// Server serves the operational API.
type Server struct {
	addr   string
	router *gin.Engine
	http   *http.Server
}

// ServerConfig describes the server dependencies.
type ServerConfig struct {
	Addr    string
	Tenant  tenant.ID
	Store   store.Store
	Monitor *risk.Monitor
}

// NewServer builds the HTTP server and mounts all routes.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("live http server requires a store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9985"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), tenantContext(cfg.Tenant))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r := &Router{Store: cfg.Store, Monitor: cfg.Monitor}
	r.Register(router.Group("/api"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Start begins serving and blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.http = &http.Server{Addr: s.addr, Handler: s.router}
	logger.Infof("http: listening on %s", s.addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/metrics" {
			return
		}
		logger.Infof("http: %s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// tenantContext stamps every request context with the process tenant so
// store calls made from handlers pass the tenant guard.
func tenantContext(id tenant.ID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(tenant.With(c.Request.Context(), id))
		c.Next()
	}
}
