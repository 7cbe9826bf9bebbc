// Package api serves engine reports and paged rows as JSON over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Veraticus/draftflow/internal/certs"
	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/config"
	"github.com/Veraticus/draftflow/internal/engine"
	"github.com/Veraticus/draftflow/internal/model"
)

// SessionHeader carries the paging session between requests.
const SessionHeader = "X-Session-ID"

// Server exposes one engine over HTTP. Paging sessions live in a bounded
// LRU; the least recently used session is dropped when it is full.
type Server struct {
	engine   *engine.Engine
	sessions *lru.Cache[string, *engine.Session]
	router   *gin.Engine
	certs    certs.Provider
	now      func() time.Time
	cfg      config.ServerConfig
}

// New builds a server and its routes.
func New(eng *engine.Engine, cfg config.ServerConfig) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("%w: engine is required", common.ErrMissingConfig)
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = config.Default().Server.MaxSessions
	}
	sessions, err := lru.NewWithEvict(cfg.MaxSessions, func(id string, s *engine.Session) {
		slog.Debug("Dropping paging session", "session", id, "table", s.Table())
		s.Invalidate()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}

	s := &Server{
		engine:   eng,
		sessions: sessions,
		now:      time.Now,
		cfg:      cfg,
	}
	if cfg.TLS {
		host, _, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("%w: server address %q: %w", common.ErrInvalidConfig, cfg.Addr, err)
		}
		s.certs = certs.NewFileManager(cfg.CertDir, host)
	}
	s.router = s.routes()
	return s, nil
}

// SetCertificates serves TLS with certificates from p.
func (s *Server) SetCertificates(p certs.Provider) {
	s.certs = p
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(logger())

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/quality", s.quality)
		v1.GET("/group", s.group)
		v1.GET("/detail", s.detail)
		v1.GET("/trend", s.trend)
		v1.GET("/distribution", s.distribution)
		v1.GET("/correlation", s.correlation)
		v1.GET("/flow", s.flow)

		v1.GET("/comparisons", s.pager(model.TableComparisons))
		v1.GET("/threads", s.pager(model.TableSupportThreads))
		v1.DELETE("/sessions/:id", s.deleteSession)
	}
	return r
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) httpServer() (*http.Server, error) {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	if s.certs != nil {
		tlsCfg, err := certs.TLSConfig(s.certs)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		srv.TLSConfig = tlsCfg
	}
	return srv, nil
}

// Run serves on the configured address until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv, err := s.httpServer()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if srv.TLSConfig != nil {
			slog.Info("Starting API server", "addr", s.cfg.Addr, "tls", true)
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		slog.Info("Starting API server", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	slog.Info("Shutting down API server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	s.sessions.Purge()
	return nil
}
