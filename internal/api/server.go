// Package api exposes the codec, the matcher and the workspace over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"firestige.xyz/wirelab/internal/log"
	"firestige.xyz/wirelab/internal/metrics"
	"firestige.xyz/wirelab/internal/service"
	"firestige.xyz/wirelab/internal/store"
	"firestige.xyz/wirelab/pkg/plugin"
)

// Server is the HTTP API of the serve command.
type Server struct {
	store   *store.Store
	parsers []plugin.Parser

	router *gin.Engine
	server *http.Server
	ln     net.Listener

	mu     sync.Mutex
	cached *store.Workspace
	ident  *service.Identifier
}

// NewServer creates a server over s. mode is a gin mode.
func NewServer(s *store.Store, parsers []plugin.Parser, mode string) *Server {
	if mode != "" {
		gin.SetMode(mode)
	}
	srv := &Server{store: s, parsers: parsers}
	srv.setup()
	return srv
}

func (s *Server) setup() {
	s.router = gin.New()
	s.router.Use(gin.Recovery(), requestLogger())

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/decode", s.Decode)
		v1.POST("/encode", s.Encode)
		v1.POST("/match", s.Match)
		v1.POST("/stun", s.STUN)

		v1.GET("/workspace", s.GetWorkspace)
		v1.PUT("/workspace", s.PutWorkspace)
		v1.GET("/protocols", s.ListProtocols)
		v1.GET("/protocols/:id", s.GetProtocol)
		v1.GET("/templates", s.ListTemplates)
		v1.GET("/templates/:id", s.GetTemplate)
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestLogger logs every request at debug level and counts it.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		log.GetLogger().WithFields(map[string]interface{}{
			"method":  c.Request.Method,
			"route":   route,
			"status":  status,
			"elapsed": time.Since(start).String(),
		}).Debug("api request")
	}
}

// identifier returns an Identifier for the current workspace snapshot,
// rebuilding it only when the snapshot changed.
func (s *Server) identifier() (*store.Workspace, *service.Identifier) {
	ws := s.store.Workspace()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != ws || s.ident == nil {
		s.cached = ws
		s.ident = service.NewIdentifier(ws, s.parsers)
	}
	return ws, s.ident
}

// Start binds addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api server listen failed: %w", err)
	}
	s.ln = ln
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.GetLogger().WithField("addr", ln.Addr().String()).Info("starting api server")
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.GetLogger().WithError(err).Error("api server error")
		}
	}()
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	log.GetLogger().Info("api server stopped")
	return nil
}
