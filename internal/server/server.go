// Package server exposes the upload core to editor integrations over HTTP and
// a websocket event bridge.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pasteup/internal/config"
	"pasteup/internal/intercept"
	"pasteup/internal/logging"
	"pasteup/internal/observability"
	"pasteup/internal/upload"
)

// Config configures the bridge server.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	Debug          bool
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Version        string
}

// DefaultConfig returns loopback defaults.
func DefaultConfig() Config {
	return Config{
		Host:         config.DefaultServerHost,
		Port:         config.DefaultServerPort,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		Version:      "dev",
	}
}

// Dependencies wires the server to the upload core.
type Dependencies struct {
	Orchestrator  *upload.Orchestrator
	Store         config.Store
	Observability *observability.Observability
	Logger        logging.Logger
}

// Server is the bridge HTTP server.
type Server struct {
	cfg    Config
	orch   *upload.Orchestrator
	store  config.Store
	obs    *observability.Observability
	logger logging.Logger

	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	runner     *intercept.GoRunner

	connMu sync.RWMutex
	conns  map[string]*bridgeConn

	startTime time.Time
}

// New builds the server and its routes.
func New(cfg Config, deps Dependencies) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	logger := deps.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("Server")
	}

	s := &Server{
		cfg:       cfg,
		orch:      deps.Orchestrator,
		store:     deps.Store,
		obs:       deps.Observability,
		logger:    logger,
		runner:    intercept.NewGoRunner(logger),
		conns:     make(map[string]*bridgeConn),
		startTime: time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(observabilityMiddleware(s.obs, logger))
	engine.Use(cors.New(cors.Config{
		AllowOriginFunc:  s.originAllowed,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowWebSockets:  true,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	s.engine = engine
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	if s.obs != nil && s.obs.Metrics.Enabled() {
		s.engine.GET("/metrics", gin.WrapH(s.obs.Metrics.Handler()))
	}

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/uploads", s.handleUpload)
		v1.GET("/events", s.handleEvents)
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("bridge listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve bridge: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, closes bridge connections and waits for
// uploads already started.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeAllConnections()

	done := make(chan struct{})
	go func() {
		s.runner.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, fmt.Errorf("waiting for uploads: %w", ctx.Err()))
	}
	return err
}

func (s *Server) handleHealth(c *gin.Context) {
	s.connMu.RLock()
	connections := len(s.conns)
	s.connMu.RUnlock()

	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		Version:     s.cfg.Version,
		Timestamp:   time.Now(),
		Uptime:      time.Since(s.startTime).Round(time.Second).String(),
		Uploading:   s.orch != nil && s.orch.Busy(),
		Connections: connections,
	})
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return isLoopbackOrigin(origin)
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// isLoopbackOrigin accepts http(s) origins whose host is exactly a loopback
// name or address.
func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.User != nil || (u.Path != "" && u.Path != "/") {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	switch host := strings.ToLower(u.Hostname()); host {
	case "localhost":
		return true
	default:
		ip := net.ParseIP(host)
		return ip != nil && ip.IsLoopback()
	}
}

func (s *Server) addConnection(conn *bridgeConn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conns[conn.id] = conn
}

func (s *Server) removeConnection(id string) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.conns, id)
}

func (s *Server) closeAllConnections() {
	s.connMu.Lock()
	conns := make([]*bridgeConn, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.conns = make(map[string]*bridgeConn)
	s.connMu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
}

func (s *Server) metrics() *observability.MetricsCollector {
	if s.obs == nil {
		return nil
	}
	return s.obs.Metrics
}
