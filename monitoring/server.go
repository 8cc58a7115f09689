package monitoring

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"uartviewer/config"
	"uartviewer/format"
	"uartviewer/session"
)

//go:embed dashboard.html
var dashboardHTML string

// Server provides HTTP endpoints for monitoring and remote control of the
// port sessions
type Server struct {
	config   *config.MonitoringConfig
	registry *session.Registry
	hub      *Hub
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a new monitoring server. configPath may be empty when the
// process runs on defaults, which disables /api/config.
func NewServer(cfg *config.Config, configPath, version string, registry *session.Registry, clock *format.Clock, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	hub := NewHub(registry, logger)

	// Health endpoint
	mux.Handle("/health", NewHealthHandler(cfg.App.InstanceID, version, registry))

	// Metrics endpoint (Prometheus format)
	mux.Handle("/metrics", NewMetricsHandler(registry, hub))

	// Config endpoint
	mux.Handle("/api/config", NewConfigHandler(configPath))

	// Port discovery
	mux.Handle("/api/ports", NewPortsHandler(cfg.Discovery.Prefixes))
	mux.Handle("/api/sysports", NewSysPortsHandler(DefaultProcSerialPath, registry))

	// Sessions
	mux.Handle("/api/sessions", NewSessionsHandler(registry))
	mux.Handle("/api/sessions/connect", NewConnectHandler(registry))
	mux.Handle("/api/sessions/disconnect", NewDisconnectHandler(registry))
	mux.Handle("/api/send", NewSendHandler(registry))
	mux.Handle("/api/log", NewLogHandler(registry))
	mux.Handle("/api/search", NewSearchHandler(registry, cfg.Search.ResumeOnReopen))
	mux.Handle("/api/save", NewSaveHandler(registry, cfg.Monitoring.SaveDir))
	mux.Handle("/api/timestamp", NewTimestampHandler(clock))

	// Live stream
	mux.Handle("/ws", hub)

	// Dashboard endpoint
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, dashboardHTML)
	})

	return &Server{
		config:   &cfg.Monitoring,
		registry: registry,
		hub:      hub,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Monitoring.Port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Hub returns the websocket hub. Register it with the registry as a sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the monitoring server
func (s *Server) Start() error {
	s.logger.Info("Starting monitoring server", "port", s.config.Port)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Monitoring server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the monitoring server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping monitoring server")
	return s.server.Shutdown(ctx)
}
