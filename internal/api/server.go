// Package api provides the HTTP REST API and Prometheus metrics endpoint
// for the Marstek Cloud Bridge.
//
// It exposes the latest poll snapshot (devices, fleet summary, health)
// and lets operators manage per-device capacity overrides. The server
// never talks to the vendor cloud itself; everything it serves comes
// from the poller's published snapshot.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"marstek-bridge/internal/infrastructure/config"
	"marstek-bridge/internal/infrastructure/logging"
	"marstek-bridge/internal/poller"
	"marstek-bridge/internal/settings"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SnapshotSource supplies the latest poll state. *poller.Coordinator
// implements it.
type SnapshotSource interface {
	Snapshot() poller.Snapshot
}

// HealthChecker is implemented by infrastructure components that can
// report their own liveness (database, MQTT, InfluxDB).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Poller   SnapshotSource
	Settings settings.Store

	// Checks are named component health checks reported by /health.
	// Optional components (MQTT, InfluxDB) are simply absent.
	Checks map[string]HealthChecker

	Version string
}

// Server is the bridge's HTTP API server.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	poller   SnapshotSource
	settings settings.Store
	checks   map[string]HealthChecker
	version  string

	server *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Poller == nil {
		return nil, fmt.Errorf("snapshot source is required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings store is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		poller:   deps.Poller,
		settings: deps.Settings,
		checks:   deps.Checks,
		version:  deps.Version,
	}, nil
}

// Start launches the HTTP listener in a background goroutine.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.buildRouter(),
		ReadTimeout:  time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("api server listening", "addr", addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server failed", "error", err)
		}
	}()

	return nil
}

// Close shuts the listener down, letting in-flight requests finish.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down api server: %w", err)
	}
	return nil
}
