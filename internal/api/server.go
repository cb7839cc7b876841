package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irbridge/core/internal/automation"
	"github.com/irbridge/core/internal/device"
	"github.com/irbridge/core/internal/dispatch"
	"github.com/irbridge/core/internal/infrastructure/config"
	"github.com/irbridge/core/internal/infrastructure/logging"
	"github.com/irbridge/core/internal/remote"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.ServerConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Devices     device.Repository
	Remotes     remote.Repository
	Automations automation.Repository
	Dispatcher  *dispatch.Dispatcher
	AckRouter   *dispatch.AckRouter
	Engine      *automation.Engine
	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API and WebSocket server for the IR Bridge core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.ServerConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	devices     device.Repository
	remotes     remote.Repository
	automations automation.Repository
	dispatcher  *dispatch.Dispatcher
	router      *dispatch.AckRouter
	engine      *automation.Engine
	tickets     *ticketIssuer
	version     string
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil || deps.Remotes == nil || deps.Automations == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Dispatcher == nil || deps.AckRouter == nil {
		return nil, fmt.Errorf("dispatch engine is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		devices:     deps.Devices,
		remotes:     deps.Remotes,
		automations: deps.Automations,
		dispatcher:  deps.Dispatcher,
		router:      deps.AckRouter,
		engine:      deps.Engine,
		tickets:     newTicketIssuer(deps.Security.JWT.Secret, deps.Security.JWT.TicketTTLDuration()),
		version:     deps.Version,
	}

	// Use an externally-provided hub when the caller registered it on
	// the dispatch mux before constructing the server.
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the WebSocket hub so the caller can register it as a
// push transport. Valid once New has run; the hub is created eagerly
// when none was injected.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It builds the router, starts the WebSocket hub and ticket pruning,
// and launches the HTTP listener in a background goroutine. The server
// is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	go s.hub.Run(srvCtx)

	// Periodic cleanup of consumed ticket IDs.
	go s.tickets.pruneLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket pruning)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
