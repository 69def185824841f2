// Package api provides the HTTP REST API and WebSocket server for the
// actuation service.
//
// It exposes the actuation endpoints (synchronous and asynchronous),
// action status queries, the confirmation handshake, recent telemetry,
// the VDI task proxy endpoints, and a WebSocket stream of lifecycle
// telemetry events.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
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

	"github.com/unison-systems/actuation-core/internal/audit"
	"github.com/unison-systems/actuation-core/internal/auth"
	"github.com/unison-systems/actuation-core/internal/confirm"
	"github.com/unison-systems/actuation-core/internal/engine"
	"github.com/unison-systems/actuation-core/internal/gate"
	"github.com/unison-systems/actuation-core/internal/infrastructure/config"
	"github.com/unison-systems/actuation-core/internal/infrastructure/logging"
	"github.com/unison-systems/actuation-core/internal/policy"
	"github.com/unison-systems/actuation-core/internal/telemetry"
	"github.com/unison-systems/actuation-core/internal/vdi"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is anything that can report its own liveness. The
// readiness endpoint probes every registered checker.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.ServiceConfig
	WS          config.WebSocketConfig
	Auth        config.ActuationConfig
	Logger      *logging.Logger
	Engine      *engine.Engine
	Coordinator *confirm.Coordinator
	Emitter     *telemetry.Emitter
	AuditRepo   audit.Repository
	Gate        *gate.Gate
	Policy      policy.Evaluator
	VDIProxy    *vdi.Proxy
	Version     string

	// Readiness maps probe names to checkers consulted by GET /readyz.
	Readiness map[string]HealthChecker
}

// Server is the HTTP API server for the actuation service.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.ServiceConfig
	wsCfg       config.WebSocketConfig
	authCfg     config.ActuationConfig
	logger      *logging.Logger
	engine      *engine.Engine
	coordinator *confirm.Coordinator
	emitter     *telemetry.Emitter
	auditRepo   audit.Repository
	gate        *gate.Gate
	policy      policy.Evaluator
	vdiProxy    *vdi.Proxy
	verifier    *auth.Verifier
	readiness   map[string]HealthChecker
	version     string
	server      *http.Server
	hub         *Hub
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, engine)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("execution engine is required")
	}
	// VDI proxy, emitter, and audit repo are optional — their
	// endpoints degrade to 503 / empty responses without them.

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		authCfg:     deps.Auth,
		logger:      deps.Logger,
		engine:      deps.Engine,
		coordinator: deps.Coordinator,
		emitter:     deps.Emitter,
		auditRepo:   deps.AuditRepo,
		gate:        deps.Gate,
		policy:      deps.Policy,
		vdiProxy:    deps.VDIProxy,
		readiness:   deps.Readiness,
		version:     deps.Version,
	}

	if deps.Auth.RequireAuth {
		s.verifier = auth.NewVerifier(deps.Auth.TokenSecret, deps.Auth.ServiceToken)
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, wires the hub into
// the telemetry emitter so lifecycle events stream to connected
// clients, and launches the HTTP listener in a background goroutine.
// The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

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

// Hub returns the WebSocket hub, available after Start(). The
// telemetry emitter is wired to it as a sink in main.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

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
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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
