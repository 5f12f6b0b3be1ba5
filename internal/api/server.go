package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/bambi-core/internal/door"
	"github.com/nerrad567/bambi-core/internal/infrastructure/config"
	"github.com/nerrad567/bambi-core/internal/infrastructure/logging"
	"github.com/nerrad567/bambi-core/internal/joblog"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the door controller surface used by the handlers.
type Controller interface {
	Status() door.Status
	OpenDoor(ctx context.Context) error
	CloseDoor(ctx context.Context) error
	SaveServo(ctx context.Context, openAngle, closeAngle int) error
	Servo(ctx context.Context) (config.ServoConfig, error)
	StartBot(ctx context.Context) error
	Materials(ctx context.Context) (config.MaterialsConfig, error)
	SetMaterials(ctx context.Context, m config.MaterialsConfig) error
	AddStatusSink(sink door.StatusSink)
}

// History reads the job log.
type History interface {
	List(ctx context.Context, limit int) ([]joblog.Event, error)
}

// HealthChecker is implemented by infrastructure components reported on
// by the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Controller Controller
	History    History                  // optional
	Health     map[string]HealthChecker // optional, keyed by component name
	Version    string
}

// Server is the HTTP status server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	controller Controller
	history    History
	health     map[string]HealthChecker
	version    string
	hub        *Hub
	server     *http.Server
	listener   net.Listener
	cancel     context.CancelFunc
}

// New creates a new API server and registers its WebSocket hub as a
// status sink on the controller.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		controller: deps.Controller,
		history:    deps.History,
		health:     deps.Health,
		version:    deps.Version,
		hub:        NewHub(deps.Logger),
	}
	deps.Controller.AddStatusSink(s.hub)

	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in a background goroutine.
//
// Returns an error if the address cannot be bound (port in use, etc.).
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running.
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
