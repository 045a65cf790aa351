package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/pm8sim/internal/bridges/modbus"
	"github.com/nerrad567/pm8sim/internal/device"
	"github.com/nerrad567/pm8sim/internal/infrastructure/config"
	"github.com/nerrad567/pm8sim/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultStreamInterval is the WebSocket state push period when unset.
const defaultStreamInterval = time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	DeviceID string
	Version  string
	State    *device.State
	Handler  *device.Handler

	// Modbus is optional; without it the serial link is reported as absent.
	Modbus *modbus.Server
}

// Server is the status HTTP API server.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	deviceID string
	version  string
	state    *device.State
	handler  *device.Handler
	modbus   *modbus.Server
	started  time.Time

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.State == nil || deps.Handler == nil {
		return nil, fmt.Errorf("device state and handler are required")
	}

	s := &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		deviceID: deps.DeviceID,
		version:  deps.Version,
		state:    deps.State,
		handler:  deps.Handler,
		modbus:   deps.Modbus,
		started:  time.Now(),
	}
	s.hub = NewHub(s.logger)
	return s, nil
}

// Start begins listening for HTTP connections in the background and starts
// the WebSocket state stream.
//
// Returns:
//   - error: Currently always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.streamLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down", "stream_dropped", s.hub.Dropped())
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

func (s *Server) stateMessage() modbus.StateMessage {
	return modbus.NewStateMessage(s.deviceID, s.state.Snapshot())
}

// streamLoop pushes state and health to WebSocket subscribers on every tick.
func (s *Server) streamLoop(ctx context.Context) {
	interval := s.cfg.StreamInterval
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.hub.ClientCount() > 0 {
				s.hub.Broadcast(ChannelDeviceState, s.stateMessage())
				s.hub.Broadcast(ChannelHealth, s.healthResponse())
			}
		}
	}
}
