// Package dashboard implements the room controller's HTTP/WebSocket
// observability and control surface: status reporting, scene/command
// control, raw MQTT publish, and run history, guarded by a single shared
// operator secret. There is no multi-user model; a museum room has one
// console and one set of hands on it at a time.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Wadanator/museum-system-sub000/internal/history"
	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/config"
	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/logging"
	"github.com/Wadanator/museum-system-sub000/internal/mqttcoord"
	"github.com/Wadanator/museum-system-sub000/internal/show"
)

const gracefulShutdownTimeout = 10 * time.Second
const broadcastInterval = time.Second

// SceneRunner is the subset of show.Runner the dashboard drives and reads.
type SceneRunner interface {
	IsRunning() bool
	StartScene(ctx context.Context, scene *show.Scene, transitions *show.TransitionManager, trigger string) error
	Stop()
	Progress() show.Progress
}

// MQTTPublisher is the subset of mqttcoord.Client the dashboard's raw
// publish endpoint needs.
type MQTTPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// DeviceLister is the subset of mqttcoord.DeviceRegistry the status endpoint
// needs.
type DeviceLister interface {
	GetAllDevices() []mqttcoord.DeviceRecord
}

// Deps holds everything the dashboard server needs, injected by the
// controller's entrypoint.
type Deps struct {
	Config      config.DashboardConfig
	Security    config.SecurityConfig
	RoomID      string
	Version     string
	Logger      *logging.Logger
	LogBuffer   *LogBuffer
	Runner      SceneRunner
	Transitions *show.TransitionManager
	Loader      *show.Loader
	Executor    *show.Executor
	MQTT        MQTTPublisher
	Devices     DeviceLister
	History     history.Repository
}

// Server is the dashboard's HTTP/WebSocket server.
type Server struct {
	cfg      config.DashboardConfig
	security config.SecurityConfig
	roomID   string
	version  string
	log      *logging.Logger
	logBuf   *LogBuffer

	runner      SceneRunner
	transitions *show.TransitionManager
	loader      *show.Loader
	executor    *show.Executor
	mqtt        MQTTPublisher
	devices     DeviceLister
	history     history.Repository

	secret      string
	startedAt   time.Time
	hub         *Hub
	rateLimiter *rateLimiter
	httpServer  *http.Server
	cancel      context.CancelFunc
}

// New creates a dashboard server from its dependencies. The server is not
// started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Runner == nil {
		return nil, fmt.Errorf("scene runner is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("security.jwt.secret is required")
	}

	logBuf := deps.LogBuffer
	if logBuf == nil {
		logBuf = NewLogBuffer(deps.Config.LogBufferSize)
	}

	return &Server{
		cfg:         deps.Config,
		security:    deps.Security,
		roomID:      deps.RoomID,
		version:     deps.Version,
		log:         deps.Logger,
		logBuf:      logBuf,
		runner:      deps.Runner,
		transitions: deps.Transitions,
		loader:      deps.Loader,
		executor:    deps.Executor,
		mqtt:        deps.MQTT,
		devices:     deps.Devices,
		history:     deps.History,
		secret:      deps.Security.JWT.Secret,
		startedAt:   time.Now(),
		rateLimiter: newRateLimiter(),
	}, nil
}

// Start launches the HTTP listener and the background broadcast loop that
// pushes status updates to connected WebSocket clients.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.cfg.WS, s.log)
	go s.hub.Run(srvCtx)
	go s.broadcastLoop(srvCtx)

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("dashboard server error", "error", err)
		}
	}()

	s.log.Info("dashboard listening", "address", s.httpServer.Addr)
	return nil
}

// Close gracefully shuts down the dashboard server.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.log.Info("dashboard shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down dashboard: %w", err)
	}
	return nil
}

// HealthCheck reports whether the dashboard's listener is up.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("dashboard health check: %w", ctx.Err())
	default:
	}
	if s.httpServer == nil {
		return fmt.Errorf("dashboard server not started")
	}
	return nil
}

// broadcastLoop periodically pushes the current status snapshot to every
// connected WebSocket client, so a dashboard UI never has to poll.
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.Broadcast("status", s.buildStatus())
		}
	}
}
