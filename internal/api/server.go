package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-valves/internal/queue"
	"github.com/nerrad567/gray-logic-valves/internal/store"
	"github.com/nerrad567/gray-logic-valves/internal/valve"
)

const shutdownTimeout = 10 * time.Second

// QueueView is the read side of the actuation queue.
type QueueView interface {
	Len() int
	InFlight() bool
	LastDispatch() time.Time
	Pending() []queue.Pending
}

// StateLister lists persisted controller state.
type StateLister interface {
	List(ctx context.Context) ([]store.Record, error)
}

// ConnectionChecker reports broker connectivity.
type ConnectionChecker interface {
	IsConnected() bool
}

// Deps wires the server. States, MQTT and DB may be nil.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Valves  *valve.Registry
	Queue   QueueView
	States  StateLister
	MQTT    ConnectionChecker
	DB      *sql.DB
	Version string
}

// Server serves the local JSON API and /metrics.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	valves    *valve.Registry
	queue     QueueView
	states    StateLister
	mqtt      ConnectionChecker
	db        *sql.DB
	version   string
	startTime time.Time
	server    *http.Server
	addr      string
}

// New validates deps. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("api: logger is required")
	case deps.Valves == nil:
		return nil, errors.New("api: valve registry is required")
	case deps.Queue == nil:
		return nil, errors.New("api: actuation queue is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		valves:    deps.Valves,
		queue:     deps.Queue,
		states:    deps.States,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listen address and serves in the background. A bind
// failure, such as the port being taken, is returned here.
func (s *Server) Start(_ context.Context) error {
	t := s.cfg.Timeouts
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       config.Seconds(t.Read),
		ReadHeaderTimeout: config.Seconds(t.Read),
		WriteTimeout:      config.Seconds(t.Write),
		IdleTimeout:       config.Seconds(t.Idle),
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		s.server = nil
		return fmt.Errorf("api listen: %w", err)
	}
	s.addr = ln.Addr().String()
	s.logger.Info("API server listening", "address", s.addr)

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped", "error", err)
		}
	}()
	return nil
}

// Addr is the bound address after Start, with the real port when the
// configured port was 0.
func (s *Server) Addr() string { return s.addr }

// Close waits up to shutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

// HealthCheck fails until Start has succeeded.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
