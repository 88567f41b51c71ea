package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// DefaultPort is the standard NATS client port.
const DefaultPort = 4222

// state, fault and control messages are small JSON documents
const maxPayload = 64 * 1024

// ServerOptions configures the embedded NATS server.
type ServerOptions struct {
	Host string
	// Port 0 selects DefaultPort; -1 picks a free port.
	Port int
	Name string
	// ReadyTimeout bounds how long Serve waits for the listener.
	ReadyTimeout time.Duration
	Logger       *slog.Logger
}

// DefaultServerOptions binds the broker to loopback only.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		Host:         "127.0.0.1",
		Port:         DefaultPort,
		Name:         "camstream",
		ReadyTimeout: 5 * time.Second,
	}
}

// Server is the embedded broker used when no external NATS server is
// configured. Serve owns its whole lifetime, so it can run under the
// supervisor like any other service.
type Server struct {
	opts   ServerOptions
	logger *slog.Logger

	mu        sync.Mutex
	ns        *server.Server
	ready     chan struct{}
	readyOnce sync.Once
}

// NewServer creates an embedded server; nothing listens until Serve.
func NewServer(opts ServerOptions) *Server {
	defaults := DefaultServerOptions()
	if opts.Port == 0 {
		opts.Port = defaults.Port
	}
	if opts.Host == "" {
		opts.Host = defaults.Host
	}
	if opts.Name == "" {
		opts.Name = defaults.Name
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaults.ReadyTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		opts:   opts,
		logger: logger.With("component", "nats-server"),
		ready:  make(chan struct{}),
	}
}

// Serve starts the broker, blocks until ctx is cancelled and shuts it down.
func (s *Server) Serve(ctx context.Context) error {
	ns, err := server.NewServer(&server.Options{
		Host:       s.opts.Host,
		Port:       s.opts.Port,
		ServerName: s.opts.Name,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: maxPayload,
	})
	if err != nil {
		return fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(s.opts.ReadyTimeout) {
		ns.Shutdown()
		return fmt.Errorf("NATS server not ready within %s", s.opts.ReadyTimeout)
	}

	s.mu.Lock()
	s.ns = ns
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("NATS server started", "url", ns.ClientURL())

	<-ctx.Done()

	s.logger.Info("Stopping NATS server", "clients", ns.NumClients())
	s.mu.Lock()
	s.ns = nil
	s.mu.Unlock()
	ns.Shutdown()
	ns.WaitForShutdown()
	return ctx.Err()
}

// ClientURL returns the URL clients connect to. Before the server runs
// it is derived from the options, which is exact unless Port is -1.
func (s *Server) ClientURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ns != nil {
		return s.ns.ClientURL()
	}
	return fmt.Sprintf("nats://%s:%d", s.opts.Host, s.opts.Port)
}

// WaitReady blocks until the server first accepts connections or ctx is done.
func (s *Server) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
