// Package api serves the camstream control surface over HTTP.
package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/camstream/internal/api/models"
	"github.com/smazurov/camstream/internal/events"
	"github.com/smazurov/camstream/internal/led"
	"github.com/smazurov/camstream/internal/session"
	"github.com/smazurov/camstream/internal/streamconfig"
	"github.com/smazurov/camstream/internal/sysstats"
	"github.com/smazurov/camstream/internal/systemd"
	"github.com/smazurov/camstream/internal/updater"
	"github.com/smazurov/camstream/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Session is the in-process streaming session.
type Session interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshot() session.Snapshot
}

// ConfigStore reads and updates the stream configuration.
type ConfigStore interface {
	Current() streamconfig.StreamConfig
	Save(p streamconfig.Partial) (streamconfig.StreamConfig, error)
}

// StatsSource samples host telemetry.
type StatsSource interface {
	Stats(ctx context.Context) sysstats.Stats
}

// Updater checks for and applies releases.
type Updater interface {
	Enabled() bool
	DisabledReason() string
	Check(ctx context.Context) (updater.Release, error)
	Apply(ctx context.Context) (updater.Release, error)
	Rollback(ctx context.Context) error
	Status() updater.Status
}

// Options wires the server to the rest of the daemon. Nil collaborators
// disable the routes that need them.
type Options struct {
	Addr         string
	AuthUsername string
	AuthPassword string

	Session     Session
	Config      ConfigStore
	StatusPath  string
	LogFile     string
	Stats       StatsSource
	Services    systemd.Manager
	ServiceName string
	LEDs        led.Controller
	Updater     Updater
	// Restart is called after an update or rollback has replaced the binary.
	Restart func()

	EventBus          *events.Bus
	PrometheusHandler http.Handler // optional, served at /metrics without auth
	Logger            *slog.Logger
}

// Server is the huma API server.
type Server struct {
	api     huma.API
	mux     *http.ServeMux
	options Options
	logger  *slog.Logger
}

// NewServer creates the API server and registers every route.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	config := huma.DefaultConfig("camstream API", version.Version)
	config.Info.Description = "Camera to RTMP streaming session control"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)
	s := &Server{
		api:     api,
		mux:     mux,
		options: opts,
		logger:  logger,
	}

	api.UseMiddleware(s.loggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(s.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// API returns the huma API, e.g. for OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.options.Addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("API server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// SSE streams hold connections open
		srv.Close()
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		credentials, ok := credentialsFrom(ctx)
		if !ok {
			s.unauthorized(ctx, "Authentication required")
			return
		}
		user, pass, found := strings.Cut(credentials, ":")
		if !found || user != username || pass != password {
			s.unauthorized(ctx, "Invalid credentials")
			return
		}
		next(ctx)
	}
}

// credentialsFrom reads "user:pass" from a Basic Authorization header, or
// from the base64 auth query parameter EventSource clients must use.
func credentialsFrom(ctx huma.Context) (string, bool) {
	encoded := ""
	if header := ctx.Header("Authorization"); header != "" {
		const prefix = "Basic "
		if !strings.HasPrefix(header, prefix) {
			return "", false
		}
		encoded = header[len(prefix):]
	} else {
		encoded = ctx.Query("auth")
	}
	if encoded == "" {
		return "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

func (s *Server) unauthorized(ctx huma.Context, msg string) {
	ctx.SetHeader("WWW-Authenticate", `Basic realm="camstream"`)
	huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg)
}

// loggingMiddleware logs each request at a level matching its status.
func (s *Server) loggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	next(ctx)

	attrs := []slog.Attr{
		slog.String("method", ctx.Method()),
		slog.String("path", ctx.URL().Path),
		slog.String("remote_addr", ctx.RemoteAddr()),
		slog.Int("status", ctx.Status()),
		slog.Duration("duration", time.Since(start)),
	}

	level := slog.LevelDebug
	switch status := ctx.Status(); {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	case ctx.Method() != http.MethodGet:
		level = slog.LevelInfo
	}
	s.logger.LogAttrs(ctx.Context(), level, "HTTP request completed", attrs...)
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				BuildID:   info.BuildID,
				GoVersion: info.GoVersion,
				Compiler:  info.Compiler,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerStatusRoutes()
	s.registerConfigRoutes()
	s.registerLogRoutes()
	s.registerStreamRoutes()
	s.registerControlRoutes()
	s.registerSSERoutes()
	s.registerLEDRoutes()
	s.registerUpdateRoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
