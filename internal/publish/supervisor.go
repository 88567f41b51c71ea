// Package publish owns the encode/publish ffmpeg process.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/camstream/internal/ffmpeg"
	"github.com/smazurov/camstream/internal/process"
)

// DefaultGracefulTimeout is how long ffmpeg gets to flush and close the
// RTMP connection after SIGINT.
const DefaultGracefulTimeout = 5 * time.Second

// ErrSpawn marks a publish process that could not be launched.
var ErrSpawn = errors.New("publish process could not be started")

// SpawnError describes a failed launch.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Binary, e.Err)
}

// Unwrap exposes both ErrSpawn and the cause.
func (e *SpawnError) Unwrap() []error {
	return []error{ErrSpawn, e.Err}
}

// ProgressTarget is where ffmpeg sends -progress reports. An empty URL
// means nothing is listening right now.
type ProgressTarget interface {
	ProgressURL() string
}

// Supervisor launches and terminates publish processes.
type Supervisor struct {
	Binary          string
	GracefulTimeout time.Duration
	Logger          *slog.Logger
	// OutputLogger receives ffmpeg's own output; defaults to Logger.
	OutputLogger *slog.Logger

	// Progress, when set and listening at spawn time, is passed to ffmpeg -progress.
	Progress ProgressTarget
}

// NewSupervisor creates a supervisor running binary.
func NewSupervisor(binary string, logger *slog.Logger) *Supervisor {
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		Binary:          binary,
		GracefulTimeout: DefaultGracefulTimeout,
		Logger:          logger,
	}
}

// Handle is a running publish process.
type Handle struct {
	proc *process.Process

	once     sync.Once
	exitCode int
}

// Spawn starts ffmpeg with the rendered spec, reading raw frames from
// frames. It returns as soon as the OS has accepted the process; a
// rejected connection shows up later through Exited.
func (s *Supervisor) Spawn(_ context.Context, spec ffmpeg.Spec, frames io.Reader) (*Handle, error) {
	progress := s.progressURL()
	proc := process.New("publish", s.Binary, s.args(spec.Args(), progress), s.Logger)
	proc.SetStdin(frames)
	proc.SetLogParser(s.outputLogger().With("process", "publish"), spec.LineParser().Parse)

	s.Logger.Info("Starting publish process", "command", s.Binary+" "+strings.Join(s.args(spec.Redacted(), progress), " "))
	if err := proc.Start(); err != nil {
		return nil, &SpawnError{Binary: s.Binary, Err: err}
	}
	return &Handle{proc: proc}, nil
}

// args inserts the progress option after the global options.
func (s *Supervisor) args(specArgs []string, progressURL string) []string {
	if progressURL == "" {
		return specArgs
	}
	n := len(ffmpeg.GlobalArgs)
	out := make([]string, 0, len(specArgs)+2)
	out = append(out, specArgs[:n]...)
	out = append(out, "-progress", progressURL)
	return append(out, specArgs[n:]...)
}

func (s *Supervisor) outputLogger() *slog.Logger {
	if s.OutputLogger != nil {
		return s.OutputLogger
	}
	return s.Logger
}

func (s *Supervisor) progressURL() string {
	if s.Progress == nil {
		return ""
	}
	url := s.Progress.ProgressURL()
	if url == "" {
		s.Logger.Warn("Progress listener not ready, publishing without progress reports")
	}
	return url
}

// Terminate stops the process and waits for it to exit. Failures are
// logged, never returned. Safe to call more than once and with nil.
func (s *Supervisor) Terminate(h *Handle) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		timeout := s.GracefulTimeout
		if timeout <= 0 {
			timeout = DefaultGracefulTimeout
		}
		h.exitCode = h.proc.Stop(timeout)
		switch h.exitCode {
		case 0, 255:
			// 255 is ffmpeg's exit status after a clean SIGINT
			s.Logger.Info("Publish process stopped", "exit_code", h.exitCode)
		case process.ExitKilled:
			s.Logger.Warn("Publish process killed after timeout", "timeout", timeout)
		default:
			s.Logger.Warn("Publish process exited with error", "exit_code", h.exitCode, "error", h.proc.Err())
		}
	})
}

// Exited reports whether the process has ended on its own or been stopped.
func (h *Handle) Exited() bool { return h.proc.Exited() }

// Err returns the exit error once the process has ended.
func (h *Handle) Err() error { return h.proc.Err() }

// ExitCode returns the exit status once the process has ended.
func (h *Handle) ExitCode() int { return h.proc.ExitCode() }

// PID returns the OS process id.
func (h *Handle) PID() int { return h.proc.PID() }

// Done is closed when the process exits.
func (h *Handle) Done() <-chan struct{} { return h.proc.Done() }
