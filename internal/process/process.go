package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ExitKilled is reported when the process had to be killed.
const ExitKilled = 137

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("process already started")

// LogParser classifies an output line and returns the message to log.
type LogParser func(line string) (slog.Level, string)

// Process manages the lifecycle of one subprocess.
type Process struct {
	id     string
	name   string
	args   []string
	logger *slog.Logger

	outputLogger *slog.Logger
	logParser    LogParser
	stdin        io.Reader
	stdout       io.Writer
	killTimeout  time.Duration

	mu       sync.Mutex
	cmd      *exec.Cmd
	started  bool // Start was called
	done     chan struct{}
	err      error
	exitCode int

	stopOnce sync.Once
	stopCode int
}

// New creates a process that will run name with args.
func New(id, name string, args []string, logger *slog.Logger) *Process {
	return &Process{
		id:          id,
		name:        name,
		args:        append([]string(nil), args...),
		logger:      logger.With("process", id),
		killTimeout: 5 * time.Second,
		done:        make(chan struct{}),
	}
}

// SetStdin wires the process standard input. Must be called before Start.
func (p *Process) SetStdin(r io.Reader) { p.stdin = r }

// SetStdout wires the process standard output. Must be called before Start.
// Pass an *os.File to hand the descriptor to the child directly.
func (p *Process) SetStdout(w io.Writer) { p.stdout = w }

// SetLogParser sets the logger and parser used for process output.
func (p *Process) SetLogParser(logger *slog.Logger, parser LogParser) {
	p.outputLogger = logger
	p.logParser = parser
}

// Start launches the process and returns once the OS has accepted it.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	cmd := exec.Command(p.name, p.args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = p.stdin

	outR, outW, err := os.Pipe()
	if err != nil {
		return p.failLocked(fmt.Errorf("create output pipe: %w", err))
	}
	cmd.Stderr = outW
	if p.stdout != nil {
		cmd.Stdout = p.stdout
	} else {
		cmd.Stdout = outW
	}

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		return p.failLocked(err)
	}
	// the child holds its own copy
	outW.Close()

	p.cmd = cmd
	p.logger.Info("Process started", "pid", cmd.Process.Pid)

	go p.streamOutput(outR)
	go p.wait()

	return nil
}

// failLocked records a start failure so Done and Exited report it.
func (p *Process) failLocked(err error) error {
	p.err = err
	p.exitCode = 1
	close(p.done)
	return err
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	code := exitCodeFromError(err)

	p.mu.Lock()
	p.err = err
	p.exitCode = code
	p.mu.Unlock()

	if err != nil {
		p.logger.Info("Process exited", "exit_code", code, "error", err)
	} else {
		p.logger.Info("Process exited", "exit_code", code)
	}
	close(p.done)
}

// Done is closed when the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited reports whether the process has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err returns the wait error once the process has exited, nil before.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// ExitCode returns the exit code once the process has exited, 0 before.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// PID returns the process id, or 0 if not started.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Stop asks the process to exit and waits. After graceful it is killed.
// Only the first call acts; later calls return the same exit code.
func (p *Process) Stop(graceful time.Duration) int {
	p.stopOnce.Do(func() {
		p.stopCode = p.stop(graceful)
	})
	return p.stopCode
}

func (p *Process) stop(graceful time.Duration) int {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return 0
	}

	if p.Exited() {
		return p.ExitCode()
	}

	p.signal(syscall.SIGINT)

	select {
	case <-p.done:
		return p.ExitCode()
	case <-time.After(graceful):
	}

	p.logger.Warn("Graceful stop timed out, killing", "timeout", graceful)
	p.signal(syscall.SIGKILL)

	select {
	case <-p.done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal")
	}
	return ExitKilled
}

// signal delivers sig to the whole process group.
func (p *Process) signal(sig syscall.Signal) {
	pid := p.PID()
	if pid == 0 {
		return
	}
	p.logger.Debug("Signalling process group", "pid", pid, "signal", sig.String())
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Warn("Failed to signal process", "signal", sig.String(), "error", err)
	}
}

func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 1
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return exitErr.ExitCode()
}

func (p *Process) streamOutput(r io.ReadCloser) {
	defer r.Close()

	logger := p.outputLogger
	if logger == nil {
		logger = p.logger
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanOutputLines)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		level, msg := slog.LevelInfo, line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}
		logger.Log(context.Background(), level, msg)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Warn("Error reading process output", "error", err)
	}
}

// scanOutputLines splits on '\n' and on the bare '\r' that progress
// meters use to redraw a line in place.
func scanOutputLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
