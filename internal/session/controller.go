// Package session drives the single streaming session: capture device,
// publish process and status file move through one state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/camstream/internal/capture"
	"github.com/smazurov/camstream/internal/events"
	"github.com/smazurov/camstream/internal/ffmpeg"
	"github.com/smazurov/camstream/internal/metrics"
	"github.com/smazurov/camstream/internal/publish"
	"github.com/smazurov/camstream/internal/status"
	"github.com/smazurov/camstream/internal/streamconfig"
)

// DefaultTickInterval is how often status is re-persisted while streaming.
const DefaultTickInterval = 10 * time.Second

// ConfigSource provides the configuration snapshot used at start.
type ConfigSource interface {
	Current() streamconfig.StreamConfig
}

// Publisher launches and terminates the publish process.
type Publisher interface {
	Spawn(ctx context.Context, spec ffmpeg.Spec, frames io.Reader) (*publish.Handle, error)
	Terminate(h *publish.Handle)
}

// StatusSink persists status snapshots.
type StatusSink interface {
	Publish(snap status.Snapshot) error
}

// Options configures a Controller.
type Options struct {
	Device    capture.Device
	Publisher Publisher
	Config    ConfigSource
	Status    StatusSink
	Bus       *events.Bus
	Logger    *slog.Logger

	// WarmUp defaults to capture.WarmUp.
	WarmUp time.Duration
	// TickInterval defaults to DefaultTickInterval.
	TickInterval time.Duration
	// Autostart starts streaming when Serve begins.
	Autostart bool
	Now       func() time.Time
}

type session struct {
	cfg     streamconfig.StreamConfig
	capture *capture.Handle
	publish *publish.Handle
	started time.Time
	cancel  context.CancelFunc

	captureStopped bool
}

// Controller owns the streaming session. State changes happen under mu;
// the slow work of a transition runs outside it while the Starting or
// Stopping state keeps every other transition out.
type Controller struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	cur    *session
	idle   chan struct{} // closed when no transition is in flight
	closed bool          // set by Shutdown, never cleared
}

// New creates an idle controller.
func New(opts Options) *Controller {
	if opts.WarmUp == 0 {
		opts.WarmUp = capture.WarmUp
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	idle := make(chan struct{})
	close(idle)
	return &Controller{
		opts:   opts,
		logger: logger,
		state:  Idle,
		idle:   idle,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{State: c.state}
	if c.cur == nil {
		snap.Config = c.opts.Config.Current()
		return snap
	}
	snap.Config = c.cur.cfg
	if c.state == Streaming {
		snap.StartTime = c.cur.started
	}
	if c.cur.capture != nil {
		snap.Device = c.cur.capture.Device
	}
	if c.cur.publish != nil {
		snap.PID = c.cur.publish.PID()
	}
	return snap
}

// Start runs the start sequence: acquire the device, build the pipeline,
// spawn the publish process, start capture and wait out the warm-up. Any
// failure tears down what was acquired and leaves the controller Idle (or
// Failed when teardown itself fails).
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrShuttingDown
	}
	if c.state == Failed {
		c.mu.Unlock()
		if err := c.retryCleanup(); err != nil {
			return err
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrShuttingDown
		}
	}
	if c.state != Idle {
		c.mu.Unlock()
		return ErrAlreadyActive
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &session{cfg: c.opts.Config.Current(), cancel: cancel}
	c.cur = s
	c.idle = make(chan struct{})
	c.setStateLocked(Starting, "start requested")
	c.mu.Unlock()

	defer cancel()
	c.logger.Info("Starting stream", "endpoint", s.cfg.Redacted(), "resolution", s.cfg.Resolution.String(), "framerate", s.cfg.Framerate, "bitrate", s.cfg.Bitrate)

	if err := c.runStart(ctx, s); err != nil {
		c.logger.Error("Failed to start stream", "error", err)
		metrics.IncStart("error")
		if cerr := c.teardown(s, "start failed"); cerr != nil {
			return fmt.Errorf("%w; %w", err, cerr)
		}
		return err
	}

	c.mu.Lock()
	s.started = c.opts.Now()
	c.setStateLocked(Streaming, "started")
	close(c.idle)
	c.mu.Unlock()

	metrics.IncStart("ok")
	c.logger.Info("Streaming started", "pid", s.publish.PID())
	return nil
}

func (c *Controller) runStart(ctx context.Context, s *session) error {
	h, err := c.opts.Device.Acquire(ctx, s.cfg.Resolution, s.cfg.Framerate)
	if err != nil {
		return err
	}
	c.withSession(func() { s.capture = h })

	spec := ffmpeg.Build(s.cfg)
	ph, err := c.opts.Publisher.Spawn(ctx, spec, h.Frames())
	if err != nil {
		return err
	}
	c.withSession(func() { s.publish = ph })

	if err := c.opts.Device.Start(ctx, h); err != nil {
		return err
	}

	if c.opts.WarmUp > 0 {
		timer := time.NewTimer(c.opts.WarmUp)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return fmt.Errorf("start interrupted: %w", ctx.Err())
		}
	}

	if ph.Exited() {
		return fmt.Errorf("publish process exited during warm-up with code %d", ph.ExitCode())
	}
	if c.opts.Device.Exited(h) {
		return fmt.Errorf("%w: capture exited during warm-up", capture.ErrAcquisition)
	}
	return nil
}

// Stop tears down a streaming session.
func (c *Controller) Stop(_ context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Idle:
		c.mu.Unlock()
		return ErrNotActive
	case Starting, Stopping:
		c.mu.Unlock()
		return ErrTransition
	case Failed:
		c.mu.Unlock()
		return c.retryCleanup()
	}
	s := c.cur
	c.idle = make(chan struct{})
	c.setStateLocked(Stopping, "stop requested")
	c.mu.Unlock()

	c.logger.Info("Stopping stream")
	if err := c.teardown(s, "stopped"); err != nil {
		return err
	}
	metrics.IncStop("requested")
	c.logger.Info("Streaming stopped")
	return nil
}

// Tick re-persists status while streaming and turns a dead capture or
// publish process into an orderly stop.
func (c *Controller) Tick() {
	c.mu.Lock()
	if c.state != Streaming {
		c.mu.Unlock()
		return
	}
	s := c.cur

	source := ""
	var fault events.StreamFaultEvent
	switch {
	case s.publish.Exited():
		source = "publish"
		fault = events.StreamFaultEvent{ExitCode: s.publish.ExitCode(), Error: errString(s.publish.Err())}
	case c.opts.Device.Exited(s.capture):
		source = "capture"
	}

	if source == "" {
		c.persistLocked()
		c.mu.Unlock()
		return
	}

	fault.Source = source
	fault.Timestamp = c.opts.Now().Format(time.RFC3339)
	c.idle = make(chan struct{})
	c.setStateLocked(Stopping, source+" process exited")
	c.mu.Unlock()

	c.logger.Error("Stream fault detected", "source", source, "exit_code", fault.ExitCode, "error", fault.Error)
	metrics.IncFault(source)
	c.opts.Bus.Publish(fault)

	if err := c.teardown(s, "fault"); err == nil {
		metrics.IncStop("fault")
	}
}

// Shutdown drives any session to Idle and closes the controller: every
// later Start returns ErrShuttingDown. It interrupts an in-flight start
// and waits for an in-flight stop. Safe to call repeatedly and from any
// goroutine.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	for {
		c.mu.Lock()
		switch c.state {
		case Idle:
			c.mu.Unlock()
			return
		case Starting, Stopping:
			if c.cur != nil && c.cur.cancel != nil {
				c.cur.cancel()
			}
			idle := c.idle
			c.mu.Unlock()
			<-idle
			continue
		case Failed:
			c.mu.Unlock()
			if err := c.retryCleanup(); err != nil {
				c.logger.Error("Cleanup failed during shutdown", "error", err)
				return
			}
			continue
		}

		s := c.cur
		c.idle = make(chan struct{})
		c.setStateLocked(Stopping, "shutdown")
		c.mu.Unlock()

		c.logger.Info("Stopping stream for shutdown")
		if err := c.teardown(s, "shutdown"); err != nil {
			c.logger.Error("Cleanup failed during shutdown", "error", err)
			return
		}
		metrics.IncStop("shutdown")
	}
}

// Serve runs the control loop: optional autostart, then a status tick
// until ctx is cancelled, which stops the session.
func (c *Controller) Serve(ctx context.Context) error {
	c.mu.Lock()
	c.persistLocked()
	c.mu.Unlock()

	if c.opts.Autostart {
		if err := c.Start(ctx); err != nil && !errors.Is(err, ErrAlreadyActive) && !errors.Is(err, ErrShuttingDown) {
			c.logger.Warn("Autostart failed", "error", err)
		}
	}

	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.Tick()
		}
	}
}

// teardown releases s in reverse acquisition order and settles the state
// to Idle, or Failed when something could not be released.
func (c *Controller) teardown(s *session, reason string) error {
	err := c.cleanup(s)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(c.idle)

	if err != nil {
		c.logger.Error("Session cleanup failed", "error", err)
		c.setStateLocked(Failed, reason+": cleanup failed")
		return fmt.Errorf("%w: %w", ErrCleanup, err)
	}
	c.cur = nil
	c.setStateLocked(Idle, reason)
	return nil
}

// cleanup stops capture, terminates the publish process and releases the
// device. Completed steps are cleared so a retry only redoes what failed.
func (c *Controller) cleanup(s *session) error {
	if s == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	var h *capture.Handle
	var ph *publish.Handle
	var stopped bool
	c.withSession(func() { h, ph, stopped = s.capture, s.publish, s.captureStopped })

	var errs []error
	if h != nil && !stopped {
		if err := c.opts.Device.Stop(h); err != nil {
			errs = append(errs, fmt.Errorf("stop capture: %w", err))
		} else {
			c.withSession(func() { s.captureStopped = true })
		}
	}
	if ph != nil {
		c.opts.Publisher.Terminate(ph)
		c.withSession(func() { s.publish = nil })
	}
	if h != nil {
		if err := c.opts.Device.Release(h); err != nil {
			errs = append(errs, fmt.Errorf("release capture: %w", err))
		} else {
			c.withSession(func() { s.capture = nil })
		}
	}
	metrics.ResetPublishProgress()
	return errors.Join(errs...)
}

func (c *Controller) retryCleanup() error {
	c.mu.Lock()
	if c.state != Failed {
		c.mu.Unlock()
		return nil
	}
	s := c.cur
	c.idle = make(chan struct{})
	c.setStateLocked(Stopping, "retrying cleanup")
	c.mu.Unlock()

	return c.teardown(s, "cleanup retried")
}

func (c *Controller) withSession(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

// setStateLocked records a transition, persists status and announces it.
func (c *Controller) setStateLocked(next State, reason string) {
	prev := c.state
	c.state = next

	snap := c.snapshotLocked()
	c.logger.Debug("Session state changed", "from", prev, "to", next, "reason", reason)

	metrics.SetSessionState(string(next))
	metrics.SetSessionStart(snap.StartTime)
	c.persistLocked()

	ev := events.StateChangedEvent{
		State:     string(next),
		Previous:  string(prev),
		Streaming: snap.Streaming(),
		Reason:    reason,
		Timestamp: c.opts.Now().Format(time.RFC3339),
	}
	if !snap.StartTime.IsZero() {
		ev.StartTime = snap.StartTime.Format(time.RFC3339)
	}
	c.opts.Bus.Publish(ev)
}

// persistLocked writes the status file. Failures are logged only.
func (c *Controller) persistLocked() {
	if c.opts.Status == nil {
		return
	}
	snap := c.snapshotLocked()
	err := c.opts.Status.Publish(status.Snapshot{
		Streaming: snap.Streaming(),
		StartTime: snap.StartTime,
		Config:    snap.Config,
	})
	if err != nil {
		metrics.IncStatusWriteError()
		c.logger.Warn("Failed to write status", "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
