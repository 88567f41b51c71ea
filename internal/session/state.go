package session

import (
	"errors"
	"time"

	"github.com/smazurov/camstream/internal/streamconfig"
)

// State is the session lifecycle state.
type State string

// Session states.
const (
	Idle      State = "idle"
	Starting  State = "starting"
	Streaming State = "streaming"
	Stopping  State = "stopping"
	Failed    State = "failed" // cleanup could not complete; resources may still be held
)

var (
	// ErrAlreadyActive rejects a start while a session exists.
	ErrAlreadyActive = errors.New("session already active")
	// ErrNotActive rejects a stop while idle.
	ErrNotActive = errors.New("session not active")
	// ErrTransition rejects a stop while a start or stop is in flight.
	ErrTransition = errors.New("session transition in progress")
	// ErrShuttingDown rejects a start once Shutdown has been called.
	ErrShuttingDown = errors.New("session controller shutting down")
	// ErrCleanup marks a teardown that left resources behind.
	ErrCleanup = errors.New("session cleanup failed")
)

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	State     State
	StartTime time.Time // zero unless streaming
	Config    streamconfig.StreamConfig
	Device    string
	PID       int
}

// Streaming reports whether frames are being published.
func (s Snapshot) Streaming() bool { return s.State == Streaming }

// Uptime returns the time since the session started streaming.
func (s Snapshot) Uptime(now time.Time) time.Duration {
	if !s.Streaming() || s.StartTime.IsZero() {
		return 0
	}
	return now.Sub(s.StartTime)
}
