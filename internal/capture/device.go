// Package capture acquires the camera and runs the raw frame producer.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/smazurov/camstream/internal/streamconfig"
)

// WarmUp is how long frames need after Start before the publish stage can rely on them.
const WarmUp = 2 * time.Second

// ErrAcquisition marks a capture device that could not be acquired or started.
var ErrAcquisition = errors.New("capture device unavailable")

// ErrBusy is reported when the device is already held.
var ErrBusy = errors.New("device busy")

// AcquisitionError describes why a device could not be acquired or started.
type AcquisitionError struct {
	Device string
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s: %v", e.Device, e.Err)
}

// Unwrap exposes both ErrAcquisition and the cause to errors.Is.
func (e *AcquisitionError) Unwrap() []error {
	return []error{ErrAcquisition, e.Err}
}

// Device is a video source producing a raw frame stream.
type Device interface {
	// Acquire reserves the device for the given geometry.
	Acquire(ctx context.Context, res streamconfig.Resolution, framerate int) (*Handle, error)
	// Start begins producing frames on the handle's stream.
	Start(ctx context.Context, h *Handle) error
	// Stop ends frame production. Safe to call more than once.
	Stop(h *Handle) error
	// Release gives the device back. Safe to call more than once.
	Release(h *Handle) error
	// Exited reports whether a started source has stopped producing frames.
	Exited(h *Handle) bool
}

// Handle is an acquired device.
type Handle struct {
	Device     string
	Resolution streamconfig.Resolution
	Framerate  int

	frames io.Reader
	state  any
}

// NewHandle creates a handle whose frame stream is frames. Device
// implementations use state to keep their own bookkeeping.
func NewHandle(device string, res streamconfig.Resolution, framerate int, frames io.Reader, state any) *Handle {
	return &Handle{
		Device:     device,
		Resolution: res,
		Framerate:  framerate,
		frames:     frames,
		state:      state,
	}
}

// Frames returns the raw rgb24 frame stream.
func (h *Handle) Frames() io.Reader { return h.frames }

// State returns the implementation bookkeeping passed to NewHandle.
func (h *Handle) State() any { return h.state }
