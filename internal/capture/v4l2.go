package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/camstream/internal/ffmpeg"
	"github.com/smazurov/camstream/internal/process"
	"github.com/smazurov/camstream/internal/streamconfig"
)

// DefaultSysClassDir is where the kernel lists V4L2 nodes.
const DefaultSysClassDir = "/sys/class/video4linux"

const stopTimeout = 3 * time.Second

// V4L2Options configures a V4L2Device.
type V4L2Options struct {
	// Device is a /dev path, a /dev/v4l/by-id or by-path name, or "testsrc".
	Device string
	// Binary is the ffmpeg executable used to read the device.
	Binary string
	// SysClassDir is checked for the node; empty skips the check.
	SysClassDir string
	Logger      *slog.Logger
	// OutputLogger receives ffmpeg's own output; defaults to Logger.
	OutputLogger *slog.Logger
}

// V4L2Device captures from a V4L2 node through an ffmpeg subprocess writing
// raw frames into a pipe. Only one handle can be held at a time.
type V4L2Device struct {
	opts   V4L2Options
	logger *slog.Logger

	mu   sync.Mutex
	held *Handle
}

type v4l2State struct {
	lock   *os.File
	reader *os.File
	writer *os.File
	proc   *process.Process

	mu       sync.Mutex
	stopped  bool
	released bool
}

// NewV4L2Device creates a device from opts.
func NewV4L2Device(opts V4L2Options) *V4L2Device {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.OutputLogger == nil {
		opts.OutputLogger = logger
	}
	return &V4L2Device{
		opts:   opts,
		logger: logger.With("device", opts.Device),
	}
}

// Acquire resolves and locks the device and prepares the frame pipe.
func (d *V4L2Device) Acquire(_ context.Context, res streamconfig.Resolution, framerate int) (*Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.held != nil {
		return nil, &AcquisitionError{Device: d.opts.Device, Err: ErrBusy}
	}

	path := d.opts.Device
	var lock *os.File
	if path != ffmpeg.TestSource {
		resolved, err := ResolveDevicePath(path)
		if err != nil {
			return nil, &AcquisitionError{Device: path, Err: err}
		}
		if err := checkV4L2Node(d.opts.SysClassDir, resolved); err != nil {
			return nil, &AcquisitionError{Device: path, Err: err}
		}
		lock, err = lockDevice(resolved)
		if err != nil {
			return nil, &AcquisitionError{Device: path, Err: err}
		}
		path = resolved
	}

	r, w, err := os.Pipe()
	if err != nil {
		if lock != nil {
			lock.Close()
		}
		return nil, &AcquisitionError{Device: path, Err: err}
	}

	st := &v4l2State{lock: lock, reader: r, writer: w}
	h := NewHandle(path, res, framerate, r, st)
	d.held = h

	d.logger.Info("Capture device acquired", "path", path, "resolution", res.String(), "framerate", framerate)
	return h, nil
}

// Start launches the capture subprocess writing into the handle's pipe.
func (d *V4L2Device) Start(_ context.Context, h *Handle) error {
	st, err := d.state(h)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.proc != nil {
		return nil
	}
	if st.stopped || st.released {
		return &AcquisitionError{Device: h.Device, Err: errors.New("handle already stopped")}
	}

	args := ffmpeg.CaptureArgs(h.Device, h.Resolution.Width(), h.Resolution.Height(), h.Framerate)
	proc := process.New("capture", d.opts.Binary, args, d.logger)
	proc.SetStdout(st.writer)
	proc.SetLogParser(d.opts.OutputLogger.With("process", "capture"), ffmpeg.NewLineParser().Parse)

	if err := proc.Start(); err != nil {
		return &AcquisitionError{Device: h.Device, Err: err}
	}
	// the child owns the write end now; EOF reaches the reader when it exits
	st.writer.Close()
	st.writer = nil
	st.proc = proc

	d.logger.Info("Capture started", "pid", proc.PID())
	return nil
}

// Stop ends the capture subprocess.
func (d *V4L2Device) Stop(h *Handle) error {
	st, err := d.state(h)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.stopped {
		return nil
	}
	st.stopped = true

	if st.writer != nil {
		st.writer.Close()
		st.writer = nil
	}
	if st.proc != nil {
		code := st.proc.Stop(stopTimeout)
		d.logger.Info("Capture stopped", "exit_code", code)
	}
	return nil
}

// Release closes the frame pipe and unlocks the device.
func (d *V4L2Device) Release(h *Handle) error {
	st, err := d.state(h)
	if err != nil {
		return err
	}

	st.mu.Lock()
	if st.released {
		st.mu.Unlock()
		return nil
	}
	st.released = true

	var errs []error
	if st.writer != nil {
		errs = append(errs, st.writer.Close())
		st.writer = nil
	}
	if st.proc != nil && !st.proc.Exited() {
		// Release without Stop must not leak the subprocess
		st.proc.Stop(stopTimeout)
	}
	errs = append(errs, st.reader.Close())
	if st.lock != nil {
		errs = append(errs, syscall.Flock(int(st.lock.Fd()), syscall.LOCK_UN), st.lock.Close())
	}
	st.mu.Unlock()

	d.mu.Lock()
	if d.held == h {
		d.held = nil
	}
	d.mu.Unlock()

	d.logger.Info("Capture device released", "path", h.Device)
	return errors.Join(errs...)
}

// Exited reports whether the capture subprocess of h has stopped running.
func (d *V4L2Device) Exited(h *Handle) bool {
	st, err := d.state(h)
	if err != nil {
		return true
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.proc != nil && st.proc.Exited()
}

func (d *V4L2Device) state(h *Handle) (*v4l2State, error) {
	if h == nil {
		return nil, errors.New("nil capture handle")
	}
	st, ok := h.State().(*v4l2State)
	if !ok {
		return nil, fmt.Errorf("handle for %s was not acquired from this device", h.Device)
	}
	return st, nil
}

// ResolveDevicePath converts a device reference into a /dev path. Absolute
// paths are used as-is; other names are looked up under /dev/v4l/by-id,
// /dev/v4l/by-path and /dev.
func ResolveDevicePath(device string) (string, error) {
	if device == "" {
		return "", errors.New("no capture device configured")
	}

	candidates := []string{device}
	if !filepath.IsAbs(device) {
		candidates = []string{
			"/dev/v4l/by-id/" + device,
			"/dev/v4l/by-path/" + device,
			"/dev/" + device,
		}
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("device %s not found", device)
}

// checkV4L2Node verifies that path is listed under sysClassDir.
func checkV4L2Node(sysClassDir, path string) error {
	if sysClassDir == "" {
		return nil
	}
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return err
	}
	name := filepath.Base(target)
	if !strings.HasPrefix(name, "video") {
		return fmt.Errorf("%s is not a video node", target)
	}
	if _, err := os.Stat(filepath.Join(sysClassDir, name)); err != nil {
		return fmt.Errorf("%s is not a V4L2 device: %w", target, err)
	}
	return nil
}

// lockDevice opens path and takes an exclusive advisory lock on it.
func lockDevice(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, ErrBusy
		}
		return nil, err
	}
	return f, nil
}
