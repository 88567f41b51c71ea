package metrics

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
)

// ProgressCollector receives ffmpeg -progress reports on a Unix socket and
// turns them into publish metrics.
type ProgressCollector struct {
	logger     *slog.Logger
	socketPath string

	mu       sync.Mutex
	listener net.Listener
}

// NewProgressCollector creates a collector listening on socketPath.
func NewProgressCollector(socketPath string, logger *slog.Logger) *ProgressCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressCollector{
		logger:     logger.With("component", "progress_collector"),
		socketPath: socketPath,
	}
}

// URL is the value for ffmpeg's -progress option.
func (c *ProgressCollector) URL() string {
	return "unix://" + c.socketPath
}

// ProgressURL returns URL while the socket is bound and "" otherwise.
// ffmpeg exits when it cannot open its -progress target, so callers
// leave the option out when this is empty.
func (c *ProgressCollector) ProgressURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return ""
	}
	return c.URL()
}

// Listen binds the socket if it is not bound yet. Serve calls it; calling
// it before Serve lets processes started first report from the beginning.
func (c *ProgressCollector) Listen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener != nil {
		return nil
	}

	if err := os.Remove(c.socketPath); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("Failed to clean up old socket file", "error", err)
	}
	listener, err := net.Listen("unix", c.socketPath)
	if err != nil {
		return err
	}
	c.listener = listener
	c.logger.Info("Progress listener started", "socket", c.socketPath)
	return nil
}

// Serve accepts reports until ctx is cancelled, then unbinds the socket.
func (c *ProgressCollector) Serve(ctx context.Context) error {
	if err := c.Listen(); err != nil {
		return err
	}
	c.mu.Lock()
	listener := c.listener
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.listener = nil
		c.mu.Unlock()
		listener.Close()
		os.Remove(c.socketPath)
	}()
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			c.logger.Warn("Error accepting connection", "error", err)
			continue
		}
		go c.handleConnection(ctx, conn)
	}
}

func (c *ProgressCollector) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	data := make(map[string]string)

	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		data[strings.TrimSpace(key)] = strings.TrimSpace(value)

		// each report block ends with progress=continue or progress=end
		if key == "progress" {
			applyProgress(data)
			data = make(map[string]string)
		}
	}
}

func applyProgress(data map[string]string) {
	if fps, err := strconv.ParseFloat(data["fps"], 64); err == nil {
		SetPublishFPS(fps)
	}
	if dropped, err := strconv.ParseFloat(data["drop_frames"], 64); err == nil {
		SetPublishDroppedFrames(dropped)
	}
	if dup, err := strconv.ParseFloat(data["dup_frames"], 64); err == nil {
		SetPublishDuplicateFrames(dup)
	}
	if speed, err := strconv.ParseFloat(strings.TrimSuffix(data["speed"], "x"), 64); err == nil {
		SetPublishSpeed(speed)
	}
	if kbits, err := strconv.ParseFloat(strings.TrimSuffix(data["bitrate"], "kbits/s"), 64); err == nil {
		SetPublishBitrate(kbits)
	}
}
