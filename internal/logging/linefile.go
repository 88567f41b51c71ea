package logging

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LineTimeFormat is the timestamp layout of the durable event log.
const LineTimeFormat = "2006-01-02 15:04:05"

// NoLogsMessage is returned by Tail when the log file does not exist.
const NoLogsMessage = "No logs available"

// LineFileHandler appends one "[YYYY-MM-DD HH:MM:SS] message" line per record
// to a file. Write failures are swallowed: logging never fails the caller.
type LineFileHandler struct {
	path   string
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
	mu     *sync.Mutex
}

// NewLineFileHandler creates a handler appending to path.
func NewLineFileHandler(path string, level slog.Leveler) *LineFileHandler {
	return &LineFileHandler{
		path:  path,
		level: level,
		mu:    &sync.Mutex{},
	}
}

// Enabled implements slog.Handler.
func (h *LineFileHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *LineFileHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any)
	for _, a := range h.attrs {
		if a.Key != "module" {
			flattenAttr(attrs, h.groups, a)
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		flattenAttr(attrs, h.groups, a)
		return true
	})

	line := FormatLine(r.Time, r.Message) + formatAttrs(attrs) + "\n"

	h.mu.Lock()
	defer h.mu.Unlock()
	_ = appendLine(h.path, line)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *LineFileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &LineFileHandler{path: h.path, level: h.level, attrs: newAttrs, groups: h.groups, mu: h.mu}
}

// WithGroup implements slog.Handler.
func (h *LineFileHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name
	return &LineFileHandler{path: h.path, level: h.level, attrs: h.attrs, groups: newGroups, mu: h.mu}
}

// FormatLine renders a message in the durable log line format, without newline.
func FormatLine(t time.Time, msg string) string {
	return "[" + t.Format(LineTimeFormat) + "] " + msg
}

func appendLine(path, line string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Tail returns the last n lines of the log file joined by newlines.
func Tail(path string, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NoLogsMessage, nil
		}
		return "", err
	}
	defer f.Close()

	ring := make([]string, n)
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		ring[count%n] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	if count == 0 {
		return "", nil
	}

	size := min(count, n)
	lines := make([]string, 0, size)
	start := count - size
	for i := start; i < count; i++ {
		lines = append(lines, ring[i%n])
	}
	return strings.Join(lines, "\n") + "\n", nil
}
