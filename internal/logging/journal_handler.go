package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
)

const syslogIdentifier = "camstream"

// JournalHandler sends records to the systemd journal. Every attribute
// becomes a journal field, so `journalctl -t camstream MODULE=session`
// or `STATE=failed` filter directly. Group names join with '_'.
type JournalHandler struct {
	level slog.Leveler
	// fields holds WithAttrs values, already qualified by their groups
	fields map[string]any
	groups []string
	send   func(message string, priority journal.Priority, vars map[string]string) error
}

// NewJournalHandler creates a handler writing to the local journal.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level, send: journal.Send}
}

// Enabled implements slog.Handler.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	flat := make(map[string]any, len(h.fields)+r.NumAttrs())
	for k, v := range h.fields {
		flat[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		flattenAttr(flat, h.groups, a)
		return true
	})

	vars := make(map[string]string, len(flat)+1)
	for key, value := range flat {
		name := journalField(key)
		if name == "" || reservedField(name) {
			continue
		}
		vars[name] = fmt.Sprint(value)
	}
	vars["SYSLOG_IDENTIFIER"] = syslogIdentifier

	return h.send(r.Message, journalPriority(r.Level), vars)
}

// WithAttrs implements slog.Handler.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.fields = make(map[string]any, len(h.fields)+len(attrs))
	for k, v := range h.fields {
		clone.fields[k] = v
	}
	for _, a := range attrs {
		flattenAttr(clone.fields, h.groups, a)
	}
	return &clone
}

// WithGroup implements slog.Handler.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalField maps an attribute key to a valid journal field name:
// upper case letters, digits and '_', not starting with '_'.
func journalField(key string) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(key) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		} else {
			b.WriteByte('_')
		}
	}
	return strings.TrimLeft(b.String(), "_")
}

// reservedField reports names the handler sets itself.
func reservedField(name string) bool {
	switch name {
	case "MESSAGE", "PRIORITY", "SYSLOG_IDENTIFIER":
		return true
	}
	return false
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
