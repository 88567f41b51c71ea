package logging

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/coreos/go-systemd/v22/journal"
)

type journalRecord struct {
	message  string
	priority journal.Priority
	vars     map[string]string
}

func captureJournal(level slog.Level) (*JournalHandler, *[]journalRecord) {
	var records []journalRecord
	h := NewJournalHandler(level)
	h.send = func(message string, priority journal.Priority, vars map[string]string) error {
		records = append(records, journalRecord{message, priority, vars})
		return nil
	}
	return h, &records
}

func TestJournalHandlerFields(t *testing.T) {
	h, records := captureJournal(slog.LevelDebug)
	logger := slog.New(h).With("module", "api")

	logger.WithGroup("req").Warn("Request failed",
		"path", "/api/stream/start",
		"error", errors.New("device busy"),
		"message", "shadowed",
		"_private", "x",
		"stream-key", "ab***cd",
	)

	if len(*records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(*records))
	}
	r := (*records)[0]
	if r.message != "Request failed" {
		t.Errorf("message = %q", r.message)
	}
	if r.priority != journal.PriWarning {
		t.Errorf("priority = %v, want %v", r.priority, journal.PriWarning)
	}

	want := map[string]string{
		"MODULE":            "api",
		"REQ_PATH":          "/api/stream/start",
		"REQ_ERROR":         "device busy",
		"REQ_MESSAGE":       "shadowed",
		"REQ__PRIVATE":      "x",
		"REQ_STREAM_KEY":    "ab***cd",
		"SYSLOG_IDENTIFIER": "camstream",
	}
	for k, v := range want {
		if r.vars[k] != v {
			t.Errorf("%s = %q, want %q", k, r.vars[k], v)
		}
	}
	if len(r.vars) != len(want) {
		t.Errorf("unexpected fields: %v", r.vars)
	}
}

func TestJournalHandlerReservedAndInvalidKeys(t *testing.T) {
	h, records := captureJournal(slog.LevelInfo)
	slog.New(h).Error("Capture failed",
		"message", "dropped",
		"priority", 1,
		"_hidden", "kept as HIDDEN",
		"___", "dropped",
		"syslog_identifier", "other",
	)

	r := (*records)[0]
	if r.priority != journal.PriErr {
		t.Errorf("priority = %v, want %v", r.priority, journal.PriErr)
	}
	if _, ok := r.vars["MESSAGE"]; ok {
		t.Error("MESSAGE must come from the record, not an attribute")
	}
	if _, ok := r.vars["PRIORITY"]; ok {
		t.Error("PRIORITY must come from the level, not an attribute")
	}
	if r.vars["SYSLOG_IDENTIFIER"] != "camstream" {
		t.Errorf("SYSLOG_IDENTIFIER = %q", r.vars["SYSLOG_IDENTIFIER"])
	}
	if r.vars["HIDDEN"] != "kept as HIDDEN" {
		t.Errorf("HIDDEN = %q", r.vars["HIDDEN"])
	}
	if len(r.vars) != 2 {
		t.Errorf("unexpected fields: %v", r.vars)
	}
}

func TestJournalHandlerLevels(t *testing.T) {
	h, records := captureJournal(slog.LevelInfo)
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be filtered at info level")
	}

	tests := []struct {
		level slog.Level
		want  journal.Priority
	}{
		{slog.LevelDebug, journal.PriDebug},
		{slog.LevelInfo, journal.PriInfo},
		{slog.LevelWarn, journal.PriWarning},
		{slog.LevelError, journal.PriErr},
		{slog.LevelError + 4, journal.PriErr},
	}
	for _, tt := range tests {
		if got := journalPriority(tt.level); got != tt.want {
			t.Errorf("journalPriority(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}

	slog.New(h).Debug("hidden")
	if len(*records) != 0 {
		t.Errorf("filtered record was sent: %+v", *records)
	}
}

func TestJournalFieldNames(t *testing.T) {
	tests := map[string]string{
		"state":       "STATE",
		"req.path":    "REQ_PATH",
		"stream-key":  "STREAM_KEY",
		"_leading":    "LEADING",
		"exit code 1": "EXIT_CODE_1",
		"__":          "",
	}
	for in, want := range tests {
		if got := journalField(in); got != want {
			t.Errorf("journalField(%q) = %q, want %q", in, got, want)
		}
	}
}
