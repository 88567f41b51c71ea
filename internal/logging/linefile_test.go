package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestLineFileHandlerFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "streamer.log")

	logger := slog.New(NewLineFileHandler(path, slog.LevelInfo)).With("module", "session")
	logger.Info("Stream started", "bitrate", 2500000)
	logger.Debug("hidden")
	logger.Warn("Capture failed", "error", fmt.Errorf("device busy"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), data)
	}

	re := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] `)
	for _, line := range lines {
		if !re.MatchString(line) {
			t.Errorf("line %q does not match timestamp format", line)
		}
		if strings.Contains(line, "module=") {
			t.Errorf("line %q should not carry module attr", line)
		}
	}
	if !strings.HasSuffix(lines[0], "] Stream started bitrate=2500000") {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "] Capture failed error=device busy") {
		t.Errorf("unexpected second line %q", lines[1])
	}
}

func TestLineFileHandlerUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	h := NewLineFileHandler(filepath.Join(blocker, "sub", "streamer.log"), slog.LevelInfo)
	logger := slog.New(h)

	// must not panic or surface an error
	logger.Info("lost")
}

func TestFormatLine(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 1, 0, time.Local)
	if got := FormatLine(ts, "hello"); got != "[2024-03-09 07:05:01] hello" {
		t.Errorf("FormatLine = %q", got)
	}
}

func TestTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "streamer.log")

	var sb strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		n    int
		want string
	}{
		{"last three", 3, "line 8\nline 9\nline 10\n"},
		{"more than available", 50, sb.String()},
		{"zero", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tail(path, tt.n)
			if err != nil {
				t.Fatalf("Tail: %v", err)
			}
			if got != tt.want {
				t.Errorf("Tail(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestTailMissingFile(t *testing.T) {
	got, err := Tail(filepath.Join(t.TempDir(), "missing.log"), 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if got != NoLogsMessage {
		t.Errorf("Tail = %q, want %q", got, NoLogsMessage)
	}
}

func TestRingBufferLast(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := range 5 {
		rb.Write(LogEntry{Message: fmt.Sprintf("m%d", i)})
	}

	got := rb.Last(2)
	if len(got) != 2 || got[0].Message != "m3" || got[1].Message != "m4" {
		t.Errorf("Last(2) = %+v", got)
	}

	all := rb.ReadAll()
	if len(all) != 3 || all[0].Message != "m2" {
		t.Errorf("ReadAll = %+v", all)
	}
	if rb.Count() != 3 {
		t.Errorf("Count = %d", rb.Count())
	}
}

func TestLogCallbackReceivesEntries(t *testing.T) {
	resetLogging(t)
	Initialize(Config{Level: "info"})

	var got []LogEntry
	SetLogCallback(func(e LogEntry) { got = append(got, e) })
	defer SetLogCallback(nil)

	GetLogger("status").Info("Status written", "streaming", true)

	if len(got) != 1 {
		t.Fatalf("expected 1 callback, got %d", len(got))
	}
	if got[0].Module != "status" || got[0].Level != "info" || got[0].Attributes["streaming"] != true {
		t.Errorf("unexpected entry %+v", got[0])
	}
}
