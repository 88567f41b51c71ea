package status

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/camstream/internal/streamconfig"
)

func newReporter(t *testing.T) *Reporter {
	t.Helper()
	return NewReporter(filepath.Join(t.TempDir(), "status.json"), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishStreaming(t *testing.T) {
	r := newReporter(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := streamconfig.Defaults()
	cfg.Resolution = streamconfig.Resolution{1280, 720}
	cfg.Framerate = 25

	if err := r.Publish(Snapshot{Streaming: true, StartTime: start, Config: cfg}); err != nil {
		t.Fatal(err)
	}

	st, err := Parse(r.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !st.Streaming || st.StartTime == nil || !st.StartTime.Equal(start) {
		t.Errorf("status = %+v", st)
	}
	if st.Resolution != cfg.Resolution || st.Framerate != 25 || st.Bitrate != cfg.Bitrate {
		t.Errorf("config fields = %+v", st)
	}
	if st.UpdatedAt.IsZero() {
		t.Error("updated_at not written")
	}
}

func TestPublishIdleOmitsStartTime(t *testing.T) {
	r := newReporter(t)
	// a start time left over from a session is dropped when idle
	snap := Snapshot{Streaming: false, StartTime: time.Now(), Config: streamconfig.Defaults()}
	if err := r.Publish(snap); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(r.Path())
	if err != nil {
		t.Fatal(err)
	}
	st := Read(r.Path())
	if st.Streaming || st.StartTime != nil {
		t.Errorf("status = %+v", st)
	}
	for _, key := range []string{"start_time", "uptime"} {
		if strings.Contains(string(data), `"`+key+`"`) {
			t.Errorf("file should not contain %s:\n%s", key, data)
		}
	}
}

func TestPublishLeavesNoTempFiles(t *testing.T) {
	r := newReporter(t)
	for range 5 {
		if err := r.Publish(Snapshot{Config: streamconfig.Defaults()}); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(filepath.Dir(r.Path()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the status file", len(entries))
	}
}

func TestPublishUnwritable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	os.WriteFile(blocker, nil, 0o644)
	r := NewReporter(filepath.Join(blocker, "status.json"), nil)
	if err := r.Publish(Snapshot{Config: streamconfig.Defaults()}); err == nil {
		t.Error("expected error writing below a regular file")
	}
}

func TestReadFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content *string
	}{
		{"missing", nil},
		{"empty", ptr("")},
		{"garbage", ptr("{not json")},
		{"truncated", ptr(`{"streaming": true, "start_ti`)},
		{"streaming without start", ptr(`{"streaming": true}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if tt.content != nil {
				os.WriteFile(path, []byte(*tt.content), 0o644)
			}
			if got := Read(path); got != Default() {
				t.Errorf("Read() = %+v, want defaults", got)
			}
		})
	}
}

func TestReadLegacyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	os.WriteFile(path, []byte(`{"streaming": false, "start_time": null, "uptime_seconds": 0, "framerate": 60}`), 0o644)

	st := Read(path)
	if st.Streaming || st.StartTime != nil || st.Framerate != 60 {
		t.Errorf("status = %+v", st)
	}
	if st.Resolution != Default().Resolution {
		t.Errorf("missing fields should keep defaults, got %v", st.Resolution)
	}
}

func TestUptimeDerivedAtReadTime(t *testing.T) {
	r := newReporter(t)
	start := time.Now().Add(-90 * time.Second)
	if err := r.Publish(Snapshot{Streaming: true, StartTime: start, Config: streamconfig.Defaults()}); err != nil {
		t.Fatal(err)
	}

	st := Read(r.Path())
	t1 := start.Add(100 * time.Second)
	t2 := t1.Add(7 * time.Second)
	if diff := st.Uptime(t2) - st.Uptime(t1); diff != 7*time.Second {
		t.Errorf("uptime difference = %v, want 7s", diff)
	}
	if st.Uptime(start.Add(-time.Second)) != 0 {
		t.Error("uptime before start should be zero")
	}
	if Default().Uptime(t2) != 0 {
		t.Error("idle status should have zero uptime")
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00:00"},
		{-time.Second, "0:00:00"},
		{1500 * time.Millisecond, "0:00:01"},
		{65 * time.Second, "0:01:05"},
		{3*time.Hour + 4*time.Minute + 5*time.Second, "3:04:05"},
		{27 * time.Hour, "27:00:00"},
	}
	for _, tt := range tests {
		if got := FormatUptime(tt.d); got != tt.want {
			t.Errorf("FormatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func ptr(s string) *string { return &s }
