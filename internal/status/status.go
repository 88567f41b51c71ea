// Package status persists session snapshots for readers in other processes.
package status

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/renameio/v2"

	"github.com/smazurov/camstream/internal/streamconfig"
)

// Status is the on-disk status document. Uptime is never stored; it is
// derived from StartTime when read.
type Status struct {
	Streaming  bool                    `json:"streaming"`
	StartTime  *time.Time              `json:"start_time,omitempty"`
	Resolution streamconfig.Resolution `json:"resolution"`
	Framerate  int                     `json:"framerate"`
	Bitrate    int                     `json:"bitrate"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// Default is what readers show when no usable status file exists.
func Default() Status {
	d := streamconfig.Defaults()
	return Status{
		Streaming:  false,
		Resolution: d.Resolution,
		Framerate:  d.Framerate,
		Bitrate:    d.Bitrate,
	}
}

// Uptime returns how long the session has been streaming at now.
func (s Status) Uptime(now time.Time) time.Duration {
	if !s.Streaming || s.StartTime == nil {
		return 0
	}
	if d := now.Sub(*s.StartTime); d > 0 {
		return d
	}
	return 0
}

// FormatUptime renders d as H:MM:SS, truncating fractions of a second.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

// Snapshot is the session state handed to a Reporter.
type Snapshot struct {
	Streaming bool
	StartTime time.Time
	Config    streamconfig.StreamConfig
}

// Reporter writes snapshots to a status file.
type Reporter struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// NewReporter creates a reporter writing to path.
func NewReporter(path string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{path: path, logger: logger, now: time.Now}
}

// Path returns the status file location.
func (r *Reporter) Path() string { return r.path }

// Publish atomically replaces the status file with snap. A reader sees
// either the previous document or the new one, never a partial write.
func (r *Reporter) Publish(snap Snapshot) error {
	st := Status{
		Streaming:  snap.Streaming,
		Resolution: snap.Config.Resolution,
		Framerate:  snap.Config.Framerate,
		Bitrate:    snap.Config.Bitrate,
		UpdatedAt:  r.now().UTC(),
	}
	if snap.Streaming && !snap.StartTime.IsZero() {
		t := snap.StartTime
		st.StartTime = &t
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create status directory: %w", err)
	}
	if err := renameio.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	r.logger.Debug("Status written", "streaming", st.Streaming)
	return nil
}

// Read loads the status file. A missing or unparseable file yields
// Default; so does a document claiming to stream without a start time.
func Read(path string) Status {
	st, err := Parse(path)
	if err != nil {
		return Default()
	}
	return st
}

// Parse is Read with the failure reported.
func Parse(path string) (Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Status{}, err
	}

	st := Default()
	if err := json.Unmarshal(data, &st); err != nil {
		return Status{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if st.Streaming && st.StartTime == nil {
		return Status{}, errors.New("status claims streaming without a start time")
	}
	return st, nil
}
