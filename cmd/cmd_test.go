package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/smazurov/camstream/internal/status"
	"github.com/smazurov/camstream/internal/streamconfig"
	"github.com/smazurov/camstream/internal/systemd"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "camstream", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(CreateStatusCmd(), CreateServiceCmd(), CreateConfigCmd(), CreateUpdateCmd(), CreateCtlCmd())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusMissingFileShowsDefaults(t *testing.T) {
	out, err := execute(t, "status", "--status-file", filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"State:      stopped", "Uptime:     0:00:00", "Resolution: 1920x1080", "Bitrate:    2500 kbit/s"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestPrintStatusStreaming(t *testing.T) {
	start := time.Date(2025, 1, 27, 10, 0, 0, 0, time.UTC)
	st := status.Default()
	st.Streaming = true
	st.StartTime = &start

	var out bytes.Buffer
	if err := printStatus(&out, st, start.Add(26*time.Hour+5*time.Second), false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "State:      streaming") || !strings.Contains(out.String(), "Uptime:     26:00:05") {
		t.Errorf("output:\n%s", out.String())
	}

	out.Reset()
	if err := printStatus(&out, st, start.Add(time.Minute), true); err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("json output %q: %v", out.String(), err)
	}
	if doc["uptime"] != "0:01:00" || doc["streaming"] != true {
		t.Errorf("json = %v", doc)
	}
}

func TestConfigShowMasksKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"stream_key": "abcd-efgh-ijkl", "framerate": 25}`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"masked", []string{"config", "show", "--file", path}, "ab**********kl"},
		{"revealed", []string{"config", "show", "--file", path, "--reveal"}, "abcd-efgh-ijkl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			var cfg streamconfig.StreamConfig
			if err := json.Unmarshal([]byte(out), &cfg); err != nil {
				t.Fatalf("output %q: %v", out, err)
			}
			if cfg.StreamKey != tt.want || cfg.Framerate != 25 || cfg.Bitrate != streamconfig.DefaultBitrate {
				t.Errorf("config = %+v", cfg)
			}
		})
	}
}

func TestArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown service verb", []string{"service", "explode"}},
		{"missing service verb", []string{"service"}},
		{"unknown ctl action", []string{"ctl", "pause"}},
		{"check with rollback", []string{"update", "--check", "--rollback"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

type fakeManager struct {
	active bool
	err    error
	ran    []string
}

func (f *fakeManager) IsActive(context.Context, string) (bool, error) { return f.active, f.err }

func (f *fakeManager) Run(_ context.Context, verb, unit string) error {
	f.ran = append(f.ran, verb+" "+unit)
	return f.err
}

func TestRunService(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	mgr := &fakeManager{active: true}
	if err := runService(context.Background(), cmd, mgr, "is-active", "rtmp-streamer"); err != nil {
		t.Fatal(err)
	}
	if err := runService(context.Background(), cmd, mgr, "restart", "rtmp-streamer"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "active\nrestart rtmp-streamer: ok\n" {
		t.Errorf("output = %q", out.String())
	}
	if len(mgr.ran) != 1 || mgr.ran[0] != "restart rtmp-streamer" {
		t.Errorf("ran = %v", mgr.ran)
	}

	mgr.err = &systemd.CommandError{ExitCode: 5, Stderr: "Unit rtmp-streamer.service not loaded."}
	err := runService(context.Background(), cmd, mgr, "stop", "rtmp-streamer")
	var cmdErr *systemd.CommandError
	if !errors.As(err, &cmdErr) || !strings.Contains(err.Error(), "not loaded") {
		t.Errorf("err = %v", err)
	}
}
