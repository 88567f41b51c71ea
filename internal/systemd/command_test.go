package systemd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeScript creates an executable shell script and returns its path.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommandManagerIsActive(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   bool
	}{
		{"active", `echo active`, true},
		{"inactive", `echo inactive; exit 3`, false},
		{"failed", `echo failed; exit 3`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &CommandManager{Systemctl: writeScript(t, "systemctl", tt.script)}
			got, err := m.IsActive(context.Background(), "rtmp-streamer")
			if err != nil {
				t.Fatalf("IsActive: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsActive = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommandManagerIsActiveMissingBinary(t *testing.T) {
	m := &CommandManager{Systemctl: filepath.Join(t.TempDir(), "nope")}
	if _, err := m.IsActive(context.Background(), "rtmp-streamer"); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestCommandManagerRunPassesVerbAndUnit(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args")
	m := &CommandManager{Systemctl: writeScript(t, "systemctl", `echo "$@" > `+out)}

	if err := m.Run(context.Background(), VerbRestart, "rtmp-streamer"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "restart rtmp-streamer\n" {
		t.Errorf("args = %q", data)
	}
}

func TestCommandManagerRunSurfacesStderr(t *testing.T) {
	m := &CommandManager{Systemctl: writeScript(t, "systemctl", `echo "Unit rtmp-streamer.service not found." >&2; exit 5`)}

	err := m.Run(context.Background(), VerbStart, "rtmp-streamer")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if cmdErr.ExitCode != 5 {
		t.Errorf("ExitCode = %d, want 5", cmdErr.ExitCode)
	}
	if cmdErr.Error() != "Unit rtmp-streamer.service not found." {
		t.Errorf("Error() = %q", cmdErr.Error())
	}
}

func TestCommandManagerRunUsesSudo(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args")
	m := &CommandManager{
		Systemctl: "systemctl",
		Sudo:      writeScript(t, "sudo", `echo "$@" > `+out),
	}

	if err := m.Run(context.Background(), VerbStop, "rtmp-streamer"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "systemctl stop rtmp-streamer\n" {
		t.Errorf("args = %q", data)
	}
}

func TestCommandManagerRunRejectsUnknownVerb(t *testing.T) {
	m := NewCommandManager()
	err := m.Run(context.Background(), "enable", "rtmp-streamer")
	if !errors.Is(err, ErrUnknownVerb) {
		t.Errorf("expected ErrUnknownVerb, got %v", err)
	}
}

func TestUnitName(t *testing.T) {
	tests := map[string]string{
		"rtmp-streamer":         "rtmp-streamer.service",
		"rtmp-streamer.service": "rtmp-streamer.service",
		"reboot.target":         "reboot.target",
	}
	for in, want := range tests {
		if got := unitName(in); got != want {
			t.Errorf("unitName(%q) = %q, want %q", in, got, want)
		}
	}
}
