package publish

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camstream/internal/ffmpeg"
	"github.com/smazurov/camstream/internal/metrics"
	"github.com/smazurov/camstream/internal/streamconfig"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func script(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testSpec() ffmpeg.Spec {
	cfg := streamconfig.Defaults()
	cfg.StreamKey = "secret-key-1234"
	return ffmpeg.Build(cfg)
}

func newSupervisor(binary string, out io.Writer) *Supervisor {
	s := NewSupervisor(binary, slog.New(slog.NewTextHandler(out, nil)))
	s.GracefulTimeout = time.Second
	return s
}

func TestSpawnFeedsFramesAndPassesArgs(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	framesFile := filepath.Join(dir, "frames")
	bin := script(t, `printf "%s " "$@" > `+argsFile+`; cat > `+framesFile)

	s := newSupervisor(bin, io.Discard)
	h, err := s.Spawn(context.Background(), testSpec(), strings.NewReader("rawframes"))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("publish process did not exit after stdin EOF")
	}
	if h.ExitCode() != 0 {
		t.Fatalf("exit code = %d", h.ExitCode())
	}

	frames, _ := os.ReadFile(framesFile)
	if string(frames) != "rawframes" {
		t.Errorf("frames = %q", frames)
	}
	args, _ := os.ReadFile(argsFile)
	if !strings.HasPrefix(string(args), "-hide_banner -nostats -loglevel level+info -f rawvideo") {
		t.Errorf("args = %q", args)
	}
	if !strings.Contains(string(args), "secret-key-1234") {
		t.Error("process must receive the real endpoint")
	}
}

func TestSpawnLogsRedactedCommand(t *testing.T) {
	var out syncBuffer
	s := newSupervisor(script(t, "exit 0"), &out)
	h, err := s.Spawn(context.Background(), testSpec(), strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	<-h.Done()

	logs := out.String()
	if !strings.Contains(logs, "Starting publish process") {
		t.Fatalf("command not logged:\n%s", logs)
	}
	if strings.Contains(logs, "secret-key-1234") {
		t.Errorf("stream key leaked into logs:\n%s", logs)
	}
}

func TestSpawnFailure(t *testing.T) {
	s := newSupervisor(filepath.Join(t.TempDir(), "missing"), io.Discard)
	h, err := s.Spawn(context.Background(), testSpec(), strings.NewReader(""))
	if h != nil {
		t.Error("handle returned on failure")
	}
	var spawnErr *SpawnError
	if !errors.Is(err, ErrSpawn) || !errors.As(err, &spawnErr) {
		t.Fatalf("Spawn = %v, want SpawnError", err)
	}
}

func TestTerminateIsIdempotent(t *testing.T) {
	s := newSupervisor(script(t, "trap 'exit 0' INT; while :; do sleep 0.05; done"), io.Discard)
	h, err := s.Spawn(context.Background(), testSpec(), strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if h.Exited() {
		t.Fatal("process exited early")
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Terminate(h)
		}()
	}
	wg.Wait()

	if !h.Exited() || h.ExitCode() != 0 {
		t.Errorf("Exited=%v ExitCode=%d", h.Exited(), h.ExitCode())
	}
	s.Terminate(nil)
}

func TestTerminateSwallowsFailures(t *testing.T) {
	s := newSupervisor(script(t, "trap '' INT; while :; do sleep 0.05; done"), io.Discard)
	s.GracefulTimeout = 50 * time.Millisecond
	h, err := s.Spawn(context.Background(), testSpec(), strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	s.Terminate(h)
	if !h.Exited() {
		t.Error("process should be gone after Terminate")
	}
}

func TestAsyncFaultVisible(t *testing.T) {
	s := newSupervisor(script(t, "echo 'Connection refused' >&2; exit 1"), io.Discard)
	h, err := s.Spawn(context.Background(), testSpec(), strings.NewReader(""))
	if err != nil {
		t.Fatalf("connection failures must not fail Spawn: %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
	if !h.Exited() || h.Err() == nil || h.ExitCode() != 1 {
		t.Errorf("Exited=%v Err=%v ExitCode=%d", h.Exited(), h.Err(), h.ExitCode())
	}
}

type staticProgress string

func (p staticProgress) ProgressURL() string { return string(p) }

func TestProgressOption(t *testing.T) {
	s := newSupervisor("ffmpeg", io.Discard)
	spec := testSpec()

	if got := s.args(spec.Args(), s.progressURL()); strings.Join(got, " ") != strings.Join(spec.Args(), " ") {
		t.Errorf("args without progress changed: %v", got)
	}

	s.Progress = staticProgress("")
	if got := s.args(spec.Args(), s.progressURL()); slices.Contains(got, "-progress") {
		t.Errorf("progress passed while nothing listens: %v", got)
	}

	s.Progress = staticProgress("unix:///run/camstream/progress.sock")
	got := strings.Join(s.args(spec.Args(), s.progressURL()), " ")
	if !strings.HasPrefix(got, "-hide_banner -nostats -loglevel level+info -progress unix:///run/camstream/progress.sock -f rawvideo") {
		t.Errorf("args = %q", got)
	}
}

func TestSpawnWithUnboundProgressCollector(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	// exits non-zero when handed a -progress option, like ffmpeg with an unopenable target
	bin := script(t, `printf "%s " "$@" > `+argsFile+`; for a in "$@"; do [ "$a" = -progress ] && exit 1; done; exit 0`)

	s := newSupervisor(bin, io.Discard)
	s.Progress = metrics.NewProgressCollector(filepath.Join(dir, "progress.sock"), nil)

	h, err := s.Spawn(context.Background(), testSpec(), strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
	if h.ExitCode() != 0 {
		args, _ := os.ReadFile(argsFile)
		t.Errorf("exit code = %d with args %q", h.ExitCode(), args)
	}
}

func TestSpawnWithBoundProgressCollector(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	bin := script(t, `printf "%s " "$@" > `+argsFile)

	collector := metrics.NewProgressCollector(filepath.Join(dir, "progress.sock"), nil)
	if err := collector.Listen(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- collector.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	s := newSupervisor(bin, io.Discard)
	s.Progress = collector
	h, err := s.Spawn(context.Background(), testSpec(), strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	<-h.Done()

	args, _ := os.ReadFile(argsFile)
	if !strings.Contains(string(args), "-progress "+collector.URL()) {
		t.Errorf("args = %q", args)
	}
}

func TestOutputScrubsStreamKey(t *testing.T) {
	var out syncBuffer
	bin := script(t, `echo "[error] rtmp://a.rtmp.youtube.com/live2/secret-key-1234: Connection refused" >&2; exit 1`)
	s := newSupervisor(bin, &out)

	h, err := s.Spawn(context.Background(), testSpec(), strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	<-h.Done()
	deadline := time.Now().Add(time.Second)
	for !strings.Contains(out.String(), "Connection refused") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	logs := out.String()
	if !strings.Contains(logs, "level=ERROR") || !strings.Contains(logs, "se***********34: Connection refused") {
		t.Errorf("ffmpeg error not logged masked:\n%s", logs)
	}
	if strings.Contains(logs, "secret-key-1234") {
		t.Errorf("stream key leaked through ffmpeg output:\n%s", logs)
	}
}
