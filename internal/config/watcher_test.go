package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pelletier/go-toml/v2"
)

type testConfig struct {
	Name  string `toml:"name"`
	Value int    `toml:"value"`
}

func loadTestConfig(path string) (testConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return testConfig{}, err
	}
	var cfg testConfig
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serve runs w until the test ends and returns the channel Serve's result lands on.
func serve(t *testing.T, w *Watcher[testConfig]) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		done <- w.Serve(ctx)
		close(finished)
	}()
	t.Cleanup(func() {
		cancel()
		<-finished
	})
	// let the watch register before the test writes
	time.Sleep(100 * time.Millisecond)
	return cancel, done
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherReloadOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "name = \"initial\"\nvalue = 1\n")

	received := make(chan testConfig, 1)
	w := NewWatcher(path, loadTestConfig, discardLogger(), WithDebounce[testConfig](50*time.Millisecond))
	w.OnReload(func(cfg testConfig) { received <- cfg })
	serve(t, w)

	writeFile(t, path, "name = \"updated\"\nvalue = 42\n")

	select {
	case cfg := <-received:
		if cfg.Name != "updated" || cfg.Value != 42 {
			t.Errorf("got %+v, want name=updated value=42", cfg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
}

func TestWatcherReloadOnAtomicReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "value = 1\n")

	received := make(chan testConfig, 4)
	w := NewWatcher(path, loadTestConfig, discardLogger(), WithDebounce[testConfig](50*time.Millisecond))
	w.OnReload(func(cfg testConfig) { received <- cfg })
	serve(t, w)

	for _, v := range []string{"value = 2\n", "value = 3\n"} {
		if err := renameio.WriteFile(path, []byte(v), 0o644); err != nil {
			t.Fatal(err)
		}

		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for reload after replacing with %q", v)
		}
	}

	cfg, err := loadTestConfig(path)
	if err != nil || cfg.Value != 3 {
		t.Fatalf("final config = %+v, %v", cfg, err)
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "value = 1\n")

	var calls atomic.Int32
	w := NewWatcher(path, loadTestConfig, discardLogger(), WithDebounce[testConfig](20*time.Millisecond))
	w.OnReload(func(testConfig) { calls.Add(1) })
	serve(t, w)

	writeFile(t, filepath.Join(dir, "status.json"), "{}")
	time.Sleep(200 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("handler called %d times for unrelated file", n)
	}
}

func TestWatcherDebounce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "value = 0\n")

	var calls atomic.Int32
	last := make(chan testConfig, 10)
	w := NewWatcher(path, loadTestConfig, discardLogger(), WithDebounce[testConfig](200*time.Millisecond))
	w.OnReload(func(cfg testConfig) {
		calls.Add(1)
		last <- cfg
	})
	serve(t, w)

	for _, v := range []string{"value = 1\n", "value = 2\n", "value = 3\n"} {
		writeFile(t, path, v)
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case cfg := <-last:
		if cfg.Value != 3 {
			t.Errorf("got value %d, want 3", cfg.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}

	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("handler called %d times, want 1", n)
	}
}

func TestWatcherErrorHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "value = 1\n")

	errs := make(chan error, 1)
	var calls atomic.Int32
	w := NewWatcher(path, loadTestConfig, discardLogger(),
		WithDebounce[testConfig](50*time.Millisecond),
		WithErrorHandler[testConfig](func(err error) { errs <- err }),
	)
	w.OnReload(func(testConfig) { calls.Add(1) })
	serve(t, w)

	writeFile(t, path, "value = [not toml")

	select {
	case err := <-errs:
		if err == nil {
			t.Error("expected a parse error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error")
	}
	if calls.Load() != 0 {
		t.Error("handler must not run when loading fails")
	}
}

func TestWatcherUnsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "value = 1\n")

	var removed atomic.Int32
	kept := make(chan testConfig, 1)
	w := NewWatcher(path, loadTestConfig, discardLogger(), WithDebounce[testConfig](50*time.Millisecond))
	unsubscribe := w.OnReload(func(testConfig) { removed.Add(1) })
	w.OnReload(func(cfg testConfig) { kept <- cfg })
	unsubscribe()
	serve(t, w)

	writeFile(t, path, "value = 2\n")

	select {
	case <-kept:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
	if removed.Load() != 0 {
		t.Error("unsubscribed handler was called")
	}
}

func TestWatcherServeStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "value = 1\n")

	w := NewWatcher(path, loadTestConfig, discardLogger())
	cancel, done := serve(t, w)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestWatcherServeMissingDirectory(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing", "config.toml"), loadTestConfig, discardLogger())
	if err := w.Serve(context.Background()); err == nil {
		t.Fatal("expected error watching a missing directory")
	}
}
