package sysstats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var errUnavailable = errors.New("stats unavailable")

func testCollector(t *testing.T) (*Collector, *time.Time, *int) {
	t.Helper()
	c := NewCollector(filepath.Join(t.TempDir(), "temp"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	now := time.Date(2025, 1, 27, 10, 0, 0, 0, time.UTC)
	calls := 0
	c.now = func() time.Time { return now }
	c.sample = func(context.Context) (Stats, error) {
		calls++
		return Stats{CPU: CPU{Percent: float64(calls)}}, nil
	}
	return c, &now, &calls
}

func TestStatsCachedForTTL(t *testing.T) {
	c, now, calls := testCollector(t)
	ctx := context.Background()

	first := c.Stats(ctx)
	*now = now.Add(time.Second)
	second := c.Stats(ctx)
	if *calls != 1 || first != second {
		t.Errorf("calls = %d, first = %+v, second = %+v", *calls, first, second)
	}

	*now = now.Add(DefaultTTL)
	third := c.Stats(ctx)
	if *calls != 2 || third.CPU.Percent != 2 {
		t.Errorf("calls = %d, third = %+v", *calls, third)
	}
}

func TestStatsErrorYieldsZero(t *testing.T) {
	c, _, _ := testCollector(t)
	c.sample = func(context.Context) (Stats, error) { return Stats{}, errUnavailable }

	if got := c.Stats(context.Background()); got != (Stats{}) {
		t.Errorf("Stats() = %+v, want zero", got)
	}
}

func TestStatsErrorIsNotCached(t *testing.T) {
	c, _, _ := testCollector(t)
	failing := true
	c.sample = func(context.Context) (Stats, error) {
		if failing {
			return Stats{}, errUnavailable
		}
		return Stats{Temperature: 40}, nil
	}

	c.Stats(context.Background())
	failing = false
	if got := c.Stats(context.Background()); got.Temperature != 40 {
		t.Errorf("Stats() after recovery = %+v", got)
	}
}

func TestReadTemperature(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    float64
	}{
		{"millidegrees", "48312\n", 48.3},
		{"zero", "0", 0},
		{"garbage", "hot", 0},
		{"missing", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if tt.content != "" {
				if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			if got := ReadTemperature(path); got != tt.want {
				t.Errorf("ReadTemperature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUsageRounding(t *testing.T) {
	got := usage(42.26, 3*gib/2, 4*gib)
	want := Usage{Percent: 42.3, Used: 1.5, Total: 4}
	if got != want {
		t.Errorf("usage() = %+v, want %+v", got, want)
	}
}

func TestCollectLive(t *testing.T) {
	if _, err := os.Stat("/proc/stat"); err != nil {
		t.Skip("no procfs")
	}
	c := NewCollector(filepath.Join(t.TempDir(), "temp"), nil)
	st, err := c.collect(context.Background())
	if err != nil {
		t.Fatalf("collect() error = %v", err)
	}
	if st.Memory.Total <= 0 || st.Uptime == "" {
		t.Errorf("collect() = %+v", st)
	}
}
