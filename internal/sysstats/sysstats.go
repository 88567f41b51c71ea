// Package sysstats samples host telemetry for the status endpoint.
package sysstats

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"

	"github.com/smazurov/camstream/internal/status"
)

const (
	// DefaultThermalPath is the SoC temperature in millidegrees Celsius.
	DefaultThermalPath = "/sys/class/thermal/thermal_zone0/temp"
	// DefaultTTL is how long a sample is reused.
	DefaultTTL = 2 * time.Second

	gib = 1 << 30
)

// CPU load and clock.
type CPU struct {
	Percent float64 `json:"percent"`
	Freq    float64 `json:"freq"`
}

// Usage of memory or disk in GiB.
type Usage struct {
	Percent float64 `json:"percent"`
	Used    float64 `json:"used"`
	Total   float64 `json:"total"`
}

// Network totals in GiB since boot.
type Network struct {
	Sent float64 `json:"sent"`
	Recv float64 `json:"recv"`
}

// Stats is one telemetry sample. The zero value means unavailable.
type Stats struct {
	CPU         CPU     `json:"cpu"`
	Memory      Usage   `json:"memory"`
	Disk        Usage   `json:"disk"`
	Temperature float64 `json:"temperature"`
	Network     Network `json:"network"`
	Uptime      string  `json:"uptime"`
}

// Collector samples host statistics and caches them briefly.
type Collector struct {
	thermalPath string
	ttl         time.Duration
	logger      *slog.Logger
	now         func() time.Time
	sample      func(ctx context.Context) (Stats, error)

	mu     sync.Mutex
	cached Stats
	at     time.Time
}

// NewCollector creates a collector reading temperature from thermalPath.
func NewCollector(thermalPath string, logger *slog.Logger) *Collector {
	if thermalPath == "" {
		thermalPath = DefaultThermalPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collector{
		thermalPath: thermalPath,
		ttl:         DefaultTTL,
		logger:      logger,
		now:         time.Now,
	}
	c.sample = c.collect
	return c
}

// Stats returns a sample no older than the cache TTL. Sampling errors
// yield the zero Stats and are only logged.
func (c *Collector) Stats(ctx context.Context) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.at.IsZero() && now.Sub(c.at) < c.ttl {
		return c.cached
	}

	st, err := c.sample(ctx)
	if err != nil {
		c.logger.Warn("Failed to collect system stats", "error", err)
		return Stats{}
	}
	c.cached = st
	c.at = now
	return st
}

func (c *Collector) collect(ctx context.Context) (Stats, error) {
	var st Stats

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Stats{}, fmt.Errorf("cpu: %w", err)
	}
	if len(percents) > 0 {
		st.CPU.Percent = round(percents[0], 1)
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		st.CPU.Freq = math.Round(infos[0].Mhz)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("memory: %w", err)
	}
	st.Memory = usage(vm.UsedPercent, vm.Used, vm.Total)

	du, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return Stats{}, fmt.Errorf("disk: %w", err)
	}
	st.Disk = usage(du.UsedPercent, du.Used, du.Total)

	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return Stats{}, fmt.Errorf("network: %w", err)
	}
	if len(counters) > 0 {
		st.Network.Sent = round(float64(counters[0].BytesSent)/gib, 2)
		st.Network.Recv = round(float64(counters[0].BytesRecv)/gib, 2)
	}

	up, err := host.UptimeWithContext(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("uptime: %w", err)
	}
	st.Uptime = status.FormatUptime(time.Duration(up) * time.Second)

	st.Temperature = ReadTemperature(c.thermalPath)
	return st, nil
}

// ReadTemperature returns the temperature in degrees Celsius from a
// millidegree sysfs file, or 0 when it cannot be read.
func ReadTemperature(path string) float64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0
	}
	return round(milli/1000, 1)
}

func usage(percent float64, used, total uint64) Usage {
	return Usage{
		Percent: round(percent, 1),
		Used:    round(float64(used)/gib, 2),
		Total:   round(float64(total)/gib, 2),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
