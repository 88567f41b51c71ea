// Package metrics provides Prometheus metrics for the streaming session and
// the publish process.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "camstream"

var (
	sessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "state",
		Help:      "1 for the current session state, 0 otherwise",
	}, []string{"state"})

	sessionStart = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "start_timestamp_seconds",
		Help:      "Unix time the current session started streaming, 0 when idle",
	})

	sessionStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "starts_total",
		Help:      "Start attempts by result",
	}, []string{"result"})

	sessionStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "stops_total",
		Help:      "Completed stops by reason",
	}, []string{"reason"})

	sessionFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "faults_total",
		Help:      "Pipeline processes found dead while streaming",
	}, []string{"source"})

	statusWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "status",
		Name:      "write_errors_total",
		Help:      "Failed status file writes",
	})

	counts   = make(map[string]float64)
	countsMu sync.Mutex
)

// SetSessionState marks state as the current session state.
func SetSessionState(state string) {
	sessionState.Reset()
	sessionState.WithLabelValues(state).Set(1)
}

// SetSessionStart records the session start time; the zero time clears it.
func SetSessionStart(t time.Time) {
	if t.IsZero() {
		sessionStart.Set(0)
		return
	}
	sessionStart.Set(float64(t.UnixNano()) / 1e9)
}

// IncStart counts a start attempt with result "ok" or "error".
func IncStart(result string) {
	sessionStarts.WithLabelValues(result).Inc()
	bump("start_" + result)
}

// IncStop counts a completed stop.
func IncStop(reason string) {
	sessionStops.WithLabelValues(reason).Inc()
	bump("stop_" + reason)
}

// IncFault counts a runtime fault of the capture or publish process.
func IncFault(source string) {
	sessionFaults.WithLabelValues(source).Inc()
	bump("fault_" + source)
}

// IncStatusWriteError counts a failed status write.
func IncStatusWriteError() {
	statusWriteErrors.Inc()
	bump("status_write_error")
}

// Count returns how often a counter helper was called with name, e.g.
// "start_ok" or "fault_publish".
func Count(name string) float64 {
	countsMu.Lock()
	defer countsMu.Unlock()
	return counts[name]
}

func bump(name string) {
	countsMu.Lock()
	counts[name]++
	countsMu.Unlock()
}
