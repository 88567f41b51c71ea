package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "publish",
		Name:      "fps",
		Help:      "Current encoding FPS",
	})

	publishDroppedFrames = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "publish",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped by the encoder this session",
	})

	publishDuplicateFrames = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "publish",
		Name:      "duplicate_frames_total",
		Help:      "Frames duplicated by the encoder this session",
	})

	publishSpeed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "publish",
		Name:      "processing_speed",
		Help:      "Encoding speed relative to real time",
	})

	publishBitrate = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "publish",
		Name:      "bitrate_kbits",
		Help:      "Output bitrate reported by the encoder",
	})

	progress   PublishProgress
	progressMu sync.RWMutex
)

// PublishProgress holds the latest values reported by the publish process.
type PublishProgress struct {
	FPS             float64 `json:"fps"`
	DroppedFrames   float64 `json:"dropped_frames"`
	DuplicateFrames float64 `json:"duplicate_frames"`
	Speed           float64 `json:"speed"`
	BitrateKbits    float64 `json:"bitrate_kbits"`
}

// SetPublishFPS sets the current encoding FPS.
func SetPublishFPS(fps float64) {
	publishFPS.Set(fps)
	updateProgress(func(p *PublishProgress) { p.FPS = fps })
}

// SetPublishDroppedFrames sets the dropped frame count.
func SetPublishDroppedFrames(count float64) {
	publishDroppedFrames.Set(count)
	updateProgress(func(p *PublishProgress) { p.DroppedFrames = count })
}

// SetPublishDuplicateFrames sets the duplicate frame count.
func SetPublishDuplicateFrames(count float64) {
	publishDuplicateFrames.Set(count)
	updateProgress(func(p *PublishProgress) { p.DuplicateFrames = count })
}

// SetPublishSpeed sets the processing speed multiplier.
func SetPublishSpeed(speed float64) {
	publishSpeed.Set(speed)
	updateProgress(func(p *PublishProgress) { p.Speed = speed })
}

// SetPublishBitrate sets the output bitrate in kbit/s.
func SetPublishBitrate(kbits float64) {
	publishBitrate.Set(kbits)
	updateProgress(func(p *PublishProgress) { p.BitrateKbits = kbits })
}

// ResetPublishProgress zeroes the publish gauges when a session ends.
func ResetPublishProgress() {
	for _, g := range []prometheus.Gauge{publishFPS, publishDroppedFrames, publishDuplicateFrames, publishSpeed, publishBitrate} {
		g.Set(0)
	}
	progressMu.Lock()
	progress = PublishProgress{}
	progressMu.Unlock()
}

// GetPublishProgress returns a copy of the latest publish progress.
func GetPublishProgress() PublishProgress {
	progressMu.RLock()
	defer progressMu.RUnlock()
	return progress
}

func updateProgress(update func(*PublishProgress)) {
	progressMu.Lock()
	defer progressMu.Unlock()
	update(&progress)
}
