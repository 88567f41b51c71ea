// Package streamconfig owns the streaming configuration: defaults,
// field-by-field merging, validation and crash-safe persistence.
package streamconfig

import (
	"fmt"
	"strings"
)

// Default values applied to every field absent from the stored file.
const (
	DefaultRTMPURL     = "rtmp://a.rtmp.youtube.com/live2/"
	DefaultStreamKey   = "YOUR_STREAM_KEY_HERE"
	DefaultWidth       = 1920
	DefaultHeight      = 1080
	DefaultFramerate   = 30
	DefaultBitrate     = 2500000
	DefaultGOPSize     = 60
	DefaultPreset      = "medium"
	DefaultAudioSource = "hw:1,0"
)

// Presets lists the x264 presets accepted for Preset.
var Presets = []string{
	"ultrafast", "superfast", "veryfast", "faster", "fast",
	"medium", "slow", "slower", "veryslow", "placebo",
}

// Resolution is a [width, height] pair, serialized as a two-element array.
type Resolution [2]int

// Width returns the horizontal size in pixels.
func (r Resolution) Width() int { return r[0] }

// Height returns the vertical size in pixels.
func (r Resolution) Height() int { return r[1] }

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r[0], r[1])
}

// StreamConfig is an immutable snapshot of the streaming configuration.
// It holds only value types, so copies never share state.
type StreamConfig struct {
	RTMPURL      string     `json:"rtmp_url" validate:"required"`
	StreamKey    string     `json:"stream_key" validate:"required"`
	Resolution   Resolution `json:"resolution" validate:"dive,gt=0"`
	Framerate    int        `json:"framerate" validate:"gt=0"`
	Bitrate      int        `json:"bitrate" validate:"gt=0"`
	GOPSize      int        `json:"gop_size" validate:"gt=0"`
	Preset       string     `json:"preset" validate:"preset"`
	AudioEnabled bool       `json:"audio_enabled"`
	AudioSource  string     `json:"audio_source" validate:"required_if=AudioEnabled true"`
}

// Defaults returns the configuration used when nothing is stored.
func Defaults() StreamConfig {
	return StreamConfig{
		RTMPURL:      DefaultRTMPURL,
		StreamKey:    DefaultStreamKey,
		Resolution:   Resolution{DefaultWidth, DefaultHeight},
		Framerate:    DefaultFramerate,
		Bitrate:      DefaultBitrate,
		GOPSize:      DefaultGOPSize,
		Preset:       DefaultPreset,
		AudioEnabled: false,
		AudioSource:  DefaultAudioSource,
	}
}

// Endpoint returns the publish target: the URL followed directly by the key.
func (c StreamConfig) Endpoint() string {
	return c.RTMPURL + c.StreamKey
}

// Redacted returns the endpoint with the stream key masked.
func (c StreamConfig) Redacted() string {
	return c.RTMPURL + mask(c.StreamKey)
}

// Masked returns a copy with the stream key masked, for display.
func (c StreamConfig) Masked() StreamConfig {
	c.StreamKey = mask(c.StreamKey)
	return c
}

func mask(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return key[:2] + strings.Repeat("*", len(key)-4) + key[len(key)-2:]
}

// Partial is a set of optional field updates. Nil fields are left untouched.
type Partial struct {
	RTMPURL      *string     `json:"rtmp_url,omitempty"`
	StreamKey    *string     `json:"stream_key,omitempty"`
	Resolution   *Resolution `json:"resolution,omitempty"`
	Framerate    *int        `json:"framerate,omitempty"`
	Bitrate      *int        `json:"bitrate,omitempty"`
	GOPSize      *int        `json:"gop_size,omitempty"`
	Preset       *string     `json:"preset,omitempty"`
	AudioEnabled *bool       `json:"audio_enabled,omitempty"`
	AudioSource  *string     `json:"audio_source,omitempty"`
}

// Merge applies every set field of p onto base and returns the result.
func Merge(base StreamConfig, p Partial) StreamConfig {
	out := base
	if p.RTMPURL != nil {
		out.RTMPURL = *p.RTMPURL
	}
	if p.StreamKey != nil {
		out.StreamKey = *p.StreamKey
	}
	if p.Resolution != nil {
		out.Resolution = *p.Resolution
	}
	if p.Framerate != nil {
		out.Framerate = *p.Framerate
	}
	if p.Bitrate != nil {
		out.Bitrate = *p.Bitrate
	}
	if p.GOPSize != nil {
		out.GOPSize = *p.GOPSize
	}
	if p.Preset != nil {
		out.Preset = *p.Preset
	}
	if p.AudioEnabled != nil {
		out.AudioEnabled = *p.AudioEnabled
	}
	if p.AudioSource != nil {
		out.AudioSource = *p.AudioSource
	}
	return out
}
