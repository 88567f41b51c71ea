// Package ffmpeg maps a stream configuration to structured ffmpeg argument lists.
package ffmpeg

import (
	"strconv"

	"github.com/smazurov/camstream/internal/streamconfig"
)

// Fixed encode parameters.
const (
	CapturePixelFormat = "rgb24"
	EncodePixelFormat  = "yuv420p"
	VideoCodec         = "libx264"
	AudioCodec         = "aac"
	AudioBitrate       = "128k"
	AudioChannels      = 2
	AudioSampleRate    = 44100
	OutputFormat       = "flv"
	OutputFlags        = "no_duration_filesize"
)

// GlobalArgs precede every ffmpeg invocation. Periodic stats are off;
// progress goes through -progress instead. level+info prefixes each
// stderr line with its level so LineParser can classify it.
var GlobalArgs = []string{"-hide_banner", "-nostats", "-loglevel", "level+info"}

// Input describes the raw frame stream read from stdin.
type Input struct {
	PixelFormat string
	Width       int
	Height      int
	Framerate   int
}

// AudioInput is the optional ALSA capture branch.
type AudioInput struct {
	Source     string
	Channels   int
	SampleRate int
}

// VideoEncode holds the x264 parameters.
type VideoEncode struct {
	Codec       string
	Preset      string
	Bitrate     int
	MaxRate     int
	BufferSize  int
	PixelFormat string
	GOP         int
	KeyintMin   int
	SceneCut    int
}

// AudioEncode holds the optional audio encoder parameters.
type AudioEncode struct {
	Codec   string
	Bitrate string
}

// Output is the live muxer and its target.
type Output struct {
	Format string
	Flags  string
	URL    string
	// Redacted is URL with the stream key masked, for logging.
	Redacted string

	key, maskedKey string
}

// Spec is the ordered description of the encode and publish pipeline.
// Audio and AudioEncode are both set or both nil.
type Spec struct {
	Input       Input
	Audio       *AudioInput
	Video       VideoEncode
	AudioEncode *AudioEncode
	Output      Output
}

// Build maps cfg to a pipeline spec. It has no side effects.
func Build(cfg streamconfig.StreamConfig) Spec {
	spec := Spec{
		Input: Input{
			PixelFormat: CapturePixelFormat,
			Width:       cfg.Resolution.Width(),
			Height:      cfg.Resolution.Height(),
			Framerate:   cfg.Framerate,
		},
		Video: VideoEncode{
			Codec:       VideoCodec,
			Preset:      cfg.Preset,
			Bitrate:     cfg.Bitrate,
			MaxRate:     cfg.Bitrate,
			BufferSize:  cfg.Bitrate * 2,
			PixelFormat: EncodePixelFormat,
			GOP:         cfg.GOPSize,
			KeyintMin:   cfg.GOPSize,
			SceneCut:    0,
		},
		Output: Output{
			Format:   OutputFormat,
			Flags:    OutputFlags,
			URL:      cfg.Endpoint(),
			Redacted: cfg.Redacted(),

			key:       cfg.StreamKey,
			maskedKey: cfg.Masked().StreamKey,
		},
	}

	if cfg.AudioEnabled {
		spec.Audio = &AudioInput{
			Source:     cfg.AudioSource,
			Channels:   AudioChannels,
			SampleRate: AudioSampleRate,
		}
		spec.AudioEncode = &AudioEncode{
			Codec:   AudioCodec,
			Bitrate: AudioBitrate,
		}
	}

	return spec
}

// Args renders the argument list for the publish process, without the binary name.
func (s Spec) Args() []string {
	return s.render(s.Output.URL)
}

// Redacted renders Args with the stream key masked.
func (s Spec) Redacted() []string {
	return s.render(s.Output.Redacted)
}

func (s Spec) render(target string) []string {
	args := append([]string(nil), GlobalArgs...)

	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", s.Input.PixelFormat,
		"-s", size(s.Input.Width, s.Input.Height),
		"-r", strconv.Itoa(s.Input.Framerate),
		"-i", "-",
	)

	if s.Audio != nil {
		args = append(args,
			"-f", "alsa",
			"-i", s.Audio.Source,
			"-ac", strconv.Itoa(s.Audio.Channels),
			"-ar", strconv.Itoa(s.Audio.SampleRate),
		)
	}

	v := s.Video
	args = append(args,
		"-c:v", v.Codec,
		"-preset", v.Preset,
		"-b:v", strconv.Itoa(v.Bitrate),
		"-maxrate", strconv.Itoa(v.MaxRate),
		"-bufsize", strconv.Itoa(v.BufferSize),
		"-pix_fmt", v.PixelFormat,
		"-g", strconv.Itoa(v.GOP),
		"-keyint_min", strconv.Itoa(v.KeyintMin),
		"-sc_threshold", strconv.Itoa(v.SceneCut),
	)

	if s.AudioEncode != nil {
		args = append(args,
			"-c:a", s.AudioEncode.Codec,
			"-b:a", s.AudioEncode.Bitrate,
		)
	}

	return append(args,
		"-f", s.Output.Format,
		"-flvflags", s.Output.Flags,
		target,
	)
}

func size(w, h int) string {
	return strconv.Itoa(w) + "x" + strconv.Itoa(h)
}
