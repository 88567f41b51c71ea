package ffmpeg

import "strconv"

// TestSource selects the generated test pattern instead of a camera.
const TestSource = "testsrc"

// CaptureArgs renders the arguments of a capture process that writes raw
// rgb24 frames of exactly width x height to stdout.
func CaptureArgs(device string, width, height, framerate int) []string {
	args := append([]string(nil), GlobalArgs...)

	if device == TestSource {
		// -re paces the generator at its native rate
		args = append(args,
			"-re",
			"-f", "lavfi",
			"-i", "testsrc2=size="+size(width, height)+":rate="+strconv.Itoa(framerate),
		)
	} else {
		args = append(args,
			"-f", "v4l2",
			"-video_size", size(width, height),
			"-framerate", strconv.Itoa(framerate),
			"-i", device,
		)
	}

	return append(args,
		"-f", "rawvideo",
		"-pix_fmt", CapturePixelFormat,
		"-s", size(width, height),
		"-",
	)
}
