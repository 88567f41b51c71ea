// Package cmd holds the operator subcommands of the camstream binary.
package cmd

// Locations shared with the daemon's defaults.
const (
	DefaultConfigFile  = "/home/pi/streamer/config.json"
	DefaultStatusFile  = "/home/pi/streamer/status.json"
	DefaultServiceName = "rtmp-streamer"
	DefaultNATSURL     = "nats://127.0.0.1:4222"
)
