// Package logging provides structured logging with per-module log levels.
//
// Records fan out to every available sink:
//   - stdout when a terminal, pipe, socket or file is attached
//   - the systemd journal when journald is reachable
//   - the durable event log file, one "[YYYY-MM-DD HH:MM:SS] message" line per record
//   - an in-memory ring buffer that also drives the registered LogCallback
//
// Initialize once at startup, then ask for module loggers:
//
//	logging.Initialize(logging.Config{
//		Level: "info",
//		File:  "/home/pi/streamer/logs/streamer.log",
//		Modules: map[string]string{"publish": "debug"},
//	})
//	logger := logging.GetLogger("session")
//
// Loggers obtained before Initialize keep working; their levels are updated in place.
//
// Journal output is tagged with SYSLOG_IDENTIFIER=camstream:
//
//	journalctl -t camstream -f
//	journalctl -t camstream MODULE=session
package logging
