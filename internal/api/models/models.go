// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"time"

	"github.com/smazurov/camstream/internal/streamconfig"
	"github.com/smazurov/camstream/internal/sysstats"
)

// HealthData is the liveness check body.
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// VersionData is the build metadata body.
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc123" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.1" doc:"Go version used to build"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// StreamStatus is the session as seen through the status file, with
// uptime derived at read time.
type StreamStatus struct {
	Streaming  bool                    `json:"streaming" doc:"Whether frames are being published"`
	State      string                  `json:"state,omitempty" example:"streaming" doc:"Session state of this process"`
	StartTime  *time.Time              `json:"start_time,omitempty" doc:"When streaming started"`
	Uptime     string                  `json:"uptime" example:"1:02:03" doc:"Time since start as H:MM:SS"`
	Resolution streamconfig.Resolution `json:"resolution" doc:"[width, height] in effect"`
	Framerate  int                     `json:"framerate" example:"30" doc:"Frame rate in effect"`
	Bitrate    int                     `json:"bitrate" example:"2500000" doc:"Target bitrate in bits/s"`
}

// StatusData is the combined service, stream and host status.
type StatusData struct {
	ServiceRunning bool           `json:"service_running" doc:"Whether the streamer unit is active"`
	StreamStatus   StreamStatus   `json:"stream_status"`
	SystemStats    sysstats.Stats `json:"system_stats"`
}

type StatusResponse struct {
	Body StatusData
}

type ConfigResponse struct {
	Body streamconfig.StreamConfig
}

// ConfigUpdateRequest carries a partial configuration; absent fields keep
// their current values.
type ConfigUpdateRequest struct {
	Body streamconfig.Partial
}

// ConfigUpdateData reports the saved configuration.
type ConfigUpdateData struct {
	Success bool                      `json:"success" example:"true" doc:"Whether the configuration was saved"`
	Config  streamconfig.StreamConfig `json:"config" doc:"Configuration now in effect for the next start"`
}

type ConfigUpdateResponse struct {
	Body ConfigUpdateData
}

// LogsRequest selects how many lines to return.
type LogsRequest struct {
	Lines int `query:"lines" default:"50" minimum:"1" maximum:"10000" doc:"Number of trailing log lines"`
}

// LogsData holds trailing log lines.
type LogsData struct {
	Logs string `json:"logs" doc:"Trailing lines of the stream log"`
}

type LogsResponse struct {
	Body LogsData
}

// StreamActionData reports the session after a start or stop.
type StreamActionData struct {
	Success bool   `json:"success" example:"true" doc:"Whether the action succeeded"`
	State   string `json:"state" example:"streaming" doc:"Session state after the action"`
}

type StreamActionResponse struct {
	Body StreamActionData
}

// ControlRequest names a service-manager verb.
type ControlRequest struct {
	Action string `path:"action" enum:"start,stop,restart,reboot" doc:"Service manager verb"`
}

// ControlData reports a delegated service-manager action.
type ControlData struct {
	Success bool   `json:"success" example:"true" doc:"Whether the command succeeded"`
	Action  string `json:"action" example:"restart" doc:"Verb that was run"`
	Service string `json:"service" example:"rtmp-streamer" doc:"Unit the verb applied to"`
}

type ControlResponse struct {
	Body ControlData
}
