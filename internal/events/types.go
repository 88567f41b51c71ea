package events

// Event type constants for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeStreamFault
	TypeConfigChanged
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StateChangedEvent is published on every session state transition.
type StateChangedEvent struct {
	State     string `json:"state" example:"streaming" doc:"New session state"`
	Previous  string `json:"previous" example:"starting" doc:"State before the transition"`
	Streaming bool   `json:"streaming" example:"true" doc:"Whether frames are being published"`
	StartTime string `json:"start_time,omitempty" example:"2025-01-27T10:30:00Z" doc:"Session start, when streaming"`
	Reason    string `json:"reason,omitempty" example:"stop requested" doc:"What caused the transition"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// IsStreaming reports whether the new state publishes frames.
func (e StateChangedEvent) IsStreaming() bool { return e.Streaming }

// StreamFaultEvent is published when a pipeline process dies while streaming.
type StreamFaultEvent struct {
	Source    string `json:"source" example:"publish" doc:"Process that failed: capture or publish"`
	ExitCode  int    `json:"exit_code" example:"1" doc:"Process exit status"`
	Error     string `json:"error,omitempty" doc:"Exit error"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamFaultEvent.
func (e StreamFaultEvent) Type() uint32 { return TypeStreamFault }

// ConfigChangedEvent is published when a new stream configuration snapshot
// is installed. It never carries the stream key.
type ConfigChangedEvent struct {
	Source    string `json:"source" example:"api" doc:"Where the change came from: api or file"`
	Endpoint  string `json:"endpoint" example:"rtmp://a.rtmp.youtube.com/live2/ab****yz" doc:"Redacted publish endpoint"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConfigChangedEvent.
func (e ConfigChangedEvent) Type() uint32 { return TypeConfigChanged }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"session" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
