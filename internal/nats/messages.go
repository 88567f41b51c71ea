package nats

import (
	"github.com/goccy/go-json"
)

// DefaultPrefix is the root of every camstream subject.
const DefaultPrefix = "camstream"

// Subjects builds the subject names for one node.
type Subjects struct {
	Prefix string
	Node   string
}

func (s Subjects) base() string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if s.Node == "" {
		return prefix
	}
	return prefix + "." + s.Node
}

// State is where session state changes are published.
func (s Subjects) State() string { return s.base() + ".state" }

// Fault is where pipeline faults are published.
func (s Subjects) Fault() string { return s.base() + ".fault" }

// Control receives start/stop requests and replies with a ControlReply.
func (s Subjects) Control() string { return s.base() + ".control" }

// StateMessage represents a session state change sent over NATS.
type StateMessage struct {
	Node      string `json:"node"`
	Timestamp string `json:"timestamp"`
	State     string `json:"state"`
	Streaming bool   `json:"streaming"`
	StartTime string `json:"start_time,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Marshal serializes the message to JSON.
func (m StateMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// FaultMessage reports a capture or publish process that died while streaming.
type FaultMessage struct {
	Node      string `json:"node"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
	ExitCode  int    `json:"exit_code"`
	Error     string `json:"error,omitempty"`
}

// Marshal serializes the message to JSON.
func (m FaultMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// ControlMessage asks the node to start or stop streaming.
type ControlMessage struct {
	Action string `json:"action"` // start, stop
	Reason string `json:"reason,omitempty"`
}

// Marshal serializes the message to JSON.
func (m ControlMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// ControlReply is the response to a ControlMessage.
type ControlReply struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Marshal serializes the message to JSON.
func (m ControlReply) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalState deserializes a StateMessage from JSON.
func UnmarshalState(data []byte) (StateMessage, error) {
	var m StateMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalFault deserializes a FaultMessage from JSON.
func UnmarshalFault(data []byte) (FaultMessage, error) {
	var m FaultMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalControl deserializes a ControlMessage from JSON.
func UnmarshalControl(data []byte) (ControlMessage, error) {
	var m ControlMessage
	err := json.Unmarshal(data, &m)
	return m, err
}

// UnmarshalReply deserializes a ControlReply from JSON.
func UnmarshalReply(data []byte) (ControlReply, error) {
	var m ControlReply
	err := json.Unmarshal(data, &m)
	return m, err
}
