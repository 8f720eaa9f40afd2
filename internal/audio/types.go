// Package audio wraps the audio routing daemon's control CLI behind typed
// queries. All text parsing happens here; callers only ever see structs
// and enums.
package audio

import "time"

// NullSinkName is the placeholder sink the daemon falls back to when no
// real output is usable. Seeing it as the default sink means routing is
// broken even though the daemon itself is up.
const NullSinkName = "auto_null"

// SinkState represents the runtime state of one output endpoint.
type SinkState int

const (
	SinkUnknown   SinkState = iota
	SinkRunning             // actively carrying a stream
	SinkIdle                // available, no stream attached
	SinkSuspended           // powered down by the daemon
	SinkError               // endpoint reported an explicit error
)

func (s SinkState) String() string {
	switch s {
	case SinkRunning:
		return "running"
	case SinkIdle:
		return "idle"
	case SinkSuspended:
		return "suspended"
	case SinkError:
		return "error"
	default:
		return "unknown"
	}
}

// Sink is one audio output endpoint as reported by the daemon.
type Sink struct {
	Index       uint32
	Name        string
	Description string
	State       SinkState
	Driver      string
	Bus         string // "usb", "pci", "bluetooth", or empty
}

// USB reports whether the sink is backed by a USB device. USB endpoints
// are the ones that silently wedge, so they get an extra liveness query.
func (s Sink) USB() bool {
	return s.Bus == "usb"
}

// ServerInfo is the daemon-level state returned by an info query.
type ServerInfo struct {
	ServerName      string
	ServerVersion   string
	DefaultSinkName string
}

// LogEntry is one error-priority line from the daemon's journal.
type LogEntry struct {
	Timestamp time.Time
	Unit      string
	Message   string
	Priority  int
}
