// Package notify delivers best-effort alerts and publishes watchdog
// events to RabbitMQ for fleet tooling. Nothing in this package is ever
// allowed to abort the watchdog loop; failures are logged and swallowed
// by the callers.
package notify

import "time"

// Severity grades an alert.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

// StateChangedEvent is published on every watchdog state transition.
type StateChangedEvent struct {
	EventID       string    `json:"eventId"`
	Timestamp     time.Time `json:"timestamp"`
	Host          string    `json:"host"`
	PreviousState string    `json:"previousState"`
	CurrentState  string    `json:"currentState"`
	Reason        string    `json:"reason,omitempty"`
}

// AlertRaisedEvent is published when the ladder is exhausted and a human
// has to step in.
type AlertRaisedEvent struct {
	EventID   string    `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
}

// RemediationAttemptedEvent is published after each tier invocation.
type RemediationAttemptedEvent struct {
	EventID   string    `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host"`
	Tier      int       `json:"tier"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Detail    string    `json:"detail,omitempty"`
}
