package watchdog

import (
	"fmt"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/types"
)

// Phase is the watchdog's position in the escalation state machine.
type Phase int

const (
	PhaseHealthy Phase = iota
	PhaseDegraded
	PhaseEscalating
	PhaseCoolingDown
)

func (p Phase) String() string {
	switch p {
	case PhaseHealthy:
		return "healthy"
	case PhaseDegraded:
		return "degraded"
	case PhaseEscalating:
		return "escalating"
	case PhaseCoolingDown:
		return "cooling-down"
	default:
		return "unknown"
	}
}

// TierNone marks that no escalation episode is in progress.
const TierNone = -1

// State is the watchdog's mutable episode record. It has exactly one
// owner, the loop goroutine, and is never shared; the status cache gets
// copies. It is never persisted, so a process restart starts a fresh
// episode.
type State struct {
	Phase               Phase
	ConsecutiveFailures int
	CurrentTier         int
	CooldownUntil       time.Time
}

// NewState returns the clean starting state.
func NewState() State {
	return State{Phase: PhaseHealthy, CurrentTier: TierNone}
}

// Health maps the phase onto the coarse fleet-level verdict.
func (s State) Health() types.HealthStatus {
	switch s.Phase {
	case PhaseHealthy:
		return types.HealthHealthy
	case PhaseDegraded:
		return types.HealthDegraded
	case PhaseEscalating, PhaseCoolingDown:
		return types.HealthUnhealthy
	default:
		return types.HealthUnknown
	}
}

func (s State) String() string {
	switch s.Phase {
	case PhaseDegraded:
		return fmt.Sprintf("degraded(%d)", s.ConsecutiveFailures)
	case PhaseEscalating:
		return fmt.Sprintf("escalating(tier=%d)", s.CurrentTier)
	case PhaseCoolingDown:
		return fmt.Sprintf("cooling-down(until=%s)", s.CooldownUntil.Format(time.RFC3339))
	default:
		return s.Phase.String()
	}
}

// Episode summarizes one escalation run, from crossing the failure
// threshold to recovery, exhaustion, or shutdown.
type Episode struct {
	ID             int64     `json:"id,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	EndedAt        time.Time `json:"endedAt"`
	TriggerReasons []string  `json:"triggerReasons"`
	TiersAttempted int       `json:"tiersAttempted"`
	RecoveredTier  int       `json:"recoveredTier"` // TierNone when not recovered
	Outcome        string    `json:"outcome"`
	Notified       bool      `json:"notified"`
}

// Episode outcomes.
const (
	OutcomeRecovered = "recovered"
	OutcomeExhausted = "exhausted"
	OutcomeAborted   = "aborted" // shutdown mid-episode
)
