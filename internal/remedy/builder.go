package remedy

import (
	"fmt"
	"log/slog"
	"time"
)

// TierSpec is the declarative form of one tier, as it appears in the
// config file.
type TierSpec struct {
	Action  string
	Settle  time.Duration
	Timeout time.Duration
}

// BuildLadder resolves tier specs into a concrete ladder. Known action
// names are restart-services, kill-processes, and rebuild; anything else
// is a construction-time error.
func BuildLadder(specs []TierSpec, processes, services []string, logger *slog.Logger) (*Ladder, error) {
	tiers := make([]Tier, 0, len(specs))
	for i, spec := range specs {
		var action Action
		switch spec.Action {
		case "restart-services":
			action = NewServiceRestart(services, spec.Timeout, logger)
		case "kill-processes":
			action = NewProcessKill(processes, services, spec.Timeout, logger)
		case "rebuild":
			action = NewRebuild(processes, services, spec.Timeout, logger)
		default:
			return nil, fmt.Errorf("remedy: tier %d: unknown action %q", i, spec.Action)
		}
		tiers = append(tiers, Tier{Action: action, Settle: spec.Settle})
	}
	return NewLadder(tiers...)
}
