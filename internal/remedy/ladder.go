// Package remedy defines the escalation ladder: an ordered, immutable
// sequence of increasingly invasive remediation tiers.
package remedy

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Action is one opaque remediation capability. Invoke must bound its own
// execution time and report whether it believes it succeeded; callers
// re-verify regardless, since self-reported success proves nothing about
// the externally observed symptom.
type Action interface {
	Name() string
	Invoke(ctx context.Context) (success bool, detail string)
}

// Tier pairs one action with the settle time to wait after invoking it
// before re-probing.
type Tier struct {
	Ordinal int
	Action  Action
	Settle  time.Duration
}

// Ladder is the fixed escalation order. Tiers are defined once at
// construction and never skipped, reordered, or mutated; the last tier is
// terminal.
type Ladder struct {
	tiers []Tier
}

// NewLadder builds a ladder from tiers in escalation order. At least one
// tier is required and each settle duration must be positive.
func NewLadder(tiers ...Tier) (*Ladder, error) {
	if len(tiers) == 0 {
		return nil, errors.New("remedy: ladder must have at least one tier")
	}
	owned := make([]Tier, len(tiers))
	for i, t := range tiers {
		if t.Action == nil {
			return nil, fmt.Errorf("remedy: tier %d has no action", i)
		}
		if t.Settle <= 0 {
			return nil, fmt.Errorf("remedy: tier %d (%s) settle duration must be positive", i, t.Action.Name())
		}
		t.Ordinal = i
		owned[i] = t
	}
	return &Ladder{tiers: owned}, nil
}

// Len returns the number of tiers.
func (l *Ladder) Len() int { return len(l.tiers) }

// Tier returns the tier at ordinal i.
func (l *Ladder) Tier(i int) Tier { return l.tiers[i] }

// Last reports whether ordinal i is the terminal tier.
func (l *Ladder) Last(i int) bool { return i == len(l.tiers)-1 }
