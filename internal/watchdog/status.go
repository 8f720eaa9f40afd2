package watchdog

import (
	"sync"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/probe"
)

// Snapshot is a point-in-time copy of the watchdog's state plus the last
// probe verdict, as served by the status API.
type Snapshot struct {
	State               string        `json:"state"`
	Health              string        `json:"health"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	CurrentTier         int           `json:"currentTier"`
	CooldownUntil       *time.Time    `json:"cooldownUntil,omitempty"`
	LastProbe           *probe.Result `json:"lastProbe,omitempty"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// StatusCache is a thread-safe snapshot of the loop's state for readers
// outside the loop goroutine. The loop writes, the HTTP API reads; the
// authoritative State itself never leaves the loop.
type StatusCache struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStatusCache creates a cache holding the clean starting state.
func NewStatusCache() *StatusCache {
	c := &StatusCache{}
	c.SetState(NewState())
	return c
}

// SetState records a copy of the loop state.
func (c *StatusCache) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snap.State = s.String()
	c.snap.Health = s.Health().String()
	c.snap.ConsecutiveFailures = s.ConsecutiveFailures
	c.snap.CurrentTier = s.CurrentTier
	if s.CooldownUntil.IsZero() {
		c.snap.CooldownUntil = nil
	} else {
		t := s.CooldownUntil
		c.snap.CooldownUntil = &t
	}
	c.snap.UpdatedAt = time.Now().UTC()
}

// SetProbe records the latest probe verdict.
func (c *StatusCache) SetProbe(res probe.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := res
	c.snap.LastProbe = &r
	c.snap.UpdatedAt = time.Now().UTC()
}

// Snapshot returns a copy of the current snapshot.
func (c *StatusCache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}
