package watchdog

import (
	"errors"
	"time"
)

// Config holds the loop's runtime configuration.
type Config struct {
	// ProbeInterval is the scheduler tick.
	ProbeInterval time.Duration
	// FailureThreshold is the consecutive-failure count that triggers
	// tier 0.
	FailureThreshold int
	// CooldownDuration is the quiescent period entered after ladder
	// exhaustion. While a fault persists, at most one alert goes out per
	// such window.
	CooldownDuration time.Duration
	// ActionTimeout is the loop's own outer bound around a tier
	// invocation. Actions bound themselves too; this is the guarantee
	// that a hung action can never stall the loop.
	ActionTimeout time.Duration
	// ResetOnExhaustion selects what happens when the last tier fails:
	// true resets the failure counter and enters cooldown (one alert per
	// window, the anti-flapping behavior); false keeps the counter at
	// the threshold so the ladder re-runs on the next tick, alerting on
	// every exhausted run, until the subsystem recovers.
	ResetOnExhaustion bool
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		ProbeInterval:     30 * time.Second,
		FailureThreshold:  3,
		CooldownDuration:  10 * time.Minute,
		ActionTimeout:     90 * time.Second,
		ResetOnExhaustion: true,
	}
}

// Validate checks the configuration. Any violation is fatal at
// construction time; the loop refuses to start on a bad config.
func (c Config) Validate() error {
	var err error
	if c.ProbeInterval <= 0 {
		err = errors.Join(err, errors.New("watchdog: probe interval must be positive"))
	}
	if c.FailureThreshold <= 0 {
		err = errors.Join(err, errors.New("watchdog: failure threshold must be positive"))
	}
	if c.CooldownDuration <= 0 {
		err = errors.Join(err, errors.New("watchdog: cooldown duration must be positive"))
	}
	if c.ActionTimeout <= 0 {
		err = errors.Join(err, errors.New("watchdog: action timeout must be positive"))
	}
	return err
}
