// Package watchdog drives the probe/escalate/cooldown state machine.
//
// One goroutine owns the loop and all of its state. Probes and
// remediation actions run synchronously inside it, each under its own
// bound, so at most one collaborator call is ever in flight and no
// locking of the state is needed. The only way the loop stops is
// cancellation of its context.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/probe"
	"github.com/pulsewatch/pulsewatch/internal/remedy"
	"github.com/pulsewatch/pulsewatch/internal/types"
)

// Prober produces one health verdict per call.
type Prober interface {
	Probe(ctx context.Context) probe.Result
}

// EventPublisher receives one structured event per state transition and
// remediation attempt. Satisfied by *notify.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// HealthReporter pushes the coarse verdict to a fleet registry.
// Satisfied by *consul.Reporter.
type HealthReporter interface {
	Report(ctx context.Context, status types.HealthStatus, output string) error
}

// EpisodeRecorder persists finished escalation episodes.
type EpisodeRecorder interface {
	Record(ctx context.Context, ep Episode) error
}

// Deps are the loop's collaborators. Prober, Ladder, and Sink are
// required; the rest are optional and skipped when nil.
type Deps struct {
	Prober   Prober
	Ladder   *remedy.Ladder
	Sink     notify.Sink
	Events   EventPublisher
	Reporter HealthReporter
	Journal  EpisodeRecorder
	Cache    *StatusCache
}

// Loop is the watchdog scheduler.
type Loop struct {
	prober   Prober
	ladder   *remedy.Ladder
	sink     notify.Sink
	events   EventPublisher
	reporter HealthReporter
	journal  EpisodeRecorder
	cache    *StatusCache
	config   Config
	logger   *slog.Logger

	state State

	now   func() time.Time                           // for testing
	sleep func(context.Context, time.Duration) error // for testing
}

// NewLoop validates the configuration and wires the loop. A bad config
// or missing required collaborator is the one fatal error class in this
// system: the loop refuses to exist rather than run misconfigured.
func NewLoop(config Config, deps Deps, logger *slog.Logger) (*Loop, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if deps.Prober == nil {
		return nil, fmt.Errorf("watchdog: prober is required")
	}
	if deps.Ladder == nil {
		return nil, fmt.Errorf("watchdog: remediation ladder is required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("watchdog: notification sink is required")
	}
	cache := deps.Cache
	if cache == nil {
		cache = NewStatusCache()
	}
	return &Loop{
		prober:   deps.Prober,
		ladder:   deps.Ladder,
		sink:     deps.Sink,
		events:   deps.Events,
		reporter: deps.Reporter,
		journal:  deps.Journal,
		cache:    cache,
		config:   config,
		logger:   logger,
		state:    NewState(),
		now:      time.Now,
		sleep:    sleepCtx,
	}, nil
}

// Status returns the cache the loop publishes snapshots into.
func (l *Loop) Status() *StatusCache { return l.cache }

// Run drives the state machine until ctx is cancelled. It probes once
// immediately, then on every tick.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("watchdog starting",
		"probe_interval", l.config.ProbeInterval,
		"failure_threshold", l.config.FailureThreshold,
		"ladder_tiers", l.ladder.Len(),
		"cooldown", l.config.CooldownDuration,
	)

	ticker := time.NewTicker(l.config.ProbeInterval)
	defer ticker.Stop()

	l.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("watchdog stopping")
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs one scheduler step.
func (l *Loop) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if l.state.Phase == PhaseCoolingDown {
		if l.now().Before(l.state.CooldownUntil) {
			// Quiescent: no probing, no escalation.
			return
		}
		// Cooldown elapsed; the next probe is evaluated exactly as if
		// the watchdog had just started.
		prev := l.state
		l.state = NewState()
		l.transition(ctx, prev, "cooldown elapsed")
	}

	res := l.runProbe(ctx)

	if res.Healthy {
		if l.state.Phase != PhaseHealthy || l.state.ConsecutiveFailures != 0 {
			prev := l.state
			l.state = NewState()
			l.transition(ctx, prev, "probe healthy")
		}
		l.report(ctx, res)
		return
	}

	l.state.ConsecutiveFailures++
	if l.state.ConsecutiveFailures < l.config.FailureThreshold {
		prev := l.state
		l.state.Phase = PhaseDegraded
		l.state.CurrentTier = TierNone
		l.transition(ctx, prev, res.Summary())
		l.report(ctx, res)
		return
	}

	l.escalate(ctx, res)
}

// escalate walks the ladder in order, re-probing after every tier, until
// the subsystem recovers, the ladder is exhausted, or shutdown.
func (l *Loop) escalate(ctx context.Context, trigger probe.Result) {
	ep := Episode{
		StartedAt:      l.now().UTC(),
		TriggerReasons: trigger.Reasons,
		RecoveredTier:  TierNone,
		Outcome:        OutcomeAborted,
	}
	defer func() {
		ep.EndedAt = l.now().UTC()
		l.record(ctx, ep)
	}()

	for tier := 0; tier < l.ladder.Len(); tier++ {
		if ctx.Err() != nil {
			return
		}

		t := l.ladder.Tier(tier)

		prev := l.state
		l.state.Phase = PhaseEscalating
		l.state.CurrentTier = tier
		l.transition(ctx, prev, fmt.Sprintf("invoking tier %d (%s)", tier, t.Action.Name()))

		ok, detail := l.invokeBounded(ctx, t)
		ep.TiersAttempted = tier + 1

		// The action's own verdict never decides anything: a failed or
		// hung action is logged and we re-probe regardless, because
		// self-reported success proves nothing about the symptom.
		if ok {
			l.logger.Info("remediation action completed", "tier", tier, "action", t.Action.Name(), "detail", detail)
		} else {
			l.logger.Warn("remediation action failed", "tier", tier, "action", t.Action.Name(), "detail", detail)
		}
		l.publish(ctx, notify.RemediationAttemptedEvent{
			Timestamp: l.now().UTC(),
			Tier:      tier,
			Action:    t.Action.Name(),
			Success:   ok,
			Detail:    detail,
		})

		if err := l.sleep(ctx, t.Settle); err != nil {
			return // shutdown during settle
		}

		res := l.runProbe(ctx)
		if res.Healthy {
			prev := l.state
			l.state = NewState()
			ep.Outcome = OutcomeRecovered
			ep.RecoveredTier = tier
			l.transition(ctx, prev, fmt.Sprintf("recovered after tier %d (%s)", tier, t.Action.Name()))
			l.report(ctx, res)
			return
		}
		l.report(ctx, res)
		trigger = res // carry the freshest diagnostics into the alert
	}

	// Ladder exhausted and still unhealthy: alert exactly once, then go
	// quiet. Resetting the counter here is deliberate anti-flapping, not
	// a bug: without it every following tick would replay the identical
	// ladder and alert again while a human has not yet intervened.
	msg := fmt.Sprintf("audio subsystem still unhealthy after %d remediation tier(s): %s",
		l.ladder.Len(), trigger.Summary())
	if err := l.sink.Notify(ctx, notify.SeverityCritical, msg); err != nil {
		l.logger.Error("alert delivery failed", "error", err)
	}
	ep.Outcome = OutcomeExhausted
	ep.Notified = true

	prev := l.state
	if l.config.ResetOnExhaustion {
		l.state = NewState()
		l.state.Phase = PhaseCoolingDown
		l.state.CooldownUntil = l.now().Add(l.config.CooldownDuration)
		l.transition(ctx, prev, "ladder exhausted, cooling down")
	} else {
		l.state.Phase = PhaseDegraded
		l.state.CurrentTier = TierNone
		l.transition(ctx, prev, "ladder exhausted, re-escalating next tick")
	}
}

// invokeBounded wraps a tier invocation in the loop's own timeout. The
// action bounds itself too; this guarantees a hung action can never
// stall the loop.
func (l *Loop) invokeBounded(ctx context.Context, t remedy.Tier) (bool, string) {
	ictx, cancel := context.WithTimeout(ctx, l.config.ActionTimeout)
	defer cancel()

	type outcome struct {
		ok     bool
		detail string
	}
	done := make(chan outcome, 1)
	go func() {
		ok, detail := t.Action.Invoke(ictx)
		done <- outcome{ok, detail}
	}()

	select {
	case o := <-done:
		return o.ok, o.detail
	case <-ictx.Done():
		return false, "action did not return within " + l.config.ActionTimeout.String()
	}
}

func (l *Loop) runProbe(ctx context.Context) probe.Result {
	res := l.prober.Probe(ctx)
	l.cache.SetProbe(res)
	return res
}

// transition records a state change: structured log, status cache, and
// the optional event stream. Called after l.state has been mutated.
func (l *Loop) transition(ctx context.Context, prev State, reason string) {
	l.logger.Info("state transition",
		"from", prev.String(),
		"to", l.state.String(),
		"reason", reason,
	)
	l.cache.SetState(l.state)
	l.publish(ctx, notify.StateChangedEvent{
		Timestamp:     l.now().UTC(),
		PreviousState: prev.String(),
		CurrentState:  l.state.String(),
		Reason:        reason,
	})
}

func (l *Loop) publish(ctx context.Context, event any) {
	if l.events == nil {
		return
	}
	if err := l.events.Publish(ctx, event); err != nil {
		l.logger.Warn("event publish failed", "error", err)
	}
}

func (l *Loop) report(ctx context.Context, res probe.Result) {
	if l.reporter == nil {
		return
	}
	if err := l.reporter.Report(ctx, l.state.Health(), res.Summary()); err != nil {
		l.logger.Warn("fleet health report failed", "error", err)
	}
}

func (l *Loop) record(ctx context.Context, ep Episode) {
	if l.journal == nil {
		return
	}
	if err := l.journal.Record(ctx, ep); err != nil {
		l.logger.Warn("episode journal write failed", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
