package watchdog

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/probe"
	"github.com/pulsewatch/pulsewatch/internal/remedy"
)

// scriptedProber replays a fixed sequence of verdicts, then stays
// healthy.
type scriptedProber struct {
	script []bool
	calls  int
}

func (p *scriptedProber) Probe(context.Context) probe.Result {
	healthy := true
	if p.calls < len(p.script) {
		healthy = p.script[p.calls]
	}
	p.calls++
	if healthy {
		return probe.Result{Healthy: true}
	}
	return probe.Result{Healthy: false, Reasons: []string{"scripted failure"}}
}

// scriptedAction records its invocations into a shared order slice.
type scriptedAction struct {
	name        string
	succeed     bool
	hang        bool
	invocations int
	order       *[]string
}

func (a *scriptedAction) Name() string { return a.name }

func (a *scriptedAction) Invoke(ctx context.Context) (bool, string) {
	a.invocations++
	if a.order != nil {
		*a.order = append(*a.order, a.name)
	}
	if a.hang {
		<-ctx.Done()
		return false, "hung"
	}
	return a.succeed, "done"
}

type countingSink struct {
	calls    int
	severity notify.Severity
	message  string
}

func (s *countingSink) Notify(_ context.Context, severity notify.Severity, message string) error {
	s.calls++
	s.severity = severity
	s.message = message
	return nil
}

type memJournal struct {
	episodes []Episode
}

func (j *memJournal) Record(_ context.Context, ep Episode) error {
	j.episodes = append(j.episodes, ep)
	return nil
}

type fixture struct {
	loop    *Loop
	prober  *scriptedProber
	sink    *countingSink
	journal *memJournal
	clock   *time.Time
}

func newFixture(t *testing.T, config Config, script []bool, actions ...*scriptedAction) *fixture {
	t.Helper()

	if len(actions) == 0 {
		actions = []*scriptedAction{{name: "restart", succeed: true}}
	}
	tiers := make([]remedy.Tier, len(actions))
	for i, a := range actions {
		tiers[i] = remedy.Tier{Action: a, Settle: time.Millisecond}
	}
	ladder, err := remedy.NewLadder(tiers...)
	if err != nil {
		t.Fatalf("NewLadder: %v", err)
	}

	prober := &scriptedProber{script: script}
	sink := &countingSink{}
	journal := &memJournal{}

	loop, err := NewLoop(config, Deps{
		Prober:  prober,
		Ladder:  ladder,
		Sink:    sink,
		Journal: journal,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}

	clock := time.Now()
	loop.now = func() time.Time { return clock }
	loop.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	return &fixture{loop: loop, prober: prober, sink: sink, journal: journal, clock: &clock}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ActionTimeout = 100 * time.Millisecond
	return cfg
}

func TestLoop_FailureCounterTracksTrailingRun(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 3
	f := newFixture(t, cfg, []bool{false, true, false, false, true})
	ctx := context.Background()

	wantFailures := []int{1, 0, 1, 2, 0}
	for i, want := range wantFailures {
		f.loop.tick(ctx)
		if got := f.loop.state.ConsecutiveFailures; got != want {
			t.Errorf("after tick %d: consecutive failures = %d, want %d", i+1, got, want)
		}
		if f.loop.state.CurrentTier != TierNone {
			t.Errorf("after tick %d: tier must stay unset below threshold", i+1)
		}
	}
	if f.sink.calls != 0 {
		t.Errorf("no escalation means no alerts, got %d", f.sink.calls)
	}
}

func TestLoop_SingleFailureNeverEscalates(t *testing.T) {
	// One isolated failure with threshold 3 must never reach the ladder.
	cfg := testConfig()
	cfg.FailureThreshold = 3
	tier0 := &scriptedAction{name: "restart", succeed: true}
	f := newFixture(t, cfg, []bool{false, true}, tier0)
	ctx := context.Background()

	f.loop.tick(ctx)
	f.loop.tick(ctx)

	if tier0.invocations != 0 {
		t.Fatalf("tier 0 invoked %d times, want 0", tier0.invocations)
	}
	if f.loop.state.Phase != PhaseHealthy || f.loop.state.ConsecutiveFailures != 0 {
		t.Fatalf("expected clean healthy state, got %s", f.loop.state)
	}
}

func TestLoop_MidLadderRecovery(t *testing.T) {
	// threshold=3; three failing ticks trigger tier 0; re-probe fails, so
	// tier 1 runs; its re-probe is healthy.
	cfg := testConfig()
	cfg.FailureThreshold = 3
	var order []string
	tier0 := &scriptedAction{name: "restart-services", succeed: true, order: &order}
	tier1 := &scriptedAction{name: "kill-processes", succeed: true, order: &order}
	f := newFixture(t, cfg, []bool{false, false, false, false, true}, tier0, tier1)
	ctx := context.Background()

	f.loop.tick(ctx)
	f.loop.tick(ctx)
	f.loop.tick(ctx) // threshold reached, escalation runs inline

	if tier0.invocations != 1 || tier1.invocations != 1 {
		t.Fatalf("tier invocations = %d/%d, want 1/1", tier0.invocations, tier1.invocations)
	}
	if len(order) != 2 || order[0] != "restart-services" || order[1] != "kill-processes" {
		t.Fatalf("tiers out of order: %v", order)
	}
	if f.loop.state.Phase != PhaseHealthy || f.loop.state.ConsecutiveFailures != 0 {
		t.Fatalf("expected healthy reset, got %s", f.loop.state)
	}
	if f.loop.state.CurrentTier != TierNone {
		t.Fatal("tier must be cleared on recovery")
	}
	if f.sink.calls != 0 {
		t.Fatalf("mid-ladder recovery must not alert, got %d alerts", f.sink.calls)
	}

	if len(f.journal.episodes) != 1 {
		t.Fatalf("expected 1 recorded episode, got %d", len(f.journal.episodes))
	}
	ep := f.journal.episodes[0]
	if ep.Outcome != OutcomeRecovered || ep.RecoveredTier != 1 || ep.TiersAttempted != 2 || ep.Notified {
		t.Fatalf("unexpected episode %+v", ep)
	}
}

func TestLoop_ExhaustionAlertsOnceAndCoolsDown(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 3
	cfg.CooldownDuration = 10 * time.Minute
	tiers := []*scriptedAction{
		{name: "restart-services", succeed: true},
		{name: "kill-processes", succeed: true},
		{name: "rebuild", succeed: true},
	}
	// Every probe fails: 3 ticks plus 3 re-probes.
	f := newFixture(t, cfg, []bool{false, false, false, false, false, false}, tiers...)
	ctx := context.Background()

	f.loop.tick(ctx)
	f.loop.tick(ctx)
	f.loop.tick(ctx)

	if f.sink.calls != 1 {
		t.Fatalf("exhaustion must alert exactly once, got %d", f.sink.calls)
	}
	if f.sink.severity != notify.SeverityCritical {
		t.Errorf("alert severity = %v, want critical", f.sink.severity)
	}
	if !strings.Contains(f.sink.message, "3 remediation tier(s)") {
		t.Errorf("alert message %q lacks diagnostic summary", f.sink.message)
	}
	if f.loop.state.Phase != PhaseCoolingDown {
		t.Fatalf("expected cooling-down, got %s", f.loop.state)
	}
	if f.loop.state.ConsecutiveFailures != 0 {
		t.Fatal("failure counter must reset on exhaustion")
	}
	wantUntil := f.clock.Add(cfg.CooldownDuration)
	if !f.loop.state.CooldownUntil.Equal(wantUntil) {
		t.Fatalf("cooldown until %v, want %v", f.loop.state.CooldownUntil, wantUntil)
	}

	// Ticks during cooldown are no-ops: no probe, no tiers, no alerts.
	probes := f.prober.calls
	f.loop.tick(ctx)
	f.loop.tick(ctx)
	if f.prober.calls != probes {
		t.Fatal("cooldown ticks must not probe")
	}
	for _, a := range tiers {
		if a.invocations != 1 {
			t.Fatalf("tier %s invoked %d times, want 1", a.name, a.invocations)
		}
	}
	if f.sink.calls != 1 {
		t.Fatalf("cooldown must suppress further alerts, got %d", f.sink.calls)
	}

	ep := f.journal.episodes[0]
	if ep.Outcome != OutcomeExhausted || !ep.Notified || ep.TiersAttempted != 3 {
		t.Fatalf("unexpected episode %+v", ep)
	}
}

func TestLoop_CooldownExpiryStartsFresh(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 1
	cfg.CooldownDuration = time.Minute
	tier0 := &scriptedAction{name: "restart", succeed: true}
	// tick1 fails, re-probe fails -> exhausted -> cooldown; after expiry
	// the next failing probe counts from zero again.
	f := newFixture(t, cfg, []bool{false, false, false, false, true}, tier0)
	ctx := context.Background()

	f.loop.tick(ctx)
	if f.loop.state.Phase != PhaseCoolingDown {
		t.Fatalf("expected cooling-down, got %s", f.loop.state)
	}

	*f.clock = f.clock.Add(2 * time.Minute)
	f.loop.tick(ctx) // cooldown elapsed; fresh failing run escalates again

	if f.loop.state.Phase != PhaseCoolingDown {
		t.Fatalf("expected second cooldown, got %s", f.loop.state)
	}
	if f.sink.calls != 2 {
		t.Fatalf("a new episode after cooldown may alert again, got %d alerts", f.sink.calls)
	}

	*f.clock = f.clock.Add(2 * time.Minute)
	f.loop.tick(ctx) // healthy probe after second cooldown
	if f.loop.state.Phase != PhaseHealthy || f.loop.state.ConsecutiveFailures != 0 {
		t.Fatalf("expected fresh healthy state, got %s", f.loop.state)
	}
}

func TestLoop_ActionFailureStillReprobesAndEscalates(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 1
	tier0 := &scriptedAction{name: "restart", succeed: false} // reports failure
	tier1 := &scriptedAction{name: "kill", succeed: true}
	// tick fails -> tier 0 (fails) -> re-probe fails -> tier 1 -> re-probe healthy.
	f := newFixture(t, cfg, []bool{false, false, true}, tier0, tier1)

	f.loop.tick(context.Background())

	if tier0.invocations != 1 || tier1.invocations != 1 {
		t.Fatalf("tier invocations = %d/%d, want 1/1", tier0.invocations, tier1.invocations)
	}
	if f.prober.calls != 3 {
		t.Fatalf("expected mandatory re-probe after each tier, got %d probes", f.prober.calls)
	}
	if f.loop.state.Phase != PhaseHealthy {
		t.Fatalf("expected recovery, got %s", f.loop.state)
	}
}

func TestLoop_HungActionIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 1
	cfg.ActionTimeout = 20 * time.Millisecond
	tier0 := &scriptedAction{name: "hung", hang: true}
	f := newFixture(t, cfg, []bool{false, true}, tier0)

	start := time.Now()
	f.loop.tick(context.Background())
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Fatalf("loop stalled %v on a hung action", elapsed)
	}
	if f.prober.calls != 2 {
		t.Fatalf("re-probe must still happen after a hung action, got %d probes", f.prober.calls)
	}
	if f.loop.state.Phase != PhaseHealthy {
		t.Fatalf("expected recovery after hung tier, got %s", f.loop.state)
	}
}

func TestLoop_KeepEscalatingMode(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 1
	cfg.ResetOnExhaustion = false
	tier0 := &scriptedAction{name: "restart", succeed: true}
	f := newFixture(t, cfg, []bool{false, false, false, false}, tier0)
	ctx := context.Background()

	f.loop.tick(ctx) // episode 1: exhausted, no cooldown
	if f.loop.state.Phase != PhaseDegraded {
		t.Fatalf("expected degraded between runs, got %s", f.loop.state)
	}
	if f.loop.state.ConsecutiveFailures == 0 {
		t.Fatal("keep-escalating mode must not reset the counter")
	}

	f.loop.tick(ctx) // episode 2 immediately

	if tier0.invocations != 2 {
		t.Fatalf("ladder must re-run on the next tick, got %d invocations", tier0.invocations)
	}
	if f.sink.calls != 2 {
		t.Fatalf("each exhausted run alerts in keep-escalating mode, got %d", f.sink.calls)
	}
}

func TestLoop_ShutdownDuringSettleAbortsEpisode(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 1
	tier0 := &scriptedAction{name: "restart", succeed: true}
	tier1 := &scriptedAction{name: "kill", succeed: true}
	f := newFixture(t, cfg, []bool{false, false}, tier0, tier1)

	ctx, cancel := context.WithCancel(context.Background())
	f.loop.sleep = func(sctx context.Context, _ time.Duration) error {
		cancel() // shutdown arrives while settling after tier 0
		return sctx.Err()
	}

	f.loop.tick(ctx)

	if tier0.invocations != 1 {
		t.Fatalf("tier 0 invocations = %d, want 1", tier0.invocations)
	}
	if tier1.invocations != 0 {
		t.Fatal("no further actions may run after shutdown")
	}
	if f.sink.calls != 0 {
		t.Fatal("aborted episode must not alert")
	}
	if len(f.journal.episodes) != 1 || f.journal.episodes[0].Outcome != OutcomeAborted {
		t.Fatalf("expected aborted episode, got %+v", f.journal.episodes)
	}
}

func TestNewLoop_Validation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ladder, _ := remedy.NewLadder(remedy.Tier{Action: &scriptedAction{name: "a", succeed: true}, Settle: time.Second})
	deps := Deps{Prober: &scriptedProber{}, Ladder: ladder, Sink: &countingSink{}}

	bad := DefaultConfig()
	bad.FailureThreshold = 0
	if _, err := NewLoop(bad, deps, logger); err == nil {
		t.Fatal("expected error for non-positive threshold")
	}

	bad = DefaultConfig()
	bad.ProbeInterval = 0
	if _, err := NewLoop(bad, deps, logger); err == nil {
		t.Fatal("expected error for non-positive interval")
	}

	if _, err := NewLoop(DefaultConfig(), Deps{Ladder: ladder, Sink: &countingSink{}}, logger); err == nil {
		t.Fatal("expected error for missing prober")
	}
	if _, err := NewLoop(DefaultConfig(), Deps{Prober: &scriptedProber{}, Sink: &countingSink{}}, logger); err == nil {
		t.Fatal("expected error for missing ladder")
	}
	if _, err := NewLoop(DefaultConfig(), Deps{Prober: &scriptedProber{}, Ladder: ladder}, logger); err == nil {
		t.Fatal("expected error for missing sink")
	}

	if _, err := NewLoop(DefaultConfig(), deps, logger); err != nil {
		t.Fatalf("valid construction failed: %v", err)
	}
}

func TestStatusCache_TracksTransitions(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 2
	f := newFixture(t, cfg, []bool{false})

	f.loop.tick(context.Background())

	snap := f.loop.Status().Snapshot()
	if snap.State != "degraded(1)" {
		t.Errorf("snapshot state = %q, want degraded(1)", snap.State)
	}
	if snap.Health != "Degraded" {
		t.Errorf("snapshot health = %q, want Degraded", snap.Health)
	}
	if snap.LastProbe == nil || snap.LastProbe.Healthy {
		t.Error("snapshot must carry the failing probe result")
	}
}
