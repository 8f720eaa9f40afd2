// Package probe runs the fixed battery of health checks against the
// audio subsystem and aggregates the outcome into a single verdict.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/audio"
)

// Result is one probe verdict. Reasons is empty exactly when Healthy is
// true. The value is owned by the caller and never reused.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Reasons  []string  `json:"reasons,omitempty"`
	ProbedAt time.Time `json:"probedAt"`
}

// Summary renders the failing reasons for notifications and logs.
func (r Result) Summary() string {
	if r.Healthy {
		return "healthy"
	}
	return strings.Join(r.Reasons, "; ")
}

// Config holds the battery's tunables.
type Config struct {
	// CheckTimeout bounds each individual sub-check round trip.
	CheckTimeout time.Duration
	// MinSinks is the minimum number of live hardware endpoints.
	MinSinks int
	// RequiredProcesses must all be running for the subsystem to count
	// as alive.
	RequiredProcesses []string
	// LogWindow is the trailing window scanned for error entries.
	LogWindow time.Duration
}

// DefaultConfig returns the battery defaults.
func DefaultConfig() Config {
	return Config{
		CheckTimeout:      5 * time.Second,
		MinSinks:          1,
		RequiredProcesses: []string{"pipewire", "wireplumber", "pipewire-pulse"},
		LogWindow:         2 * time.Minute,
	}
}

// Validate checks the battery configuration.
func (c Config) Validate() error {
	var err error
	if c.CheckTimeout <= 0 {
		err = errors.Join(err, errors.New("probe: check timeout must be positive"))
	}
	if c.MinSinks < 0 {
		err = errors.Join(err, errors.New("probe: min sinks must not be negative"))
	}
	if c.LogWindow <= 0 {
		err = errors.Join(err, errors.New("probe: log window must be positive"))
	}
	return err
}

// Battery runs every check on each probe, never short-circuiting, so a
// single verdict carries the full diagnostic picture. Probing is strictly
// read-only.
type Battery struct {
	ctrl   audio.Controller
	config Config
	logger *slog.Logger

	now func() time.Time // for testing
}

// NewBattery creates a probe battery over the given controller.
func NewBattery(ctrl audio.Controller, config Config, logger *slog.Logger) (*Battery, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Battery{
		ctrl:   ctrl,
		config: config,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Probe runs the full battery. Total time is bounded by the sum of the
// sub-check timeouts; a hung subsystem comes back as unhealthy with a
// timeout reason rather than blocking.
func (b *Battery) Probe(ctx context.Context) Result {
	res := Result{Healthy: true, ProbedAt: b.now().UTC()}

	fail := func(reason string) {
		res.Healthy = false
		res.Reasons = append(res.Reasons, reason)
	}

	// 1. Daemon reachable at all. The remaining checks still run so the
	// verdict lists everything that is wrong, but sink-derived checks
	// degrade gracefully when the listing itself fails.
	if err := b.bounded(ctx, func(cctx context.Context) error {
		return b.ctrl.Ping(cctx)
	}); err != nil {
		fail(reasonFor("subsystem unreachable", err))
	}

	// 3. Required daemon processes alive.
	for _, proc := range b.config.RequiredProcesses {
		proc := proc
		var alive bool
		err := b.bounded(ctx, func(cctx context.Context) (qerr error) {
			alive, qerr = b.ctrl.ProcessAlive(cctx, proc)
			return qerr
		})
		switch {
		case err != nil:
			fail(reasonFor(fmt.Sprintf("process check for %s failed", proc), err))
		case !alive:
			fail(fmt.Sprintf("required process %s is not running", proc))
		}
	}

	// 2, 4, 6 all derive from the sink listing.
	var sinks []audio.Sink
	if err := b.bounded(ctx, func(cctx context.Context) (qerr error) {
		sinks, qerr = b.ctrl.Sinks(cctx)
		return qerr
	}); err != nil {
		fail(reasonFor("sink listing failed", err))
	} else {
		// 2. Enough live hardware endpoints.
		if len(sinks) < b.config.MinSinks {
			fail(fmt.Sprintf("only %d sink(s) present, need at least %d", len(sinks), b.config.MinSinks))
		}

		// 4. No endpoint in an explicit error state.
		for _, s := range sinks {
			if s.State == audio.SinkError {
				fail(fmt.Sprintf("sink %s is in error state", s.Name))
			}
		}

		// 6. USB endpoints answer a bounded liveness query. No answer is
		// its own failure mode, distinct from an explicit error state.
		for _, s := range sinks {
			if !s.USB() || s.State == audio.SinkError {
				continue
			}
			s := s
			if err := b.bounded(ctx, func(cctx context.Context) error {
				return b.ctrl.ProbeSink(cctx, s.Name)
			}); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					fail(fmt.Sprintf("usb sink %s did not respond to liveness query (timeout)", s.Name))
				} else {
					fail(fmt.Sprintf("usb sink %s liveness query failed: %v", s.Name, err))
				}
			}
		}
	}

	// 5. Default sink is a real endpoint, not the null placeholder.
	var info audio.ServerInfo
	if err := b.bounded(ctx, func(cctx context.Context) (qerr error) {
		info, qerr = b.ctrl.ServerInfo(cctx)
		return qerr
	}); err != nil {
		fail(reasonFor("server info query failed", err))
	} else {
		switch {
		case info.DefaultSinkName == "":
			fail("no default sink selected")
		case strings.HasPrefix(info.DefaultSinkName, audio.NullSinkName):
			fail(fmt.Sprintf("default sink is the null placeholder %s", info.DefaultSinkName))
		}
	}

	// 7. No recent error-priority entries in the daemon journal.
	var entries []audio.LogEntry
	if err := b.bounded(ctx, func(cctx context.Context) (qerr error) {
		entries, qerr = b.ctrl.RecentErrors(cctx, b.config.LogWindow)
		return qerr
	}); err != nil {
		fail(reasonFor("journal scan failed", err))
	} else if len(entries) > 0 {
		last := entries[len(entries)-1]
		fail(fmt.Sprintf("%d error entr(ies) in journal within %s, last: [%s] %s",
			len(entries), b.config.LogWindow, last.Unit, last.Message))
	}

	if !res.Healthy {
		b.logger.Debug("probe found subsystem unhealthy", "reasons", len(res.Reasons))
	}
	return res
}

// bounded runs one sub-check under its own timeout derived from ctx.
func (b *Battery) bounded(ctx context.Context, check func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, b.config.CheckTimeout)
	defer cancel()
	return check(cctx)
}

func reasonFor(what string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return what + ": timed out"
	}
	return fmt.Sprintf("%s: %v", what, err)
}
