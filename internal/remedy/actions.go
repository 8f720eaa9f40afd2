package remedy

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// execStep is one subprocess invocation inside an action.
type execStep struct {
	name string
	args []string
	// tolerateFailure marks steps whose non-zero exit must not fail the
	// action, e.g. pkill when nothing matched.
	tolerateFailure bool
}

// execAction runs a fixed sequence of subprocess steps under one shared
// deadline. Used for every concrete remediation tier.
type execAction struct {
	name    string
	steps   []execStep
	timeout time.Duration
	logger  *slog.Logger
}

func (a *execAction) Name() string { return a.name }

func (a *execAction) Invoke(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var details []string
	for _, step := range a.steps {
		cmd := exec.CommandContext(ctx, step.name, step.args...)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		err := cmd.Run()
		switch {
		case ctx.Err() != nil:
			detail := fmt.Sprintf("%s: timed out", step.name)
			a.logger.Warn("remediation step timed out", "action", a.name, "step", step.name)
			return false, strings.Join(append(details, detail), "; ")
		case err != nil && !step.tolerateFailure:
			detail := fmt.Sprintf("%s: %v (%s)", step.name, err, strings.TrimSpace(out.String()))
			a.logger.Warn("remediation step failed", "action", a.name, "step", step.name, "error", err)
			return false, strings.Join(append(details, detail), "; ")
		case err != nil:
			details = append(details, fmt.Sprintf("%s: ignored %v", step.name, err))
		default:
			details = append(details, step.name+": ok")
		}
	}
	return true, strings.Join(details, "; ")
}

// NewServiceRestart restarts the subsystem's user services. The gentlest
// tier: systemd tears the daemons down in order and brings them back.
func NewServiceRestart(services []string, timeout time.Duration, logger *slog.Logger) Action {
	return &execAction{
		name: "restart-services",
		steps: []execStep{
			{name: "systemctl", args: append([]string{"--user", "restart"}, services...)},
		},
		timeout: timeout,
		logger:  logger,
	}
}

// NewProcessKill force-kills the daemon processes and lets systemd start
// them again. Reaches processes that a plain restart leaves wedged.
func NewProcessKill(processes, services []string, timeout time.Duration, logger *slog.Logger) Action {
	steps := make([]execStep, 0, len(processes)+1)
	for _, p := range processes {
		steps = append(steps, execStep{name: "pkill", args: []string{"-9", "-x", p}, tolerateFailure: true})
	}
	steps = append(steps, execStep{name: "systemctl", args: append([]string{"--user", "start"}, services...)})
	return &execAction{
		name:    "kill-processes",
		steps:   steps,
		timeout: timeout,
		logger:  logger,
	}
}

// NewRebuild is the terminal tier: full teardown of the subsystem, kill
// of any leftovers, then a cold start.
func NewRebuild(processes, services []string, timeout time.Duration, logger *slog.Logger) Action {
	steps := []execStep{
		{name: "systemctl", args: append([]string{"--user", "stop"}, services...), tolerateFailure: true},
	}
	for _, p := range processes {
		steps = append(steps, execStep{name: "pkill", args: []string{"-9", "-x", p}, tolerateFailure: true})
	}
	steps = append(steps,
		execStep{name: "systemctl", args: []string{"--user", "reset-failed"}, tolerateFailure: true},
		execStep{name: "systemctl", args: append([]string{"--user", "start"}, services...)},
	)
	return &execAction{
		name:    "rebuild",
		steps:   steps,
		timeout: timeout,
		logger:  logger,
	}
}
