package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// Sink is a fire-and-forget alert channel. Errors are returned for
// logging only; callers must never let them stop the watchdog.
type Sink interface {
	Notify(ctx context.Context, severity Severity, message string) error
}

// DesktopSink delivers alerts to the local desktop session via
// notify-send.
type DesktopSink struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewDesktopSink creates a desktop notification sink.
func NewDesktopSink(logger *slog.Logger) *DesktopSink {
	return &DesktopSink{
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

func (d *DesktopSink) Notify(ctx context.Context, severity Severity, message string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	urgency := "normal"
	if severity == SeverityCritical {
		urgency = "critical"
	}

	cmd := exec.CommandContext(ctx, "notify-send", "--urgency="+urgency, "--app-name=pulsewatch",
		"Audio watchdog", message)
	var out bytes.Buffer
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("notify-send: %w (%s)", err, out.String())
	}
	return nil
}

// MultiSink fans one alert out to every attached sink. Each sink gets a
// delivery attempt even when an earlier one fails.
type MultiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMultiSink combines sinks. Nil entries are skipped.
func NewMultiSink(logger *slog.Logger, sinks ...Sink) *MultiSink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiSink{sinks: kept, logger: logger}
}

func (m *MultiSink) Notify(ctx context.Context, severity Severity, message string) error {
	var errs error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, severity, message); err != nil {
			m.logger.Warn("notification delivery failed", "error", err)
			errs = errors.Join(errs, err)
		}
	}
	return errs
}
