package audio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Controller is the typed query surface over the audio subsystem. Every
// call does a single bounded round trip; the context carries the caller's
// timeout. Implementations must never block past context cancellation.
type Controller interface {
	// Ping performs one round trip to the daemon's control socket.
	Ping(ctx context.Context) error
	// Sinks lists all output endpoints with their states.
	Sinks(ctx context.Context) ([]Sink, error)
	// ServerInfo returns daemon-level info, including the default sink.
	ServerInfo(ctx context.Context) (ServerInfo, error)
	// ProcessAlive reports whether a daemon process is running.
	ProcessAlive(ctx context.Context, name string) (bool, error)
	// ProbeSink issues a liveness query against one endpoint. A timeout
	// surfaces as ctx.Err wrapped in the returned error.
	ProbeSink(ctx context.Context, name string) error
	// RecentErrors returns error-priority journal entries for the daemon
	// units within the trailing window. Pattern filtering happens here,
	// never in the caller.
	RecentErrors(ctx context.Context, window time.Duration) ([]LogEntry, error)
}

// CLIController drives the subsystem through its JSON-emitting control
// CLI and the systemd journal. It is stateless; every method is one
// subprocess invocation under exec.CommandContext.
type CLIController struct {
	logger *slog.Logger

	// Journal units whose error entries count against health.
	units []string
}

// NewCLIController creates a Controller backed by the pactl/journalctl
// command-line tools.
func NewCLIController(logger *slog.Logger) *CLIController {
	return &CLIController{
		logger: logger,
		units:  []string{"pipewire", "pipewire-pulse", "wireplumber"},
	}
}

func (c *CLIController) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			c.logger.Debug("subsystem command timed out", "cmd", name)
			return nil, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w (%s)", name, err, strings.TrimSpace(errb.String()))
	}
	return out.Bytes(), nil
}

// Ping runs a bare info query and discards the output.
func (c *CLIController) Ping(ctx context.Context) error {
	_, err := c.run(ctx, "pactl", "info")
	return err
}

// pactlSink mirrors the JSON emitted by `pactl --format=json list sinks`.
type pactlSink struct {
	Index       uint32            `json:"index"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	State       string            `json:"state"`
	Driver      string            `json:"driver"`
	Properties  map[string]string `json:"properties"`
}

func (c *CLIController) Sinks(ctx context.Context) ([]Sink, error) {
	out, err := c.run(ctx, "pactl", "--format=json", "list", "sinks")
	if err != nil {
		return nil, err
	}
	var raw []pactlSink
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("decode sink list: %w", err)
	}

	sinks := make([]Sink, 0, len(raw))
	for _, r := range raw {
		sinks = append(sinks, Sink{
			Index:       r.Index,
			Name:        r.Name,
			Description: r.Description,
			State:       parseSinkState(r.State),
			Driver:      r.Driver,
			Bus:         r.Properties["device.bus"],
		})
	}
	return sinks, nil
}

func parseSinkState(s string) SinkState {
	switch strings.ToUpper(s) {
	case "RUNNING":
		return SinkRunning
	case "IDLE":
		return SinkIdle
	case "SUSPENDED":
		return SinkSuspended
	case "ERROR", "UNLINKED":
		return SinkError
	default:
		return SinkUnknown
	}
}

// pactlInfo mirrors the JSON emitted by `pactl --format=json info`.
type pactlInfo struct {
	ServerName      string `json:"server_name"`
	ServerVersion   string `json:"server_version"`
	DefaultSinkName string `json:"default_sink_name"`
}

func (c *CLIController) ServerInfo(ctx context.Context) (ServerInfo, error) {
	out, err := c.run(ctx, "pactl", "--format=json", "info")
	if err != nil {
		return ServerInfo{}, err
	}
	var raw pactlInfo
	if err := json.Unmarshal(out, &raw); err != nil {
		return ServerInfo{}, fmt.Errorf("decode server info: %w", err)
	}
	return ServerInfo{
		ServerName:      raw.ServerName,
		ServerVersion:   raw.ServerVersion,
		DefaultSinkName: raw.DefaultSinkName,
	}, nil
}

// ProcessAlive shells out to pgrep with an exact-name match.
func (c *CLIController) ProcessAlive(ctx context.Context, name string) (bool, error) {
	cmd := exec.CommandContext(ctx, "pgrep", "-x", name)
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, fmt.Errorf("pgrep %s: %w", name, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil // ran fine, no such process
	}
	return false, fmt.Errorf("pgrep %s: %w", name, err)
}

// ProbeSink queries one sink's volume, which forces a round trip through
// the endpoint's driver. A wedged USB endpoint hangs here and the context
// deadline converts that into a timeout error.
func (c *CLIController) ProbeSink(ctx context.Context, name string) error {
	_, err := c.run(ctx, "pactl", "get-sink-volume", name)
	return err
}

// journalEntry mirrors journalctl's JSON line output.
type journalEntry struct {
	RealtimeTimestamp string `json:"__REALTIME_TIMESTAMP"`
	Unit              string `json:"_SYSTEMD_USER_UNIT"`
	Message           string `json:"MESSAGE"`
	Priority          string `json:"PRIORITY"`
}

func (c *CLIController) RecentErrors(ctx context.Context, window time.Duration) ([]LogEntry, error) {
	args := []string{"--user", "--output=json", "--priority=err", "--no-pager",
		fmt.Sprintf("--since=-%ds", int(window.Seconds()))}
	for _, u := range c.units {
		args = append(args, "-u", u+".service")
	}

	out, err := c.run(ctx, "journalctl", args...)
	if err != nil {
		return nil, err
	}
	return decodeJournal(out)
}

func decodeJournal(out []byte) ([]LogEntry, error) {
	var entries []LogEntry
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var raw journalEntry
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("decode journal line: %w", err)
		}
		entries = append(entries, LogEntry{
			Timestamp: parseJournalTime(raw.RealtimeTimestamp),
			Unit:      raw.Unit,
			Message:   raw.Message,
			Priority:  parsePriority(raw.Priority),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan journal output: %w", err)
	}
	return entries, nil
}

func parseJournalTime(usec string) time.Time {
	n, err := strconv.ParseInt(usec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMicro(n)
}

func parsePriority(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
