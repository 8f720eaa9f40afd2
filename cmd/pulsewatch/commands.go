package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulsewatch/pulsewatch/internal/audio"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/probe"
	"github.com/pulsewatch/pulsewatch/internal/watchdog"
)

// newCheckCmd runs the probe battery once and reports the verdict. Handy
// for debugging thresholds without waiting for the daemon loop.
func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the health probe battery once and print the verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			// One-shot diagnostics go to the terminal, not the journal.
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			battery, err := probe.NewBattery(audio.NewCLIController(logger), cfg.ProbeSettings(), logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			res := battery.Probe(ctx)
			if res.Healthy {
				fmt.Println("audio subsystem is healthy")
				return nil
			}
			for _, reason := range res.Reasons {
				fmt.Println("-", reason)
			}
			return fmt.Errorf("audio subsystem is unhealthy (%d problem(s))", len(res.Reasons))
		},
	}
}

// newStatusCmd queries a running agent's HTTP API.
func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running agent's watchdog state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			port := cfg.HTTP.Port
			if v, err := strconv.Atoi(os.Getenv("PULSEWATCH_PORT")); err == nil && v > 0 {
				port = v
			}

			url := fmt.Sprintf("http://localhost:%d/api/status", port)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("is the agent running? %w", err)
			}
			defer resp.Body.Close()

			var snap watchdog.Snapshot
			if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}

			fmt.Printf("state:                %s\n", snap.State)
			fmt.Printf("health:               %s\n", snap.Health)
			fmt.Printf("consecutive failures: %d\n", snap.ConsecutiveFailures)
			if snap.CooldownUntil != nil {
				fmt.Printf("cooldown until:       %s\n", snap.CooldownUntil.Local().Format(time.RFC1123))
			}
			if snap.LastProbe != nil {
				fmt.Printf("last probe:           %s\n", snap.LastProbe.ProbedAt.Local().Format(time.RFC1123))
				if !snap.LastProbe.Healthy {
					for _, r := range snap.LastProbe.Reasons {
						fmt.Println("  -", r)
					}
				}
			}
			return nil
		},
	}
}
