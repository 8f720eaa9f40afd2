package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulsewatch/pulsewatch/internal/audio"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/consul"
	"github.com/pulsewatch/pulsewatch/internal/history"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/probe"
	"github.com/pulsewatch/pulsewatch/internal/remedy"
	"github.com/pulsewatch/pulsewatch/internal/watchdog"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the watchdog agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			applyEnv(&cfg)
			if err := config.Validate(&cfg); err != nil {
				return err
			}
			return run(cfg)
		},
	}
}

// applyEnv layers environment overrides on top of the file config.
func applyEnv(cfg *config.Config) {
	if v, err := strconv.Atoi(os.Getenv("PULSEWATCH_PROBE_INTERVAL_SECONDS")); err == nil && v > 0 {
		cfg.Watchdog.ProbeIntervalSeconds = v
	}
	if v, err := strconv.Atoi(os.Getenv("PULSEWATCH_FAILURE_THRESHOLD")); err == nil && v > 0 {
		cfg.Watchdog.FailureThreshold = v
	}
	if v, err := strconv.Atoi(os.Getenv("PULSEWATCH_COOLDOWN_SECONDS")); err == nil && v > 0 {
		cfg.Watchdog.CooldownSeconds = v
	}
	if v, err := strconv.Atoi(os.Getenv("PULSEWATCH_PORT")); err == nil && v > 0 {
		cfg.HTTP.Port = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		cfg.Notify.AMQPURL = v
	}
	if v := os.Getenv("CONSUL_ADDRESS"); v != "" {
		cfg.Consul.Address = v
	}
	cfg.LogLevel = envOr("PULSEWATCH_LOG_LEVEL", cfg.LogLevel)
}

func run(cfg config.Config) error {
	logger := newLogger(cfg.LogLevel)

	controller := audio.NewCLIController(logger)
	battery, err := probe.NewBattery(controller, cfg.ProbeSettings(), logger)
	if err != nil {
		return fmt.Errorf("probe battery: %w", err)
	}

	ladder, err := remedy.BuildLadder(cfg.TierSpecs(), cfg.Probe.RequiredProcesses, cfg.Probe.RequiredProcesses, logger)
	if err != nil {
		return fmt.Errorf("remediation ladder: %w", err)
	}

	// AMQP publisher (no-op when URL is empty).
	publisher, err := notify.NewPublisher(cfg.Notify.AMQPURL, logger)
	if err != nil {
		return fmt.Errorf("rabbitmq publisher: %w", err)
	}
	defer publisher.Close()

	sinks := []notify.Sink{publisher}
	if cfg.DesktopEnabled() {
		sinks = append(sinks, notify.NewDesktopSink(logger))
	}
	sink := notify.NewMultiSink(logger, sinks...)

	deps := watchdog.Deps{
		Prober: battery,
		Ladder: ladder,
		Sink:   sink,
		Events: publisher,
		Cache:  watchdog.NewStatusCache(),
	}

	// Fleet reporting is opt-in.
	var reporter *consul.Reporter
	if cfg.Consul.Address != "" {
		reporter, err = consul.NewReporter(cfg.Consul.Address, cfg.Consul.ServiceName, cfg.Consul.ServiceID, logger)
		if err != nil {
			return fmt.Errorf("consul reporter: %w", err)
		}
		if err := reporter.Register(cfg.HTTP.Port, cfg.WatchdogSettings().ProbeInterval); err != nil {
			return fmt.Errorf("consul register: %w", err)
		}
		defer func() {
			if err := reporter.Deregister(); err != nil {
				logger.Warn("consul deregister failed", "error", err)
			}
		}()
		deps.Reporter = reporter
	}

	// Episode journal is opt-in.
	var store *history.Store
	if cfg.History.Path != "" {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("episode journal: %w", err)
		}
		defer store.Close()
		deps.Journal = store
	}

	loop, err := watchdog.NewLoop(cfg.WatchdogSettings(), deps, logger)
	if err != nil {
		return fmt.Errorf("watchdog: %w", err)
	}

	// Graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go loop.Run(ctx)

	server := statusServer(cfg.HTTP.Port, loop.Status(), store)
	go func() {
		<-ctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("pulsewatch starting", "port", cfg.HTTP.Port, "version", version,
		"probe_interval", cfg.WatchdogSettings().ProbeInterval)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func statusServer(port int, cache *watchdog.StatusCache, store *history.Store) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cache.Snapshot())
	})

	mux.HandleFunc("GET /api/episodes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if store == nil {
			json.NewEncoder(w).Encode([]watchdog.Episode{})
			return
		}
		limit := 20
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			limit = v
		}
		episodes, err := store.Recent(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if episodes == nil {
			episodes = []watchdog.Episode{}
		}
		json.NewEncoder(w).Encode(episodes)
	})

	return &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
