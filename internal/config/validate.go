package config

import (
	"errors"
	"fmt"
)

var knownActions = map[string]bool{
	"restart-services": true,
	"kill-processes":   true,
	"rebuild":          true,
}

var knownLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks configuration correctness. Declarative only; it MUST
// NOT mutate the configuration.
func Validate(cfg *Config) error {
	var errs error

	if cfg.Watchdog.ProbeIntervalSeconds <= 0 {
		errs = errors.Join(errs, errors.New("watchdog.probe_interval_seconds must be positive"))
	}
	if cfg.Watchdog.FailureThreshold <= 0 {
		errs = errors.Join(errs, errors.New("watchdog.failure_threshold must be positive"))
	}
	if cfg.Watchdog.CooldownSeconds <= 0 {
		errs = errors.Join(errs, errors.New("watchdog.cooldown_seconds must be positive"))
	}
	if cfg.Watchdog.ActionTimeoutSeconds <= 0 {
		errs = errors.Join(errs, errors.New("watchdog.action_timeout_seconds must be positive"))
	}

	if cfg.Probe.CheckTimeoutSeconds <= 0 {
		errs = errors.Join(errs, errors.New("probe.check_timeout_seconds must be positive"))
	}
	if cfg.Probe.MinSinks < 0 {
		errs = errors.Join(errs, errors.New("probe.min_sinks must not be negative"))
	}
	if cfg.Probe.LogWindowSeconds <= 0 {
		errs = errors.Join(errs, errors.New("probe.log_window_seconds must be positive"))
	}

	if len(cfg.Ladder) == 0 {
		errs = errors.Join(errs, errors.New("ladder must define at least one tier"))
	}
	for i, t := range cfg.Ladder {
		if !knownActions[t.Action] {
			errs = errors.Join(errs, fmt.Errorf("ladder[%d].action %q is not a known action", i, t.Action))
		}
		if t.SettleSeconds <= 0 {
			errs = errors.Join(errs, fmt.Errorf("ladder[%d].settle_seconds must be positive", i))
		}
		if t.TimeoutSeconds <= 0 {
			errs = errors.Join(errs, fmt.Errorf("ladder[%d].timeout_seconds must be positive", i))
		}
	}

	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		errs = errors.Join(errs, fmt.Errorf("http.port %d out of range", cfg.HTTP.Port))
	}

	if cfg.Consul.Address != "" && cfg.Consul.ServiceName == "" {
		errs = errors.Join(errs, errors.New("consul.service_name required when consul.address is set"))
	}

	if !knownLogLevels[cfg.LogLevel] {
		errs = errors.Join(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", cfg.LogLevel))
	}

	return errs
}
