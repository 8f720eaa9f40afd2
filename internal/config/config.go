// Package config loads and validates the agent's YAML configuration.
package config

import (
	"time"

	"github.com/pulsewatch/pulsewatch/internal/probe"
	"github.com/pulsewatch/pulsewatch/internal/remedy"
	"github.com/pulsewatch/pulsewatch/internal/watchdog"
)

type Config struct {
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Probe    ProbeConfig    `yaml:"probe"`
	Ladder   []TierConfig   `yaml:"ladder"`
	Notify   NotifyConfig   `yaml:"notify"`
	Consul   ConsulConfig   `yaml:"consul"`
	HTTP     HTTPConfig     `yaml:"http"`
	History  HistoryConfig  `yaml:"history"`
	LogLevel string         `yaml:"log_level"`
}

type WatchdogConfig struct {
	ProbeIntervalSeconds int   `yaml:"probe_interval_seconds"`
	FailureThreshold     int   `yaml:"failure_threshold"`
	CooldownSeconds      int   `yaml:"cooldown_seconds"`
	ActionTimeoutSeconds int   `yaml:"action_timeout_seconds"`
	ResetOnExhaustion    *bool `yaml:"reset_on_exhaustion"` // nil means true
}

type ProbeConfig struct {
	CheckTimeoutSeconds int      `yaml:"check_timeout_seconds"`
	MinSinks            int      `yaml:"min_sinks"`
	RequiredProcesses   []string `yaml:"required_processes"`
	LogWindowSeconds    int      `yaml:"log_window_seconds"`
}

type TierConfig struct {
	Action         string `yaml:"action"`
	SettleSeconds  int    `yaml:"settle_seconds"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type NotifyConfig struct {
	AMQPURL string `yaml:"amqp_url"`
	Desktop *bool  `yaml:"desktop"` // nil means true
}

type ConsulConfig struct {
	Address     string `yaml:"address"` // empty disables fleet reporting
	ServiceName string `yaml:"service_name"`
	ServiceID   string `yaml:"service_id"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type HistoryConfig struct {
	Path string `yaml:"path"` // empty disables the episode journal
}

// Services the remediation actions manage, in dependency order.
var defaultServices = []string{"pipewire", "pipewire-pulse", "wireplumber"}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		Watchdog: WatchdogConfig{
			ProbeIntervalSeconds: 30,
			FailureThreshold:     3,
			CooldownSeconds:      600,
			ActionTimeoutSeconds: 90,
		},
		Probe: ProbeConfig{
			CheckTimeoutSeconds: 5,
			MinSinks:            1,
			RequiredProcesses:   defaultServices,
			LogWindowSeconds:    120,
		},
		Ladder: []TierConfig{
			{Action: "restart-services", SettleSeconds: 8, TimeoutSeconds: 30},
			{Action: "kill-processes", SettleSeconds: 10, TimeoutSeconds: 30},
			{Action: "rebuild", SettleSeconds: 15, TimeoutSeconds: 60},
		},
		Consul: ConsulConfig{
			ServiceName: "pulsewatch",
			ServiceID:   "pulsewatch-agent",
		},
		HTTP:     HTTPConfig{Port: 8089},
		LogLevel: "info",
	}
}

// WatchdogSettings converts to the loop's runtime config.
func (c Config) WatchdogSettings() watchdog.Config {
	reset := true
	if c.Watchdog.ResetOnExhaustion != nil {
		reset = *c.Watchdog.ResetOnExhaustion
	}
	return watchdog.Config{
		ProbeInterval:     time.Duration(c.Watchdog.ProbeIntervalSeconds) * time.Second,
		FailureThreshold:  c.Watchdog.FailureThreshold,
		CooldownDuration:  time.Duration(c.Watchdog.CooldownSeconds) * time.Second,
		ActionTimeout:     time.Duration(c.Watchdog.ActionTimeoutSeconds) * time.Second,
		ResetOnExhaustion: reset,
	}
}

// ProbeSettings converts to the battery's runtime config.
func (c Config) ProbeSettings() probe.Config {
	return probe.Config{
		CheckTimeout:      time.Duration(c.Probe.CheckTimeoutSeconds) * time.Second,
		MinSinks:          c.Probe.MinSinks,
		RequiredProcesses: c.Probe.RequiredProcesses,
		LogWindow:         time.Duration(c.Probe.LogWindowSeconds) * time.Second,
	}
}

// TierSpecs converts the declarative ladder to remedy specs.
func (c Config) TierSpecs() []remedy.TierSpec {
	specs := make([]remedy.TierSpec, 0, len(c.Ladder))
	for _, t := range c.Ladder {
		specs = append(specs, remedy.TierSpec{
			Action:  t.Action,
			Settle:  time.Duration(t.SettleSeconds) * time.Second,
			Timeout: time.Duration(t.TimeoutSeconds) * time.Second,
		})
	}
	return specs
}

// DesktopEnabled reports whether desktop notifications are on.
func (c Config) DesktopEnabled() bool {
	return c.Notify.Desktop == nil || *c.Notify.Desktop
}
