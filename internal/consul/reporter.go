// Package consul reports the watched subsystem's health into a HashiCorp
// Consul agent, so fleet dashboards see audio health next to everything
// else. The agent registers itself as a service with a TTL check and
// maps every probe verdict onto the TTL state.
package consul

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/consul/api"

	"github.com/pulsewatch/pulsewatch/internal/types"
)

// Reporter pushes health verdicts to a Consul agent.
type Reporter struct {
	client      *api.Client
	serviceID   string
	serviceName string
	logger      *slog.Logger
}

// NewReporter creates a Reporter against the given Consul address. The
// service is registered on first use via Register.
func NewReporter(addr, serviceName, serviceID string, logger *slog.Logger) (*Reporter, error) {
	cfg := api.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}

	return &Reporter{
		client:      client,
		serviceID:   serviceID,
		serviceName: serviceName,
		logger:      logger,
	}, nil
}

// Register registers the agent as a Consul service with a TTL check.
// The TTL is the probe interval plus a buffer, so a wedged or dead agent
// goes critical on its own.
func (r *Reporter) Register(port int, probeInterval time.Duration) error {
	ttl := probeInterval + 15*time.Second
	if ttl < 30*time.Second {
		ttl = 30 * time.Second
	}

	reg := &api.AgentServiceRegistration{
		ID:   r.serviceID,
		Name: r.serviceName,
		Port: port,
		Meta: map[string]string{
			"role": "audio-watchdog",
		},
		Check: &api.AgentServiceCheck{
			CheckID:                        r.checkID(),
			Name:                           fmt.Sprintf("%s subsystem health", r.serviceName),
			TTL:                            ttl.String(),
			DeregisterCriticalServiceAfter: (24 * time.Hour).String(),
		},
	}

	if err := r.client.Agent().ServiceRegister(reg); err != nil {
		return fmt.Errorf("consul register: %w", err)
	}

	if err := r.client.Agent().PassTTL(r.checkID(), "watchdog started"); err != nil {
		r.logger.Warn("failed to pass initial TTL", "service_id", r.serviceID, "error", err)
	}

	r.logger.Info("registered with consul", "service_id", r.serviceID, "ttl", ttl)
	return nil
}

// Report maps one verdict onto the TTL check. Failures here are returned
// for logging only; the loop never treats them as fatal.
func (r *Reporter) Report(_ context.Context, status types.HealthStatus, output string) error {
	switch ttlVerb(status) {
	case "warn":
		return r.client.Agent().WarnTTL(r.checkID(), output)
	case "fail":
		return r.client.Agent().FailTTL(r.checkID(), output)
	default:
		return r.client.Agent().PassTTL(r.checkID(), output)
	}
}

// Deregister removes the service on shutdown.
func (r *Reporter) Deregister() error {
	if err := r.client.Agent().ServiceDeregister(r.serviceID); err != nil {
		return fmt.Errorf("consul deregister: %w", err)
	}
	r.logger.Info("deregistered from consul", "service_id", r.serviceID)
	return nil
}

func (r *Reporter) checkID() string {
	return fmt.Sprintf("service:%s", r.serviceID)
}

func ttlVerb(status types.HealthStatus) string {
	switch status {
	case types.HealthHealthy:
		return "pass"
	case types.HealthDegraded:
		return "warn"
	case types.HealthUnhealthy:
		return "fail"
	default:
		// Unknown passes rather than flapping the check on startup.
		return "pass"
	}
}
