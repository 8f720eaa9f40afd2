// Package types defines shared domain types used across internal packages.
package types

// HealthStatus is the coarse health verdict reported to the fleet layer
// and the status API. Degraded means the subsystem is failing probes but
// the watchdog has not yet started remediating.
type HealthStatus int

const (
	HealthUnknown HealthStatus = iota
	HealthHealthy
	HealthDegraded
	HealthUnhealthy
)

func (s HealthStatus) String() string {
	switch s {
	case HealthHealthy:
		return "Healthy"
	case HealthDegraded:
		return "Degraded"
	case HealthUnhealthy:
		return "Unhealthy"
	default:
		return "Unknown"
	}
}
