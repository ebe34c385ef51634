package opsapi

import (
	"fmt"
	"sort"

	resilience "github.com/Tomefy5/jurachain-sub000"
)

// recommendations derives plain-text operator advisories from the current
// health snapshot. They are descriptive only; nothing here changes the
// system's behavior.
func (s *Server) recommendations() []string {
	health := s.manager.GetSystemHealth()

	var advisories []string

	names := make([]string, 0, len(health.Services))
	for name := range health.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		status := health.Services[name]
		switch status.State {
		case resilience.StateOpen:
			advisories = append(advisories, fmt.Sprintf(
				"Circuit for %q is open: check the dependency and reset the breaker once it has recovered.", name))
		case resilience.StateHalfOpen:
			advisories = append(advisories, fmt.Sprintf(
				"Circuit for %q is half-open: a recovery probe is pending, avoid manual intervention.", name))
		default:
			if status.Status == resilience.HealthDegraded {
				advisories = append(advisories, fmt.Sprintf(
					"Service %q is accumulating consecutive failures (%d): watch it before the circuit opens.",
					name, status.ConsecutiveFailures))
			}
		}
	}

	if len(health.Services) > 0 && health.HealthPercentage < 50 {
		advisories = append(advisories,
			"Less than half of the registered services are healthy: consider raising the degradation level to shed non-critical load.")
	}

	if health.MaxConcurrentOperations > 0 &&
		float64(health.ActiveOperations) >= 0.8*float64(health.MaxConcurrentOperations) {
		advisories = append(advisories, fmt.Sprintf(
			"Concurrency cap nearly reached (%d of %d in flight): new operations will be rejected with backpressure.",
			health.ActiveOperations, health.MaxConcurrentOperations))
	}

	if health.DegradationLevel != resilience.DegradationNone {
		advisories = append(advisories, fmt.Sprintf(
			"System is running at degradation level %q: trigger recovery once dependencies stabilize.",
			health.DegradationLevel))
	}

	if len(advisories) == 0 {
		advisories = append(advisories, "All services nominal: no action required.")
	}
	return advisories
}
