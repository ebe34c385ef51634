package opsapi

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	resilience "github.com/Tomefy5/jurachain-sub000"
)

type systemHealthOutput struct {
	Body resilience.SystemHealth
}

type servicesOutput struct {
	Body struct {
		Services []resilience.ServiceHealthStatus `json:"services"`
	}
}

type circuitBreakersOutput struct {
	Body struct {
		CircuitBreakers map[string]resilience.CircuitState `json:"circuit_breakers"`
	}
}

type errorStatsOutput struct {
	Body struct {
		Services map[string]resilience.ServiceErrorStats `json:"services"`
	}
}

// NetworkHealth is the ledger-focused view of the registry: only services
// registered with KindLedger appear, graded with the worst status overall.
type NetworkHealth struct {
	Networks map[string]resilience.ServiceHealthStatus `json:"networks"`
	Status   resilience.HealthState                    `json:"status"`
}

type networkHealthOutput struct {
	Body NetworkHealth
}

type recommendationsOutput struct {
	Body struct {
		Recommendations []string `json:"recommendations"`
	}
}

func (s *Server) registerReadRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Aggregate system health",
	}, func(ctx context.Context, _ *struct{}) (*systemHealthOutput, error) {
		return &systemHealthOutput{Body: s.manager.GetSystemHealth()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-services",
		Method:      http.MethodGet,
		Path:        "/services",
		Summary:     "Per-service health, sorted by name",
	}, func(ctx context.Context, _ *struct{}) (*servicesOutput, error) {
		registry := s.manager.Registry()
		snapshot := registry.Snapshot()

		out := &servicesOutput{}
		out.Body.Services = make([]resilience.ServiceHealthStatus, 0, len(snapshot))
		for _, name := range registry.ListServices() {
			out.Body.Services = append(out.Body.Services, snapshot[name])
		}
		return out, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-circuit-breakers",
		Method:      http.MethodGet,
		Path:        "/circuit-breakers",
		Summary:     "Circuit state of every registered service",
	}, func(ctx context.Context, _ *struct{}) (*circuitBreakersOutput, error) {
		snapshot := s.manager.Registry().Snapshot()

		out := &circuitBreakersOutput{}
		out.Body.CircuitBreakers = make(map[string]resilience.CircuitState, len(snapshot))
		for name, status := range snapshot {
			out.Body.CircuitBreakers[name] = status.State
		}
		return out, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-error-stats",
		Method:      http.MethodGet,
		Path:        "/error-stats",
		Summary:     "Per-service failure counters and last error",
	}, func(ctx context.Context, _ *struct{}) (*errorStatsOutput, error) {
		out := &errorStatsOutput{}
		out.Body.Services = s.manager.Registry().ErrorStats()
		return out, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-network-health",
		Method:      http.MethodGet,
		Path:        "/network-health",
		Summary:     "Health of the distributed-ledger networks",
	}, func(ctx context.Context, _ *struct{}) (*networkHealthOutput, error) {
		return &networkHealthOutput{Body: s.networkHealth()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-recommendations",
		Method:      http.MethodGet,
		Path:        "/recommendations",
		Summary:     "Operator advisories derived from the current snapshot",
	}, func(ctx context.Context, _ *struct{}) (*recommendationsOutput, error) {
		out := &recommendationsOutput{}
		out.Body.Recommendations = s.recommendations()
		return out, nil
	})
}

func (s *Server) networkHealth() NetworkHealth {
	snapshot := s.manager.Registry().Snapshot()

	health := NetworkHealth{
		Networks: make(map[string]resilience.ServiceHealthStatus),
		Status:   resilience.HealthHealthy,
	}
	for name, status := range snapshot {
		if status.Kind != resilience.KindLedger {
			continue
		}
		health.Networks[name] = status
		health.Status = worstHealth(health.Status, status.Status)
	}
	return health
}

func worstHealth(a, b resilience.HealthState) resilience.HealthState {
	rank := map[resilience.HealthState]int{
		resilience.HealthHealthy:   0,
		resilience.HealthDegraded:  1,
		resilience.HealthUnhealthy: 2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
