package domain

import "time"

// HealthState classifies one backing service's reachability.
type HealthState string

const (
	HealthHealthy     HealthState = "healthy"
	HealthDegraded    HealthState = "degraded"
	HealthUnreachable HealthState = "unreachable"
)

// rank orders states from best to worst for aggregation.
func (s HealthState) rank() int {
	switch s {
	case HealthHealthy:
		return 0
	case HealthDegraded:
		return 1
	default:
		return 2
	}
}

// Worse returns the worse of two states.
func (s HealthState) Worse(other HealthState) HealthState {
	if other.rank() > s.rank() {
		return other
	}
	return s
}

// ServiceHealth is the probe result for a single backing service.
type ServiceHealth struct {
	Status  HealthState
	Detail  string
	Latency time.Duration
}

// HealthStatus aggregates both backing services. Status is the worst of the
// two, so one service being down degrades the whole report without erroring.
type HealthStatus struct {
	Status    HealthState
	Search    ServiceHealth
	Reranker  ServiceHealth
	CheckedAt time.Time
}
