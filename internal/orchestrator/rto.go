// internal/orchestrator/rto.go
package orchestrator

import (
	"fmt"
	"sync"
	"time"
)

// RecoveryEvent describes one resolved failover incident.
type RecoveryEvent struct {
	IncidentID   string
	Unit         string
	FailedHost   string
	FailureTime  time.Time
	RecoveryTime time.Time
}

// RecoveryResult is the RTO outcome of a recovery event.
type RecoveryResult struct {
	IncidentID string
	Unit       string
	ActualRTO  time.Duration
	RTOMet     bool
	Timestamp  time.Time
}

// RTOMetrics aggregates the recovery history.
type RTOMetrics struct {
	TotalIncidents int
	RTOCompliant   int
	ComplianceRate float64
	AverageRTO     time.Duration
	WorstRTO       time.Duration
}

type activeIncident struct {
	id         string
	unit       string
	failedHost string
	startTime  time.Time
}

// RTOTracker records failover recovery times against a target objective.
type RTOTracker struct {
	target  time.Duration
	history []RecoveryResult
	active  map[string]*activeIncident
	mu      sync.RWMutex
}

// NewRTOTracker creates a tracker with the given Recovery Time Objective.
func NewRTOTracker(target time.Duration) *RTOTracker {
	if target <= 0 {
		target = 15 * time.Minute
	}
	return &RTOTracker{
		target: target,
		active: make(map[string]*activeIncident),
	}
}

// StartIncident begins tracking a failover.
func (t *RTOTracker) StartIncident(incidentID, unit, failedHost string, failureTime time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active[incidentID] = &activeIncident{
		id:         incidentID,
		unit:       unit,
		failedHost: failedHost,
		startTime:  failureTime,
	}
}

// ResolveIncident closes an active incident and records the result.
func (t *RTOTracker) ResolveIncident(incidentID string, recoveryTime time.Time) (RecoveryResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	incident, ok := t.active[incidentID]
	if !ok {
		return RecoveryResult{}, fmt.Errorf("orchestrator: incident %s not found", incidentID)
	}

	actual := recoveryTime.Sub(incident.startTime)
	result := RecoveryResult{
		IncidentID: incidentID,
		Unit:       incident.unit,
		ActualRTO:  actual,
		RTOMet:     actual <= t.target,
		Timestamp:  recoveryTime,
	}

	t.history = append(t.history, result)
	delete(t.active, incidentID)
	return result, nil
}

// Metrics returns aggregated RTO compliance numbers.
func (t *RTOTracker) Metrics() RTOMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := RTOMetrics{TotalIncidents: len(t.history), ComplianceRate: 100.0}
	if len(t.history) == 0 {
		return m
	}

	var total time.Duration
	for _, r := range t.history {
		if r.RTOMet {
			m.RTOCompliant++
		}
		total += r.ActualRTO
		if r.ActualRTO > m.WorstRTO {
			m.WorstRTO = r.ActualRTO
		}
	}

	m.ComplianceRate = float64(m.RTOCompliant) / float64(m.TotalIncidents) * 100
	m.AverageRTO = total / time.Duration(m.TotalIncidents)
	return m
}
