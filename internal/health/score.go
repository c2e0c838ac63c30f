// internal/health/score.go
package health

import (
	"time"

	"github.com/FairForge/switchyard/internal/endpoint"
)

// Verdict classifies an aggregate score.
type Verdict string

const (
	VerdictHealthy   Verdict = "healthy"
	VerdictDegraded  Verdict = "degraded"
	VerdictUnhealthy Verdict = "unhealthy"
)

// CheckResult is the outcome of one check inside an assessment.
type CheckResult struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Passed bool    `json:"passed"`
	Detail string  `json:"detail"`
}

// Score is the immutable result of one assessment.
type Score struct {
	Unit        string               `json:"unit"`
	Environment endpoint.Environment `json:"environment"`
	Checks      []CheckResult        `json:"checks"`
	Aggregate   float64              `json:"aggregate"` // in [0, 1]
	Verdict     Verdict              `json:"verdict"`
	AssessedAt  time.Time            `json:"assessed_at"`
}

// Gates reports whether the verdict allows a cutover to stand. Only an
// unhealthy verdict forces reversal.
func (s *Score) Gates() bool {
	return s.Verdict == VerdictHealthy || s.Verdict == VerdictDegraded
}

// aggregate computes the normalized weighted score. Weights are normalized
// by their actual sum, so configurations whose weights do not add up to 1.0
// still score in [0, 1]. Zero-weight checks are informational and do not
// participate.
func aggregate(results []CheckResult) float64 {
	var total, passed float64
	for _, r := range results {
		if r.Weight <= 0 {
			continue
		}
		total += r.Weight
		if r.Passed {
			passed += r.Weight
		}
	}
	if total == 0 {
		return 0
	}
	return passed / total
}

// classify maps a score to a verdict against a threshold pair.
func classify(score, healthy, degraded float64) Verdict {
	switch {
	case score >= healthy:
		return VerdictHealthy
	case score >= degraded:
		return VerdictDegraded
	default:
		return VerdictUnhealthy
	}
}
