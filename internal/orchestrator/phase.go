// internal/orchestrator/phase.go
package orchestrator

// Phase is a state of the cutover state machine. Terminal phases are
// Committed and RolledBack.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSyncing
	PhaseAwaitingConvergence
	PhaseRecovering
	PhaseDeploying
	PhaseRoutingUpdate
	PhaseCommitted
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSyncing:
		return "syncing"
	case PhaseAwaitingConvergence:
		return "awaiting-convergence"
	case PhaseRecovering:
		return "recovering"
	case PhaseDeploying:
		return "deploying"
	case PhaseRoutingUpdate:
		return "routing-update"
	case PhaseCommitted:
		return "committed"
	case PhaseRolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase is terminal.
func (p Phase) Terminal() bool {
	return p == PhaseCommitted || p == PhaseRolledBack
}
