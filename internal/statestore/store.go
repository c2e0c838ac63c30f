// internal/statestore/store.go
package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FairForge/switchyard/internal/endpoint"
)

// ErrUnitNotFound is returned when a unit has no state record. A missing
// record is a hard error, never a silent default to one environment.
var ErrUnitNotFound = errors.New("statestore: unit not found")

// ConflictError is returned by SetActive when the caller's expected
// environment does not match the committed one (another operation won).
type ConflictError struct {
	Unit     string
	Expected endpoint.Environment
	Actual   endpoint.Environment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("statestore: conflict on unit %s: expected active %s, found %s",
		e.Unit, e.Expected, e.Actual)
}

// Record is the durable state of one unit.
type Record struct {
	UnitID         string               `yaml:"id" json:"id"`
	Active         endpoint.Environment `yaml:"active_environment" json:"active_environment"`
	LastTransition time.Time            `yaml:"last_transition" json:"last_transition"`
}

// Store is the single source of truth for which environment is active.
// SetActive is a compare-and-swap: the write succeeds only if the committed
// value still equals expectedPrev, and is durable before the call returns.
type Store interface {
	GetActive(ctx context.Context, unitID string) (endpoint.Environment, error)
	SetActive(ctx context.Context, unitID string, next, expectedPrev endpoint.Environment) error
	Units(ctx context.Context) ([]Record, error)

	// Ensure creates the record with the given environment if it does not
	// exist yet. Existing records are left untouched.
	Ensure(ctx context.Context, unitID string, env endpoint.Environment) error
}
