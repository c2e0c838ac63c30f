// internal/statestore/postgres.go
package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/FairForge/switchyard/internal/endpoint"
)

// PostgresStore keeps unit state in PostgreSQL. The compare-and-swap is a
// conditional UPDATE, so two racing operations cannot both commit.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore opens a connection and ensures the schema exists.
func NewPostgresStore(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("statestore: open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db, logger: logger}
	if err := s.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) createTables(ctx context.Context) error {
	query := `
        CREATE TABLE IF NOT EXISTS active_environments (
            unit_id         TEXT PRIMARY KEY,
            environment     TEXT NOT NULL CHECK (environment IN ('blue', 'green')),
            last_transition TIMESTAMPTZ NOT NULL DEFAULT now()
        )
    `
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("statestore: create tables: %w", err)
	}
	return nil
}

// GetActive returns the committed active environment for a unit.
func (s *PostgresStore) GetActive(ctx context.Context, unitID string) (endpoint.Environment, error) {
	var env string
	err := s.db.QueryRowContext(ctx,
		`SELECT environment FROM active_environments WHERE unit_id = $1`, unitID).Scan(&env)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", ErrUnitNotFound, unitID)
	}
	if err != nil {
		return "", fmt.Errorf("statestore: query unit %s: %w", unitID, err)
	}
	return endpoint.Environment(env), nil
}

// SetActive performs the compare-and-swap as a conditional UPDATE.
func (s *PostgresStore) SetActive(ctx context.Context, unitID string, next, expectedPrev endpoint.Environment) error {
	if !next.Valid() {
		return fmt.Errorf("statestore: invalid environment %q", next)
	}

	res, err := s.db.ExecContext(ctx, `
        UPDATE active_environments
        SET environment = $1, last_transition = now()
        WHERE unit_id = $2 AND environment = $3
    `, next.String(), unitID, expectedPrev.String())
	if err != nil {
		return fmt.Errorf("statestore: update unit %s: %w", unitID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("statestore: rows affected: %w", err)
	}
	if n == 1 {
		s.logger.Info("active environment updated",
			zap.String("unit", unitID),
			zap.String("from", expectedPrev.String()),
			zap.String("to", next.String()))
		return nil
	}

	// Distinguish a CAS conflict from a missing unit.
	actual, err := s.GetActive(ctx, unitID)
	if err != nil {
		return err
	}
	return &ConflictError{Unit: unitID, Expected: expectedPrev, Actual: actual}
}

// Units returns all unit records ordered by id.
func (s *PostgresStore) Units(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT unit_id, environment, last_transition
        FROM active_environments
        ORDER BY unit_id
    `)
	if err != nil {
		return nil, fmt.Errorf("statestore: query units: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var units []Record
	for rows.Next() {
		var r Record
		var env string
		if err := rows.Scan(&r.UnitID, &env, &r.LastTransition); err != nil {
			return nil, fmt.Errorf("statestore: scan unit: %w", err)
		}
		r.Active = endpoint.Environment(env)
		units = append(units, r)
	}
	return units, rows.Err()
}

// Ensure creates the unit record if missing.
func (s *PostgresStore) Ensure(ctx context.Context, unitID string, env endpoint.Environment) error {
	if !env.Valid() {
		return fmt.Errorf("statestore: invalid environment %q", env)
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO active_environments (unit_id, environment)
        VALUES ($1, $2)
        ON CONFLICT (unit_id) DO NOTHING
    `, unitID, env.String())
	if err != nil {
		return fmt.Errorf("statestore: ensure unit %s: %w", unitID, err)
	}
	return nil
}
