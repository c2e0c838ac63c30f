// internal/api/handlers.go
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/FairForge/switchyard/internal/endpoint"
	"github.com/FairForge/switchyard/internal/health"
	"github.com/FairForge/switchyard/internal/statestore"
)

// UnitStatus is the API view of one unit's deployment state.
type UnitStatus struct {
	ID             string               `json:"id"`
	PrimaryHost    string               `json:"primary_host"`
	StandbyHost    string               `json:"standby_host"`
	Active         endpoint.Environment `json:"active_environment"`
	Standby        endpoint.Environment `json:"standby_environment"`
	LastTransition time.Time            `json:"last_transition"`
	Blue           endpoint.Endpoint    `json:"blue"`
	Green          endpoint.Endpoint    `json:"green"`
}

// UnitHealth is the API view of a unit's latest assessments.
type UnitHealth struct {
	ID      string        `json:"id"`
	Active  *health.Score `json:"active,omitempty"`
	Standby *health.Score `json:"standby,omitempty"`
}

func (s *Server) unitStatus(r *statestore.Record) *UnitStatus {
	unit := s.cfg.Unit(r.UnitID)
	if unit == nil {
		return nil
	}
	return &UnitStatus{
		ID:             unit.ID,
		PrimaryHost:    unit.PrimaryHost,
		StandbyHost:    unit.StandbyHost,
		Active:         r.Active,
		Standby:        r.Active.Complement(),
		LastTransition: r.LastTransition,
		Blue:           endpoint.Resolve(unit.PrimaryHost, unit.Ports, endpoint.Blue),
		Green:          endpoint.Resolve(unit.PrimaryHost, unit.Ports, endpoint.Green),
	}
}

func (s *Server) handleListUnits(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.Units(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	units := make([]*UnitStatus, 0, len(records))
	for i := range records {
		if status := s.unitStatus(&records[i]); status != nil {
			units = append(units, status)
		}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"units": units,
		"count": len(units),
	})
}

func (s *Server) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	unit := s.cfg.Unit(id)
	if unit == nil {
		s.respondError(w, http.StatusNotFound, errors.New("unknown unit "+id))
		return
	}

	active, err := s.store.GetActive(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, statestore.ErrUnitNotFound) {
			status = http.StatusNotFound
		}
		s.respondError(w, status, err)
		return
	}

	record := statestore.Record{UnitID: id, Active: active}
	if records, err := s.store.Units(r.Context()); err == nil {
		for i := range records {
			if records[i].UnitID == id {
				record = records[i]
				break
			}
		}
	}

	s.respondJSON(w, http.StatusOK, s.unitStatus(&record))
}

func (s *Server) handleUnitHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.cfg.Unit(id) == nil {
		s.respondError(w, http.StatusNotFound, errors.New("unknown unit "+id))
		return
	}

	active, err := s.store.GetActive(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, statestore.ErrUnitNotFound) {
			status = http.StatusNotFound
		}
		s.respondError(w, status, err)
		return
	}

	result := &UnitHealth{
		ID:      id,
		Active:  s.scores.LastScore(id, active),
		Standby: s.scores.LastScore(id, active.Complement()),
	}
	if result.Active == nil && result.Standby == nil {
		s.respondError(w, http.StatusNotFound, errors.New("no assessment recorded for unit "+id))
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRTO(w http.ResponseWriter, _ *http.Request) {
	if s.rto == nil {
		s.respondError(w, http.StatusNotFound, errors.New("recovery tracking not enabled"))
		return
	}

	m := s.rto.Metrics()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"total_incidents": m.TotalIncidents,
		"rto_compliant":   m.RTOCompliant,
		"compliance_rate": m.ComplianceRate,
		"average_rto":     m.AverageRTO.String(),
		"worst_rto":       m.WorstRTO.String(),
	})
}
