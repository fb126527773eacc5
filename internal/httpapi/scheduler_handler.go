package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"station-scheduler/internal/domain"
	"station-scheduler/internal/repository"
	"station-scheduler/internal/service"

	"go.uber.org/zap"
)

// SchedulerAPI the service operations the HTTP layer exposes
type SchedulerAPI interface {
	RunTick(ctx context.Context, now time.Time, stationID string) ([]*domain.TickReport, error)
	GetLatestReport(ctx context.Context, stationID string) (json.RawMessage, error)
	GetRooms(ctx context.Context, stationID string) (json.RawMessage, error)
	IntakePatient(hn string, date time.Time, procedureIDs []string) ([]domain.PatientStep, error)
	CompleteStepNow(stepID string, now time.Time) error
	GrantOvertime(personID string, until domain.TimeOfDay) error
}

// SchedulerHandler scheduler HTTP endpoints
type SchedulerHandler struct {
	svc    SchedulerAPI
	logger *zap.Logger
}

// NewSchedulerHandler creates a scheduler handler
func NewSchedulerHandler(svc SchedulerAPI, logger *zap.Logger) *SchedulerHandler {
	return &SchedulerHandler{
		svc:    svc,
		logger: logger,
	}
}

// RunTick triggers one reconciliation tick
// POST /scheduler/api/v1/tick
// body: {"station_id": "...", "now": "2025-03-10T10:00:00Z"} (both optional;
// "now" overrides the tick time for replay and testing)
func (h *SchedulerHandler) RunTick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StationID string `json:"station_id"`
		Now       string `json:"now"`
	}
	if err := readBodyJSON(r, 1<<16, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	now := time.Now()
	if req.Now != "" {
		parsed, err := time.Parse(time.RFC3339, req.Now)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("now must be RFC3339"))
			return
		}
		now = parsed
	}

	reports, err := h.svc.RunTick(r.Context(), now, req.StationID)
	if err != nil {
		h.logger.Error("Tick failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(reports))
}

// GetLatestReport returns the cached report of the last tick
// GET /scheduler/api/v1/report/latest?station_id=...
func (h *SchedulerHandler) GetLatestReport(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	if stationID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("station_id is required"))
		return
	}

	report, err := h.svc.GetLatestReport(r.Context(), stationID)
	if err != nil {
		if errors.Is(err, service.ErrNoReport) {
			writeJSON(w, http.StatusNotFound, Fail("no report available"))
			return
		}
		h.logger.Error("Failed to get latest report", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(report))
}

// GetRooms returns the cached per-room occupancy view
// GET /scheduler/api/v1/rooms?station_id=...
func (h *SchedulerHandler) GetRooms(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	if stationID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("station_id is required"))
		return
	}

	rooms, err := h.svc.GetRooms(r.Context(), stationID)
	if err != nil {
		if errors.Is(err, service.ErrNoReport) {
			writeJSON(w, http.StatusNotFound, Fail("no room view available"))
			return
		}
		h.logger.Error("Failed to get rooms", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(rooms))
}

// IntakePatient creates a patient journey for one day
// POST /scheduler/api/v1/patients/intake
// body: {"hn": "...", "appointment_date": "2025-03-10", "procedure_ids": ["..."]}
func (h *SchedulerHandler) IntakePatient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HN              string   `json:"hn"`
		AppointmentDate string   `json:"appointment_date"`
		ProcedureIDs    []string `json:"procedure_ids"`
	}
	if err := readBodyJSON(r, 1<<16, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	date, err := time.Parse("2006-01-02", req.AppointmentDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("appointment_date must be YYYY-MM-DD"))
		return
	}

	steps, err := h.svc.IntakePatient(req.HN, date, req.ProcedureIDs)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(steps))
}

// CompleteStep finishes an in_process step now
// POST /scheduler/api/v1/steps/complete  body: {"step_id": "..."}
func (h *SchedulerHandler) CompleteStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StepID string `json:"step_id"`
	}
	if err := readBodyJSON(r, 1<<16, &req); err != nil || req.StepID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("step_id is required"))
		return
	}

	if err := h.svc.CompleteStepNow(req.StepID, time.Now()); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeJSON(w, http.StatusNotFound, Fail("step not found"))
		case errors.Is(err, repository.ErrLostRace):
			writeJSON(w, http.StatusConflict, Fail("step is not in process"))
		default:
			h.logger.Error("Failed to complete step", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		}
		return
	}

	writeJSON(w, http.StatusOK, Ok(req.StepID))
}

// GrantOvertime extends a person's working window for today
// POST /scheduler/api/v1/persons/overtime
// body: {"person_id": "...", "until": "19:00"}
func (h *SchedulerHandler) GrantOvertime(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PersonID string `json:"person_id"`
		Until    string `json:"until"`
	}
	if err := readBodyJSON(r, 1<<16, &req); err != nil || req.PersonID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("person_id is required"))
		return
	}

	until, err := domain.ParseTimeOfDay(req.Until)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("until must be HH:MM or HH:MM:SS"))
		return
	}

	if err := h.svc.GrantOvertime(req.PersonID, until); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("person not found"))
			return
		}
		h.logger.Error("Failed to grant overtime", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(req.PersonID))
}
