package repository

import (
	"database/sql"
	"fmt"
	"time"

	"station-scheduler/internal/domain"

	"go.uber.org/zap"
)

// PatientStepRepository patient_steps table access
type PatientStepRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPatientStepRepository creates a new patient step repository
func NewPatientStepRepository(db *sql.DB, logger *zap.Logger) *PatientStepRepository {
	return &PatientStepRepository{
		db:     db,
		logger: logger,
	}
}

// ListByDate gets every step of every journey for one appointment date.
// Journey gating needs the full picture, so this is not filtered by station.
func (r *PatientStepRepository) ListByDate(date time.Time) ([]domain.PatientStep, error) {
	query := `
		SELECT step_id, hn, appointment_date, running_number,
		       procedure_id, procedure_name, mapped,
		       room_id, status, arrival_time,
		       time_start, time_target, actual_time, actual_wait_minutes
		FROM patient_steps
		WHERE appointment_date = $1
		ORDER BY hn, running_number`

	rows, err := r.db.Query(query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query patient steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.PatientStep
	for rows.Next() {
		var st domain.PatientStep
		var waitMinutes sql.NullInt64
		if err := rows.Scan(
			&st.StepID, &st.HN, &st.AppointmentDate, &st.RunningNumber,
			&st.ProcedureID, &st.ProcedureName, &st.Mapped,
			&st.RoomID, &st.Status, &st.ArrivalTime,
			&st.TimeStart, &st.TimeTarget, &st.ActualTime, &waitMinutes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan patient step: %w", err)
		}
		if waitMinutes.Valid {
			w := int(waitMinutes.Int64)
			st.ActualWaitMinutes = &w
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patient steps: %w", err)
	}

	return steps, nil
}

// GetStep gets one step by id
func (r *PatientStepRepository) GetStep(stepID string) (*domain.PatientStep, error) {
	query := `
		SELECT step_id, hn, appointment_date, running_number,
		       procedure_id, procedure_name, mapped,
		       room_id, status, arrival_time,
		       time_start, time_target, actual_time, actual_wait_minutes
		FROM patient_steps
		WHERE step_id = $1`

	var st domain.PatientStep
	var waitMinutes sql.NullInt64
	err := r.db.QueryRow(query, stepID).Scan(
		&st.StepID, &st.HN, &st.AppointmentDate, &st.RunningNumber,
		&st.ProcedureID, &st.ProcedureName, &st.Mapped,
		&st.RoomID, &st.Status, &st.ArrivalTime,
		&st.TimeStart, &st.TimeTarget, &st.ActualTime, &waitMinutes,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	if waitMinutes.Valid {
		w := int(waitMinutes.Int64)
		st.ActualWaitMinutes = &w
	}

	return &st, nil
}

// StartStep moves a waiting step into a room, guarded so that the step is
// still waiting, the room is not processing another step, and every earlier
// step of the journey carries a completion timestamp. The last guard holds
// the sequential-flow invariant even when a completion write planned in the
// same tick did not land. Returns ErrLostRace when any guard fails.
func (r *PatientStepRepository) StartStep(stepID, roomID string, arrival time.Time) error {
	query := `
		UPDATE patient_steps
		SET room_id = $2, status = 'in_process', arrival_time = $3, updated_at = NOW()
		WHERE step_id = $1
		  AND status = 'waiting'
		  AND NOT EXISTS (
			SELECT 1 FROM patient_steps p2
			WHERE p2.room_id = $2
			  AND p2.status = 'in_process'
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM patient_steps p3
			WHERE p3.hn = patient_steps.hn
			  AND p3.appointment_date = patient_steps.appointment_date
			  AND p3.running_number < patient_steps.running_number
			  AND p3.actual_time IS NULL
		  )`

	result, err := r.db.Exec(query, stepID, roomID, arrival)
	if err != nil {
		return fmt.Errorf("failed to start step: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrLostRace
	}

	return nil
}

// CompleteStep finishes an in_process step, stamping the completion time
// and overshoot exactly once. Returns ErrLostRace when the step is no
// longer in_process.
func (r *PatientStepRepository) CompleteStep(stepID string, actual time.Time, waitMinutes int) error {
	query := `
		UPDATE patient_steps
		SET status = 'completed', room_id = NULL,
		    actual_time = $2, actual_wait_minutes = $3, updated_at = NOW()
		WHERE step_id = $1
		  AND status = 'in_process'`

	result, err := r.db.Exec(query, stepID, actual, waitMinutes)
	if err != nil {
		return fmt.Errorf("failed to complete step: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrLostRace
	}

	return nil
}

// CreateJourney inserts all steps of a new patient journey atomically
func (r *PatientStepRepository) CreateJourney(steps []domain.PatientStep) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO patient_steps
			(step_id, hn, appointment_date, running_number,
			 procedure_id, procedure_name, mapped, status, time_start, time_target)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for _, st := range steps {
		if _, err := tx.Exec(query,
			st.StepID, st.HN, st.AppointmentDate, st.RunningNumber,
			st.ProcedureID, st.ProcedureName, st.Mapped, st.Status,
			st.TimeStart, st.TimeTarget,
		); err != nil {
			return fmt.Errorf("failed to insert step %d for %s: %w", st.RunningNumber, st.HN, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journey: %w", err)
	}

	return nil
}
