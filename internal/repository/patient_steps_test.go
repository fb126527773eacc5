package repository

import (
	"database/sql"
	"testing"
	"time"

	"station-scheduler/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupStepRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PatientStepRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewPatientStepRepository(db, logger)

	return db, mock, repo
}

func TestListByDate_Success(t *testing.T) {
	db, mock, repo := setupStepRepo(t)
	defer db.Close()

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	target := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	columns := []string{
		"step_id", "hn", "appointment_date", "running_number",
		"procedure_id", "procedure_name", "mapped",
		"room_id", "status", "arrival_time",
		"time_start", "time_target", "actual_time", "actual_wait_minutes",
	}
	rows := sqlmock.NewRows(columns).
		AddRow("s-1", "HN001", date, 1, "PAYMENT", "Payment", true,
			nil, "completed", nil, nil, nil, target, int64(0)).
		AddRow("s-2", "HN001", date, 2, "XRAY", "Chest X-Ray", true,
			"room-1", "in_process", target, nil, target, nil, nil)

	mock.ExpectQuery(`SELECT step_id`).
		WithArgs(date).
		WillReturnRows(rows)

	steps, err := repo.ListByDate(date)

	require.NoError(t, err)
	require.Len(t, steps, 2)

	assert.Equal(t, domain.StepCompleted, steps[0].Status)
	require.NotNil(t, steps[0].ActualWaitMinutes)
	assert.Equal(t, 0, *steps[0].ActualWaitMinutes)

	assert.Equal(t, domain.StepInProcess, steps[1].Status)
	require.NotNil(t, steps[1].RoomID)
	assert.Equal(t, "room-1", *steps[1].RoomID)
	assert.Nil(t, steps[1].ActualWaitMinutes)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartStep_Success(t *testing.T) {
	db, mock, repo := setupStepRepo(t)
	defer db.Close()

	arrival := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE patient_steps`).
		WithArgs("s-1", "room-1", arrival).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.StartStep("s-1", "room-1", arrival)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The UPDATE must refuse to start a step whose predecessors lack a
// completion timestamp, so a completion write that failed to land cannot be
// overtaken by its successor's start in the same tick.
func TestStartStep_GuardsOnPredecessorCompletion(t *testing.T) {
	db, mock, repo := setupStepRepo(t)
	defer db.Close()

	arrival := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	mock.ExpectExec(`(?s)UPDATE patient_steps.*status = 'waiting'.*` +
		`p2\.status = 'in_process'.*` +
		`p3\.running_number < patient_steps\.running_number.*` +
		`p3\.actual_time IS NULL`).
		WithArgs("s-1", "room-1", arrival).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.StartStep("s-1", "room-1", arrival)

	assert.ErrorIs(t, err, ErrLostRace)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartStep_LostRace(t *testing.T) {
	db, mock, repo := setupStepRepo(t)
	defer db.Close()

	arrival := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE patient_steps`).
		WithArgs("s-1", "room-1", arrival).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.StartStep("s-1", "room-1", arrival)

	assert.ErrorIs(t, err, ErrLostRace)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteStep_Success(t *testing.T) {
	db, mock, repo := setupStepRepo(t)
	defer db.Close()

	actual := time.Date(2025, 3, 10, 10, 15, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE patient_steps`).
		WithArgs("s-1", actual, 15).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CompleteStep("s-1", actual, 15)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteStep_AlreadyCompleted(t *testing.T) {
	db, mock, repo := setupStepRepo(t)
	defer db.Close()

	actual := time.Date(2025, 3, 10, 10, 15, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE patient_steps`).
		WithArgs("s-1", actual, 15).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CompleteStep("s-1", actual, 15)

	assert.ErrorIs(t, err, ErrLostRace)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJourney_Success(t *testing.T) {
	db, mock, repo := setupStepRepo(t)
	defer db.Close()

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	steps := []domain.PatientStep{
		{StepID: "s-1", HN: "HN001", AppointmentDate: date, RunningNumber: 1,
			ProcedureID: domain.ProcedurePayment, ProcedureName: "Payment",
			Mapped: true, Status: domain.StepWaiting},
		{StepID: "s-2", HN: "HN001", AppointmentDate: date, RunningNumber: 2,
			ProcedureID: "XRAY", ProcedureName: "Chest X-Ray",
			Mapped: true, Status: domain.StepWaiting},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO patient_steps`).
		WithArgs("s-1", "HN001", date, 1, domain.ProcedurePayment, "Payment", true, domain.StepWaiting, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO patient_steps`).
		WithArgs("s-2", "HN001", date, 2, "XRAY", "Chest X-Ray", true, domain.StepWaiting, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CreateJourney(steps)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJourney_RollbackOnFailure(t *testing.T) {
	db, mock, repo := setupStepRepo(t)
	defer db.Close()

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	steps := []domain.PatientStep{
		{StepID: "s-1", HN: "HN001", AppointmentDate: date, RunningNumber: 1,
			ProcedureID: domain.ProcedurePayment, ProcedureName: "Payment",
			Mapped: true, Status: domain.StepWaiting},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO patient_steps`).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.CreateJourney(steps)

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
