package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"station-scheduler/internal/config"
	"station-scheduler/internal/domain"
	"station-scheduler/internal/repository"
	"station-scheduler/internal/scheduler"
	"station-scheduler/internal/sequencer"
	"station-scheduler/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeKV in-memory KV store for tests
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.data[key]
	if !ok {
		return "", store.ErrMiss
	}
	return val, nil
}

func (f *fakeKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

type fakeResolver struct {
	names map[string]string
}

func (f *fakeResolver) ResolveProcedureName(procedureID string) (string, bool, error) {
	name, ok := f.names[procedureID]
	if !ok {
		return domain.PlaceholderProcedureName, false, nil
	}
	return name, true, nil
}

func setupService(t *testing.T) (*SchedulerService, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	cfg := &config.Config{}
	cfg.Scheduler.ReportTTL = 300

	return &SchedulerService{
		config:     cfg,
		logger:     logger,
		db:         db,
		kv:         newFakeKV(),
		personRepo: repository.NewPersonRepository(db, logger),
		roomRepo:   repository.NewRoomRepository(db, logger),
		equipRepo:  repository.NewEquipmentRepository(db, logger),
		stepRepo:   repository.NewPatientStepRepository(db, logger),
		reconciler: scheduler.NewReconciler(logger),
		sequencer:  sequencer.NewSequencer(logger),
		hisClient: &fakeResolver{names: map[string]string{
			"XRAY": "Chest X-Ray",
		}},
	}, mock
}

func TestIntakePatient_BuildsJourneyWithBookends(t *testing.T) {
	svc, mock := setupService(t)

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	for i := 0; i < 4; i++ {
		mock.ExpectExec(`INSERT INTO patient_steps`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	steps, err := svc.IntakePatient("HN001", date, []string{"XRAY"})

	require.NoError(t, err)
	require.Len(t, steps, 4)

	assert.Equal(t, domain.ProcedurePayment, steps[0].ProcedureID)
	assert.Equal(t, 1, steps[0].RunningNumber)
	assert.Equal(t, "XRAY", steps[1].ProcedureID)
	assert.Equal(t, "Chest X-Ray", steps[1].ProcedureName)
	assert.True(t, steps[1].Mapped)
	assert.Equal(t, domain.ProcedurePharmacy, steps[2].ProcedureID)
	assert.Equal(t, domain.ProcedureDischarge, steps[3].ProcedureID)
	assert.Equal(t, 4, steps[3].RunningNumber)

	for _, st := range steps {
		assert.Equal(t, domain.StepWaiting, st.Status)
		assert.Equal(t, "HN001", st.HN)
		assert.NotEmpty(t, st.StepID)
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntakePatient_UnmappedProcedureGetsPlaceholder(t *testing.T) {
	svc, mock := setupService(t)

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	for i := 0; i < 4; i++ {
		mock.ExpectExec(`INSERT INTO patient_steps`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	steps, err := svc.IntakePatient("HN001", date, []string{"UNKNOWN-77"})

	require.NoError(t, err)
	assert.Equal(t, domain.PlaceholderProcedureName, steps[1].ProcedureName)
	assert.False(t, steps[1].Mapped)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntakePatient_RequiresProcedures(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.IntakePatient("HN001", time.Now(), nil)
	assert.Error(t, err)

	_, err = svc.IntakePatient("", time.Now(), []string{"XRAY"})
	assert.Error(t, err)
}

func TestCompleteStepNow_OnTimeHasZeroWait(t *testing.T) {
	svc, mock := setupService(t)

	now := time.Date(2025, 3, 10, 9, 45, 0, 0, time.UTC)
	target := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	columns := []string{
		"step_id", "hn", "appointment_date", "running_number",
		"procedure_id", "procedure_name", "mapped",
		"room_id", "status", "arrival_time",
		"time_start", "time_target", "actual_time", "actual_wait_minutes",
	}
	mock.ExpectQuery(`SELECT step_id`).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("s-1", "HN001", now, 2, "XRAY", "Chest X-Ray", true,
				"room-1", "in_process", nil, nil, target, nil, nil))
	mock.ExpectExec(`UPDATE patient_steps`).
		WithArgs("s-1", now, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.CompleteStepNow("s-1", now)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteStepNow_LateRecordsOvershoot(t *testing.T) {
	svc, mock := setupService(t)

	target := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	now := target.Add(15 * time.Minute)

	columns := []string{
		"step_id", "hn", "appointment_date", "running_number",
		"procedure_id", "procedure_name", "mapped",
		"room_id", "status", "arrival_time",
		"time_start", "time_target", "actual_time", "actual_wait_minutes",
	}
	mock.ExpectQuery(`SELECT step_id`).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("s-1", "HN001", now, 2, "XRAY", "Chest X-Ray", true,
				"room-1", "in_process", nil, nil, target, nil, nil))
	mock.ExpectExec(`UPDATE patient_steps`).
		WithArgs("s-1", now, 15).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.CompleteStepNow("s-1", now)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestReport_MissReturnsErrNoReport(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.GetLatestReport(context.Background(), "st-1")
	assert.ErrorIs(t, err, ErrNoReport)
}

func TestGrantOvertime_RejectsZero(t *testing.T) {
	svc, _ := setupService(t)

	err := svc.GrantOvertime("p-1", 0)
	assert.Error(t, err)
}
