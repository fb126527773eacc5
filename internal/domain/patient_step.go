package domain

import "time"

// StepStatus state of one patient procedure step.
// Legal transitions: waiting → in_process → completed. A step never regresses.
type StepStatus string

const (
	StepWaiting   StepStatus = "waiting"
	StepInProcess StepStatus = "in_process"
	StepCompleted StepStatus = "completed"
)

// Fixed bookend procedures appended to every patient journey at intake
const (
	ProcedurePayment   = "PAYMENT"
	ProcedurePharmacy  = "PHARMACY"
	ProcedureDischarge = "DISCHARGE"
)

// PlaceholderProcedureName is used when the HIS has no mapping for a
// procedure id; unmapped steps are excluded from automatic room matching.
const PlaceholderProcedureName = "(unmapped procedure)"

// PatientStep one ordered step of a patient's daily journey
// (corresponds to the patient_steps table). Rows are never deleted; completed
// steps remain as the audit trail.
type PatientStep struct {
	StepID string `db:"step_id"` // UUID, PRIMARY KEY

	// HN + appointment date co-identify one patient journey
	HN              string    `db:"hn"`               // VARCHAR(20), NOT NULL
	AppointmentDate time.Time `db:"appointment_date"` // DATE, NOT NULL

	// 1-based position of this step inside the journey
	RunningNumber int `db:"running_number"` // INT, NOT NULL

	ProcedureID   string `db:"procedure_id"`   // VARCHAR(20), NOT NULL
	ProcedureName string `db:"procedure_name"` // VARCHAR(200), NOT NULL
	// Mapped is false when the procedure id could not be resolved against the
	// HIS; such steps keep a placeholder name and never auto-match a room.
	Mapped bool `db:"mapped"` // BOOLEAN, NOT NULL, DEFAULT TRUE

	// Room currently processing this step, NULL unless in_process
	RoomID *string `db:"room_id"` // UUID, nullable, FK to rooms

	Status StepStatus `db:"status"` // VARCHAR(20), NOT NULL, DEFAULT 'waiting'

	// Stamped when the step enters a room
	ArrivalTime *time.Time `db:"arrival_time"` // TIMESTAMPTZ, nullable

	// Earliest moment the step may start; NULL means immediately eligible
	TimeStart *time.Time `db:"time_start"` // TIMESTAMPTZ, nullable

	// Completion deadline; reaching it auto-completes the step
	TimeTarget *time.Time `db:"time_target"` // TIMESTAMPTZ, nullable

	// Set exactly once, on completion
	ActualTime *time.Time `db:"actual_time"` // TIMESTAMPTZ, nullable

	// Minutes finished past TimeTarget; never negative, 0 when on time
	ActualWaitMinutes *int `db:"actual_wait_minutes"` // INT, nullable
}

// CompletedForGating reports whether this step counts as completed when
// gating later steps of the same journey. A step with actual_time set but a
// status other than completed is ambiguous and conservatively treated as not
// completed.
func (s *PatientStep) CompletedForGating() bool {
	return s.Status == StepCompleted && s.ActualTime != nil
}
