package domain

import "time"

// ReportAction kind of mutation recorded in a tick report detail line
type ReportAction string

const (
	ActionStatusChanged ReportAction = "status_changed"
	ActionEvicted       ReportAction = "evicted"
	ActionAssigned      ReportAction = "assigned"
	ActionStepStarted   ReportAction = "step_started"
	ActionStepCompleted ReportAction = "step_completed"
	ActionEquipment     ReportAction = "equipment_flipped"
	ActionLostRace      ReportAction = "lost_race"
)

// ReportLine one per-record detail line of a tick report
type ReportLine struct {
	Action  ReportAction `json:"action"`
	Class   string       `json:"class"`              // "staff", "doctor" or "patient"
	Subject string       `json:"subject"`            // person id or patient hn
	RoomID  string       `json:"room_id,omitempty"`
	Detail  string       `json:"detail,omitempty"`
}

// TickReport structured summary of one scheduler tick for one station,
// consumed by logging and observability outside the scheduling core.
type TickReport struct {
	ReportID  string    `json:"report_id"`
	StationID string    `json:"station_id"`
	TickTime  time.Time `json:"tick_time"`

	Evicted        int `json:"evicted"`
	Assigned       int `json:"assigned"`
	StepsStarted   int `json:"steps_started"`
	StepsCompleted int `json:"steps_completed"`

	// Rooms needing an occupant that stayed empty, and idle persons that
	// stayed unassigned. Both are reported, neither is an error.
	UnmatchedRooms []string `json:"unmatched_rooms,omitempty"`
	UnmatchedIdle  []string `json:"unmatched_idle,omitempty"`

	// Waiting steps that are ready but have no capable room
	Backlog []string `json:"backlog,omitempty"`

	// Data-integrity findings (duplicate running numbers and the like)
	Warnings []string `json:"warnings,omitempty"`

	Lines []ReportLine `json:"lines,omitempty"`
}
