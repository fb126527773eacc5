package domain

import "time"

// PersonRole resource class of a rostered person
type PersonRole string

const (
	RoleStaff  PersonRole = "staff"
	RoleDoctor PersonRole = "doctor"
)

// PersonStatus operational status derived from wall-clock time and room occupancy
type PersonStatus string

const (
	StatusWaitingToStart PersonStatus = "waiting_to_start"
	StatusAvailable      PersonStatus = "available"
	StatusWorking        PersonStatus = "working"
	StatusOvertime       PersonStatus = "overtime"
	StatusOnBreak        PersonStatus = "on_break"
	StatusOffDuty        PersonStatus = "off_duty"
)

// Person a staff member or doctor rostered on a station for one work date
// (corresponds to the persons table)
type Person struct {
	PersonID   string     `db:"person_id"`   // UUID, PRIMARY KEY
	StationID  string     `db:"station_id"`  // UUID, NOT NULL, FK to stations
	PersonName string     `db:"person_name"` // VARCHAR(100), NOT NULL
	Role       PersonRole `db:"role"`        // VARCHAR(10), NOT NULL ('staff'/'doctor')

	// Work date this roster row applies to
	WorkDate time.Time `db:"work_date"` // DATE, NOT NULL

	// Daily schedule (flattened ScheduleWindow columns)
	Schedule ScheduleWindow

	// Current room held by this person, NULL when unassigned
	AssignedRoomID *string `db:"assigned_room_id"` // UUID, nullable, FK to rooms

	// Last classified status; recomputed every tick
	Status PersonStatus `db:"status"` // VARCHAR(20), NOT NULL

	// Soft-delete flag; rows are never hard-deleted while referenced
	IsActive bool `db:"is_active"` // BOOLEAN, NOT NULL, DEFAULT TRUE
}
