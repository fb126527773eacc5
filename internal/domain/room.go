package domain

// Station an organizational unit with its own rooms, personnel and procedures
type Station struct {
	StationID   string `db:"station_id"`   // UUID, PRIMARY KEY
	StationName string `db:"station_name"` // VARCHAR(100), NOT NULL
}

// Room a physical location within a station (corresponds to the rooms table).
// A room can hold at most one staff member, one doctor and one patient at the
// same time; exclusivity is per resource class.
type Room struct {
	RoomID    string `db:"room_id"`    // UUID, PRIMARY KEY
	StationID string `db:"station_id"` // UUID, NOT NULL, FK to stations
	RoomName  string `db:"room_name"`  // VARCHAR(50), NOT NULL
}

// RoomProcedure one procedure capability of a room (room_procedures table).
// Either AllFromStation is true and ProcedureID is empty (the room accepts
// every procedure its station defines), or ProcedureID names one procedure.
type RoomProcedure struct {
	RoomID         string `db:"room_id"`          // UUID, NOT NULL, FK to rooms
	ProcedureID    string `db:"procedure_id"`     // VARCHAR(20), nullable
	AllFromStation bool   `db:"all_from_station"` // BOOLEAN, NOT NULL, DEFAULT FALSE
}

// Equipment a piece of equipment installed in a room (equipment table).
// Equipment with RequireStaff is only active while its room has a staff
// occupant; the flag is a pure projection of occupancy.
type Equipment struct {
	EquipmentID   string `db:"equipment_id"`   // UUID, PRIMARY KEY
	RoomID        string `db:"room_id"`        // UUID, NOT NULL, FK to rooms
	EquipmentName string `db:"equipment_name"` // VARCHAR(100), NOT NULL
	RequireStaff  bool   `db:"require_staff"`  // BOOLEAN, NOT NULL, DEFAULT FALSE
	IsActive      bool   `db:"is_active"`      // BOOLEAN, NOT NULL, DEFAULT TRUE
}
