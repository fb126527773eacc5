package ledger

import (
	"testing"

	"station-scheduler/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoRooms() *Ledger {
	return New([]domain.Room{
		{RoomID: "room-1", StationID: "station-1", RoomName: "R1"},
		{RoomID: "room-2", StationID: "station-1", RoomName: "R2"},
	})
}

func TestOccupy_PerClassExclusivity(t *testing.T) {
	l := twoRooms()

	require.NoError(t, l.Occupy("room-1", Occupant{ID: "staff-1", Class: ClassStaff}))

	// same class is rejected
	err := l.Occupy("room-1", Occupant{ID: "staff-2", Class: ClassStaff})
	assert.ErrorIs(t, err, ErrRoomOccupied)

	// a doctor and a patient can share the room with the staff member
	assert.NoError(t, l.Occupy("room-1", Occupant{ID: "doc-1", Class: ClassDoctor}))
	assert.NoError(t, l.Occupy("room-1", Occupant{ID: "hn-100", Class: ClassPatient}))

	assert.False(t, l.IsEmpty("room-1", ClassStaff))
	assert.False(t, l.IsEmpty("room-1", ClassDoctor))
	assert.False(t, l.IsEmpty("room-1", ClassPatient))
	assert.True(t, l.IsEmpty("room-2", ClassStaff))
}

func TestOccupy_AlreadyAssigned(t *testing.T) {
	l := twoRooms()
	occ := Occupant{ID: "staff-1", Class: ClassStaff}

	require.NoError(t, l.Occupy("room-1", occ))
	err := l.Occupy("room-2", occ)
	assert.ErrorIs(t, err, ErrAlreadyAssigned)

	// re-occupying the same room is a no-op
	assert.NoError(t, l.Occupy("room-1", occ))
}

func TestOccupy_UnknownRoom(t *testing.T) {
	l := twoRooms()
	err := l.Occupy("room-404", Occupant{ID: "staff-1", Class: ClassStaff})
	assert.ErrorIs(t, err, ErrUnknownRoom)
}

func TestVacate_Idempotent(t *testing.T) {
	l := twoRooms()
	occ := Occupant{ID: "staff-1", Class: ClassStaff}
	require.NoError(t, l.Occupy("room-1", occ))

	roomID, had := l.Vacate(occ)
	assert.True(t, had)
	assert.Equal(t, "room-1", roomID)
	assert.True(t, l.IsEmpty("room-1", ClassStaff))

	_, had = l.Vacate(occ)
	assert.False(t, had)

	// the slot is reusable after vacating
	assert.NoError(t, l.Occupy("room-1", Occupant{ID: "staff-2", Class: ClassStaff}))
}

func TestSeed_ReportsCorruptOccupancy(t *testing.T) {
	l := twoRooms()
	require.NoError(t, l.Seed("room-1", Occupant{ID: "staff-1", Class: ClassStaff}))

	err := l.Seed("room-1", Occupant{ID: "staff-2", Class: ClassStaff})
	assert.ErrorIs(t, err, ErrRoomOccupied)

	// first occupant stays in place
	id, taken := l.Occupant("room-1", ClassStaff)
	assert.True(t, taken)
	assert.Equal(t, "staff-1", id)
}

func TestEquipmentActive(t *testing.T) {
	l := twoRooms()

	monitor := domain.Equipment{EquipmentID: "eq-1", RoomID: "room-1", RequireStaff: true}
	lamp := domain.Equipment{EquipmentID: "eq-2", RoomID: "room-1", RequireStaff: false}

	// staff-required equipment follows staff occupancy
	assert.False(t, l.EquipmentActive(monitor))
	assert.True(t, l.EquipmentActive(lamp))

	require.NoError(t, l.Occupy("room-1", Occupant{ID: "staff-1", Class: ClassStaff}))
	assert.True(t, l.EquipmentActive(monitor))

	// a doctor alone does not activate staff-required equipment
	l.Vacate(Occupant{ID: "staff-1", Class: ClassStaff})
	require.NoError(t, l.Occupy("room-1", Occupant{ID: "doc-1", Class: ClassDoctor}))
	assert.False(t, l.EquipmentActive(monitor))
}

func TestRoomOf(t *testing.T) {
	l := twoRooms()
	occ := Occupant{ID: "doc-1", Class: ClassDoctor}

	_, ok := l.RoomOf(occ)
	assert.False(t, ok)

	require.NoError(t, l.Occupy("room-2", occ))
	roomID, ok := l.RoomOf(occ)
	assert.True(t, ok)
	assert.Equal(t, "room-2", roomID)
}
