// Package ledger is the single source of truth for "which room holds which
// occupant" within one scheduler tick. It is rebuilt from the database
// snapshot at tick start, mutated in memory while the tick computes its
// intents, and the resulting mutations are applied back through conditional
// updates. Exclusivity is per resource class: a room can hold one staff
// member, one doctor and one patient at the same time.
package ledger

import (
	"errors"
	"fmt"

	"station-scheduler/internal/domain"
)

// Class resource class competing for room occupancy
type Class string

const (
	ClassStaff   Class = "staff"
	ClassDoctor  Class = "doctor"
	ClassPatient Class = "patient"
)

var (
	ErrUnknownRoom     = errors.New("room not in ledger")
	ErrRoomOccupied    = errors.New("room already holds an occupant of this class")
	ErrAlreadyAssigned = errors.New("occupant already holds a different room")
)

// ClassOf maps a person role to its ledger class
func ClassOf(role domain.PersonRole) Class {
	if role == domain.RoleDoctor {
		return ClassDoctor
	}
	return ClassStaff
}

// Occupant one party holding (or requesting) a room
type Occupant struct {
	ID    string
	Class Class
}

// Ledger in-memory occupancy view for one station
type Ledger struct {
	rooms     map[string]domain.Room
	occupants map[string]map[Class]string // room id → class → occupant id
	roomOf    map[Occupant]string
}

// New builds an empty ledger over the station's rooms
func New(rooms []domain.Room) *Ledger {
	l := &Ledger{
		rooms:     make(map[string]domain.Room, len(rooms)),
		occupants: make(map[string]map[Class]string, len(rooms)),
		roomOf:    make(map[Occupant]string),
	}
	for _, r := range rooms {
		l.rooms[r.RoomID] = r
		l.occupants[r.RoomID] = make(map[Class]string)
	}
	return l
}

// Seed records occupancy read from the snapshot without invariant errors
// becoming fatal: a second same-class occupant of one room is corrupt data,
// reported upward as a warning and not entered into the ledger.
func (l *Ledger) Seed(roomID string, occ Occupant) error {
	slots, ok := l.occupants[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRoom, roomID)
	}
	if holder, taken := slots[occ.Class]; taken {
		return fmt.Errorf("%w: room %s held by %s and %s", ErrRoomOccupied, roomID, holder, occ.ID)
	}
	slots[occ.Class] = occ.ID
	l.roomOf[occ] = roomID
	return nil
}

// Occupy places occ into the room. Fails with ErrRoomOccupied when the room
// already holds an occupant of the same class, ErrAlreadyAssigned when occ
// already holds a different room.
func (l *Ledger) Occupy(roomID string, occ Occupant) error {
	slots, ok := l.occupants[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRoom, roomID)
	}
	if current, has := l.roomOf[occ]; has && current != roomID {
		return fmt.Errorf("%w: %s holds %s", ErrAlreadyAssigned, occ.ID, current)
	}
	if holder, taken := slots[occ.Class]; taken && holder != occ.ID {
		return fmt.Errorf("%w: %s held by %s", ErrRoomOccupied, roomID, holder)
	}
	slots[occ.Class] = occ.ID
	l.roomOf[occ] = roomID
	return nil
}

// Vacate releases whatever room occ holds. Idempotent: vacating an occupant
// without a room is a no-op.
func (l *Ledger) Vacate(occ Occupant) (roomID string, hadRoom bool) {
	roomID, hadRoom = l.roomOf[occ]
	if !hadRoom {
		return "", false
	}
	delete(l.roomOf, occ)
	if slots, ok := l.occupants[roomID]; ok && slots[occ.Class] == occ.ID {
		delete(slots, occ.Class)
	}
	return roomID, true
}

// IsEmpty reports whether the room holds no occupant of the given class
func (l *Ledger) IsEmpty(roomID string, class Class) bool {
	slots, ok := l.occupants[roomID]
	if !ok {
		return false
	}
	_, taken := slots[class]
	return !taken
}

// Occupant returns the occupant of the given class in the room, if any
func (l *Ledger) Occupant(roomID string, class Class) (string, bool) {
	slots, ok := l.occupants[roomID]
	if !ok {
		return "", false
	}
	id, taken := slots[class]
	return id, taken
}

// RoomOf returns the room occ currently holds, if any
func (l *Ledger) RoomOf(occ Occupant) (string, bool) {
	roomID, ok := l.roomOf[occ]
	return roomID, ok
}

// EquipmentActive projects an equipment availability flag from occupancy:
// equipment requiring staff is active only while its room has a staff
// occupant, everything else is always active. The projection never feeds
// back into occupancy decisions.
func (l *Ledger) EquipmentActive(eq domain.Equipment) bool {
	if !eq.RequireStaff {
		return true
	}
	return !l.IsEmpty(eq.RoomID, ClassStaff)
}
