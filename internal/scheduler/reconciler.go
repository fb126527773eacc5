// Package scheduler reconciles rostered persons against room occupancy for
// one station at one tick. It re-classifies every active person, evicts
// break/shift-end occupants before anything else, then greedily fills rooms
// that need an occupant from the idle pool. The reconciler is stateless
// between ticks; everything it needs is in the snapshot and the ledger.
package scheduler

import (
	"sort"
	"time"

	"station-scheduler/internal/domain"
	"station-scheduler/internal/ledger"
	"station-scheduler/internal/schedule"

	"go.uber.org/zap"
)

// StatusChange a person whose classified status differs from the stored one
type StatusChange struct {
	PersonID string
	From     domain.PersonStatus
	To       domain.PersonStatus
}

// Eviction a room occupant forced out by break or end of duty
type Eviction struct {
	PersonID  string
	Role      domain.PersonRole
	RoomID    string
	NewStatus domain.PersonStatus
}

// Assignment an idle person paired with an empty room
type Assignment struct {
	PersonID  string
	Role      domain.PersonRole
	RoomID    string
	NewStatus domain.PersonStatus // working, or overtime inside a granted window
}

// Result intents computed for one station; evictions are ordered before
// assignments and must be applied in that order.
type Result struct {
	StatusChanges  []StatusChange
	Evictions      []Eviction
	Assignments    []Assignment
	UnmatchedRooms []string
	UnmatchedIdle  []string
}

// Reconciler computes per-tick intents
type Reconciler struct {
	logger *zap.Logger
}

func NewReconciler(logger *zap.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Reconcile runs one tick for one station over the given snapshot, mutating
// the ledger as it evicts and assigns.
func (r *Reconciler) Reconcile(
	now time.Time,
	persons []domain.Person,
	rooms []domain.Room,
	equipment []domain.Equipment,
	procedures []domain.RoomProcedure,
	led *ledger.Ledger,
) *Result {
	res := &Result{}

	// Stable person order keeps the whole tick deterministic
	ordered := make([]domain.Person, len(persons))
	copy(ordered, persons)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].PersonName != ordered[j].PersonName {
			return ordered[i].PersonName < ordered[j].PersonName
		}
		return ordered[i].PersonID < ordered[j].PersonID
	})

	// Phase 1: re-classify everyone, evicting before any new occupation.
	// Eviction is never deferred, even with no replacement available.
	newStatus := make(map[string]domain.PersonStatus, len(ordered))
	for _, p := range ordered {
		if !p.IsActive {
			continue
		}
		occ := ledger.Occupant{ID: p.PersonID, Class: ledger.ClassOf(p.Role)}
		_, hasRoom := led.RoomOf(occ)
		status := schedule.Classify(now, p.Schedule, hasRoom)
		newStatus[p.PersonID] = status

		if hasRoom && (status == domain.StatusOnBreak || status == domain.StatusOffDuty) {
			roomID, _ := led.Vacate(occ)
			res.Evictions = append(res.Evictions, Eviction{
				PersonID:  p.PersonID,
				Role:      p.Role,
				RoomID:    roomID,
				NewStatus: status,
			})
			r.logger.Debug("evicting room occupant",
				zap.String("person_id", p.PersonID),
				zap.String("room_id", roomID),
				zap.String("new_status", string(status)),
			)
			continue
		}
		if status != p.Status {
			res.StatusChanges = append(res.StatusChanges, StatusChange{
				PersonID: p.PersonID,
				From:     p.Status,
				To:       status,
			})
		}
	}

	// Phase 2: fill rooms per resource class, staff first
	r.fill(now, ordered, newStatus, roomsNeedingStaff(rooms, equipment), domain.RoleStaff, led, res)
	r.fill(now, ordered, newStatus, roomsNeedingDoctor(rooms, procedures), domain.RoleDoctor, led, res)

	return res
}

// fill greedily pairs empty rooms with the idle pool of one class.
// Unmatched rooms and persons are reported, not errors.
func (r *Reconciler) fill(
	now time.Time,
	ordered []domain.Person,
	newStatus map[string]domain.PersonStatus,
	candidateRooms []domain.Room,
	role domain.PersonRole,
	led *ledger.Ledger,
	res *Result,
) {
	class := ledger.ClassOf(role)

	var empty []domain.Room
	for _, room := range candidateRooms {
		if led.IsEmpty(room.RoomID, class) {
			empty = append(empty, room)
		}
	}

	var idle []domain.Person
	for _, p := range ordered {
		if !p.IsActive || p.Role != role {
			continue
		}
		if newStatus[p.PersonID] != domain.StatusAvailable {
			continue
		}
		if _, hasRoom := led.RoomOf(ledger.Occupant{ID: p.PersonID, Class: class}); hasRoom {
			continue
		}
		idle = append(idle, p)
	}

	n := len(empty)
	if len(idle) < n {
		n = len(idle)
	}
	for i := 0; i < n; i++ {
		p := idle[i]
		room := empty[i]
		occ := ledger.Occupant{ID: p.PersonID, Class: class}
		if err := led.Occupy(room.RoomID, occ); err != nil {
			// An individual pairing failure never aborts the rest of the tick
			r.logger.Warn("pairing failed, skipping",
				zap.String("person_id", p.PersonID),
				zap.String("room_id", room.RoomID),
				zap.Error(err),
			)
			continue
		}
		res.Assignments = append(res.Assignments, Assignment{
			PersonID:  p.PersonID,
			Role:      role,
			RoomID:    room.RoomID,
			NewStatus: schedule.Classify(now, p.Schedule, true),
		})
	}

	for _, room := range empty[n:] {
		res.UnmatchedRooms = append(res.UnmatchedRooms, room.RoomID)
	}
	for _, p := range idle[n:] {
		res.UnmatchedIdle = append(res.UnmatchedIdle, p.PersonID)
	}
}

// roomsNeedingStaff returns the rooms that participate in staff assignment:
// only rooms with at least one staff-required equipment take a staffed
// occupant. Sorted by room name for deterministic pairing.
func roomsNeedingStaff(rooms []domain.Room, equipment []domain.Equipment) []domain.Room {
	need := make(map[string]bool)
	for _, eq := range equipment {
		if eq.RequireStaff {
			need[eq.RoomID] = true
		}
	}
	return filterSorted(rooms, need)
}

// roomsNeedingDoctor returns the rooms that participate in doctor assignment:
// rooms declaring any procedure capability are procedure rooms and take a
// doctor.
func roomsNeedingDoctor(rooms []domain.Room, procedures []domain.RoomProcedure) []domain.Room {
	need := make(map[string]bool)
	for _, rp := range procedures {
		need[rp.RoomID] = true
	}
	return filterSorted(rooms, need)
}

func filterSorted(rooms []domain.Room, need map[string]bool) []domain.Room {
	var out []domain.Room
	for _, room := range rooms {
		if need[room.RoomID] {
			out = append(out, room)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoomName != out[j].RoomName {
			return out[i].RoomName < out[j].RoomName
		}
		return out[i].RoomID < out[j].RoomID
	})
	return out
}
