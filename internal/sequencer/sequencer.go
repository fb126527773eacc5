// Package sequencer advances patients through their ordered procedure steps.
// A step may only enter a room once every earlier step of the same journey is
// completed, and only into a room whose declared capabilities cover the
// step's procedure. Patients occupy rooms through the same ledger as
// personnel, under the patient resource class.
package sequencer

import (
	"fmt"
	"sort"
	"time"

	"station-scheduler/internal/domain"
	"station-scheduler/internal/ledger"

	"go.uber.org/zap"
)

// Completion an in_process step that reached its target and finished
type Completion struct {
	StepID      string
	HN          string
	RoomID      string
	ActualTime  time.Time
	WaitMinutes int // minutes past time_target, never negative
}

// Start a waiting step admitted into a room
type Start struct {
	StepID      string
	HN          string
	RoomID      string
	ArrivalTime time.Time
}

// Result intents computed for one station's patient flow
type Result struct {
	Completions []Completion
	Starts      []Start
	// Steps that are ready but found no capable empty room; a visible
	// backlog, not an error
	Backlog  []string
	Warnings []string
}

// Sequencer drives the waiting → in_process → completed state machine
type Sequencer struct {
	logger *zap.Logger
}

func NewSequencer(logger *zap.Logger) *Sequencer {
	return &Sequencer{logger: logger}
}

type journeyKey struct {
	hn   string
	date string
}

// Sequence runs one tick of patient flow for one station. steps holds every
// step of the appointment date (all patients, all stations) so that journey
// gating sees the full picture; starts and completions are restricted to
// this station's rooms.
func (s *Sequencer) Sequence(
	now time.Time,
	steps []domain.PatientStep,
	rooms []domain.Room,
	procedures []domain.RoomProcedure,
	led *ledger.Ledger,
) *Result {
	res := &Result{}

	stationRooms := make(map[string]bool, len(rooms))
	for _, r := range rooms {
		stationRooms[r.RoomID] = true
	}

	journeys := groupJourneys(steps)
	for _, key := range sortedKeys(journeys) {
		res.Warnings = append(res.Warnings, integrityWarnings(key, journeys[key])...)
	}

	// Phase 1: complete overdue in_process steps, freeing their rooms for
	// waiting steps later in the same tick.
	for _, key := range sortedKeys(journeys) {
		for _, st := range journeys[key] {
			if st.Status != domain.StepInProcess || st.RoomID == nil || !stationRooms[*st.RoomID] {
				continue
			}
			if st.TimeTarget == nil || now.Before(*st.TimeTarget) {
				continue
			}
			wait := int(now.Sub(*st.TimeTarget).Minutes())
			if wait < 0 {
				wait = 0
			}
			led.Vacate(ledger.Occupant{ID: st.StepID, Class: ledger.ClassPatient})
			res.Completions = append(res.Completions, Completion{
				StepID:      st.StepID,
				HN:          st.HN,
				RoomID:      *st.RoomID,
				ActualTime:  now,
				WaitMinutes: wait,
			})
			s.logger.Debug("completing overdue step",
				zap.String("step_id", st.StepID),
				zap.String("hn", st.HN),
				zap.Int("wait_minutes", wait),
			)
		}
	}

	completedNow := make(map[string]bool, len(res.Completions))
	for _, c := range res.Completions {
		completedNow[c.StepID] = true
	}

	// Phase 2: admit ready steps. Per journey at most one step can be ready:
	// the first step whose predecessors are all completed.
	var ready []domain.PatientStep
	for _, key := range sortedKeys(journeys) {
		if st, ok := nextReadyStep(now, journeys[key], completedNow); ok {
			ready = append(ready, st)
		}
	}

	// Earliest time_start first (absent means immediately eligible), ties by
	// lowest running number, then hn for a stable order.
	sort.Slice(ready, func(i, j int) bool {
		ti, tj := startOrZero(ready[i]), startOrZero(ready[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		if ready[i].RunningNumber != ready[j].RunningNumber {
			return ready[i].RunningNumber < ready[j].RunningNumber
		}
		return ready[i].HN < ready[j].HN
	})

	sortedRooms := make([]domain.Room, len(rooms))
	copy(sortedRooms, rooms)
	sort.Slice(sortedRooms, func(i, j int) bool {
		if sortedRooms[i].RoomName != sortedRooms[j].RoomName {
			return sortedRooms[i].RoomName < sortedRooms[j].RoomName
		}
		return sortedRooms[i].RoomID < sortedRooms[j].RoomID
	})

	for _, st := range ready {
		roomID, found := s.matchRoom(st, sortedRooms, procedures, led)
		if !found {
			res.Backlog = append(res.Backlog, st.StepID)
			continue
		}
		if err := led.Occupy(roomID, ledger.Occupant{ID: st.StepID, Class: ledger.ClassPatient}); err != nil {
			s.logger.Warn("patient admission failed, skipping",
				zap.String("step_id", st.StepID),
				zap.String("room_id", roomID),
				zap.Error(err),
			)
			continue
		}
		res.Starts = append(res.Starts, Start{
			StepID:      st.StepID,
			HN:          st.HN,
			RoomID:      roomID,
			ArrivalTime: now,
		})
	}

	return res
}

// matchRoom finds the first empty room (patient class) whose capabilities
// cover the step's procedure
func (s *Sequencer) matchRoom(
	st domain.PatientStep,
	sortedRooms []domain.Room,
	procedures []domain.RoomProcedure,
	led *ledger.Ledger,
) (string, bool) {
	capable := make(map[string]bool)
	for _, rp := range procedures {
		if rp.AllFromStation || rp.ProcedureID == st.ProcedureID {
			capable[rp.RoomID] = true
		}
	}
	for _, room := range sortedRooms {
		if capable[room.RoomID] && led.IsEmpty(room.RoomID, ledger.ClassPatient) {
			return room.RoomID, true
		}
	}
	return "", false
}

// nextReadyStep walks one journey in running-number order and returns its
// single admissible step, if any. Steps just completed in this tick count as
// completed; ambiguous rows (actual_time without completed status) block
// everything after them.
func nextReadyStep(now time.Time, journey []domain.PatientStep, completedNow map[string]bool) (domain.PatientStep, bool) {
	for _, st := range journey {
		if st.CompletedForGating() || completedNow[st.StepID] {
			continue
		}
		if st.Status != domain.StepWaiting || st.ActualTime != nil {
			return domain.PatientStep{}, false // in_process or ambiguous: wait for it
		}
		if !st.Mapped {
			return domain.PatientStep{}, false // unmapped steps never auto-match
		}
		if st.TimeStart != nil && now.Before(*st.TimeStart) {
			return domain.PatientStep{}, false
		}
		return st, true
	}
	return domain.PatientStep{}, false
}

func startOrZero(st domain.PatientStep) time.Time {
	if st.TimeStart == nil {
		return time.Time{}
	}
	return *st.TimeStart
}

func groupJourneys(steps []domain.PatientStep) map[journeyKey][]domain.PatientStep {
	journeys := make(map[journeyKey][]domain.PatientStep)
	for _, st := range steps {
		key := journeyKey{hn: st.HN, date: st.AppointmentDate.Format("2006-01-02")}
		journeys[key] = append(journeys[key], st)
	}
	for key := range journeys {
		j := journeys[key]
		sort.Slice(j, func(a, b int) bool { return j[a].RunningNumber < j[b].RunningNumber })
		journeys[key] = j
	}
	return journeys
}

func sortedKeys(journeys map[journeyKey][]domain.PatientStep) []journeyKey {
	keys := make([]journeyKey, 0, len(journeys))
	for key := range journeys {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].hn != keys[j].hn {
			return keys[i].hn < keys[j].hn
		}
		return keys[i].date < keys[j].date
	})
	return keys
}

// integrityWarnings surfaces data problems the sequencer refuses to advance
// past: duplicate running numbers and completion timestamps on steps whose
// status disagrees.
func integrityWarnings(key journeyKey, journey []domain.PatientStep) []string {
	var warnings []string
	seen := make(map[int]bool)
	for _, st := range journey {
		if seen[st.RunningNumber] {
			warnings = append(warnings, fmt.Sprintf(
				"patient %s %s: duplicate running_number %d", key.hn, key.date, st.RunningNumber))
		}
		seen[st.RunningNumber] = true
		if st.ActualTime != nil && st.Status != domain.StepCompleted {
			warnings = append(warnings, fmt.Sprintf(
				"patient %s %s: step %d has actual_time but status %s", key.hn, key.date, st.RunningNumber, st.Status))
		}
	}
	return warnings
}
