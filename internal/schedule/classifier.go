// Package schedule derives a person's operational status from wall-clock
// time against their daily schedule. This is the single canonical precedence
// order; every scheduling path classifies through here instead of re-deriving
// status locally.
package schedule

import (
	"time"

	"station-scheduler/internal/domain"
)

// Classify maps (now, schedule, hasRoom) to an operational status.
// Pure, total and deterministic: unset work bounds fall back to the schedule
// defaults, so every input yields a status.
//
// Precedence, first match wins:
//  1. now at/past the effective end of duty → off_duty
//  2. now before work start               → waiting_to_start
//  3. now inside the break window         → on_break
//  4. holding a room → working (overtime once past work_end within a granted
//     overtime window); otherwise → available
func Classify(now time.Time, w domain.ScheduleWindow, hasRoom bool) domain.PersonStatus {
	w = w.Normalized()
	tod := domain.TimeOfDayOf(now)

	if tod >= w.EffectiveEnd() {
		return domain.StatusOffDuty
	}
	if tod < *w.WorkStart {
		return domain.StatusWaitingToStart
	}
	if w.HasBreak() && tod >= *w.BreakStart && tod < *w.BreakEnd {
		return domain.StatusOnBreak
	}
	if hasRoom {
		// Past work_end is only reachable here when an overtime window was
		// granted; rule 1 would have fired otherwise.
		if tod >= *w.WorkEnd {
			return domain.StatusOvertime
		}
		return domain.StatusWorking
	}
	return domain.StatusAvailable
}
