package domain

import (
	"fmt"
	"time"
)

// TimeOfDay wall-clock time within one day, stored as seconds since midnight.
// Schedule columns carry no date component; comparisons between a schedule
// and "now" always happen in the station's local day.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM:SS" or "HH:MM"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		sec = 0
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, fmt.Errorf("invalid time of day: %q", s)
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("time of day out of range: %q", s)
	}
	return TimeOfDay(h*3600 + m*60 + sec), nil
}

// TimeOfDayOf extracts the time-of-day component of t
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", int(t)/3600, int(t)%3600/60, int(t)%60)
}

// Default working hours applied when a roster row has no schedule
const (
	DefaultWorkStart = TimeOfDay(8 * 3600)  // 08:00:00
	DefaultWorkEnd   = TimeOfDay(17 * 3600) // 17:00:00
)

// ScheduleWindow one person's daily schedule. Nil work bounds mean the
// column was NULL and fall back to the defaults; an explicit value, midnight
// included, is honored as written. Consumers go through Normalized.
type ScheduleWindow struct {
	WorkStart   *TimeOfDay `db:"work_start"`   // INT seconds since midnight, nullable, default 08:00:00
	WorkEnd     *TimeOfDay `db:"work_end"`     // INT seconds since midnight, nullable, default 17:00:00
	BreakStart  *TimeOfDay `db:"break_start"`  // INT seconds since midnight, nullable
	BreakEnd    *TimeOfDay `db:"break_end"`    // INT seconds since midnight, nullable
	OvertimeEnd *TimeOfDay `db:"overtime_end"` // INT seconds since midnight, nullable, granted overtime extension
}

// Normalized returns a copy with unset work bounds replaced by the defaults,
// keeping downstream classification total.
func (w ScheduleWindow) Normalized() ScheduleWindow {
	if w.WorkStart == nil {
		d := DefaultWorkStart
		w.WorkStart = &d
	}
	if w.WorkEnd == nil {
		d := DefaultWorkEnd
		w.WorkEnd = &d
	}
	return w
}

// HasBreak reports whether both break bounds are present
func (w ScheduleWindow) HasBreak() bool {
	return w.BreakStart != nil && w.BreakEnd != nil
}

// EffectiveEnd end of duty: the granted overtime end when past the work end,
// else the work end (default when unset)
func (w ScheduleWindow) EffectiveEnd() TimeOfDay {
	end := DefaultWorkEnd
	if w.WorkEnd != nil {
		end = *w.WorkEnd
	}
	if w.OvertimeEnd != nil && *w.OvertimeEnd > end {
		return *w.OvertimeEnd
	}
	return end
}

// Validate checks the window invariants; unset work bounds are checked
// against the defaults
func (w ScheduleWindow) Validate() error {
	w = w.Normalized()
	if *w.WorkStart >= *w.WorkEnd {
		return fmt.Errorf("work_start %s must be before work_end %s", *w.WorkStart, *w.WorkEnd)
	}
	if w.HasBreak() {
		if *w.BreakStart >= *w.BreakEnd {
			return fmt.Errorf("break_start %s must be before break_end %s", *w.BreakStart, *w.BreakEnd)
		}
		if *w.BreakStart < *w.WorkStart || *w.BreakEnd > *w.WorkEnd {
			return fmt.Errorf("break window %s-%s must lie within work window %s-%s",
				*w.BreakStart, *w.BreakEnd, *w.WorkStart, *w.WorkEnd)
		}
	}
	return nil
}
