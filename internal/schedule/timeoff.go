package schedule

import (
	"time"

	"github.com/google/uuid"
)

// TimeOff is a blackout window. A recurring time off repeats every
// RecurrenceDay from the date of StartAt onward, keeping the time-of-day and
// length of the original window.
type TimeOff struct {
	ID            uuid.UUID
	InstructorID  uuid.UUID
	StartAt       time.Time
	EndAt         time.Time
	Reason        string
	IsRecurring   bool
	RecurrenceDay *time.Weekday
	CreatedAt     time.Time
}

func (t *TimeOff) Validate() error {
	if !t.StartAt.Before(t.EndAt) {
		return ErrInvalidTimeRange
	}
	if t.IsRecurring && t.RecurrenceDay == nil {
		return ErrMissingRecurrence
	}
	return nil
}

// Occurrences lists the concrete blackout windows touching [from, to).
func (t *TimeOff) Occurrences(from, to time.Time) []Window {
	base := Window{Start: t.StartAt, End: t.EndAt}
	if !t.IsRecurring {
		if base.Overlaps(Window{Start: from, End: to}) {
			return []Window{base}
		}
		return nil
	}
	length := base.Duration()
	tod := timeOfDayOf(t.StartAt)
	first := DateOf(t.StartAt)
	var out []Window
	// start one day early so an occurrence crossing midnight is seen
	for _, d := range Days(from.AddDate(0, 0, -1), to) {
		if d.Before(first) || d.Weekday() != *t.RecurrenceDay {
			continue
		}
		start := tod.On(d)
		occ := Window{Start: start, End: start.Add(length)}
		if occ.Overlaps(Window{Start: from, End: to}) {
			out = append(out, occ)
		}
	}
	return out
}

// Blocks reports whether w intersects any occurrence of the time off.
func (t *TimeOff) Blocks(w Window) bool {
	return len(t.Occurrences(w.Start, w.End)) > 0
}
