package schedule

import (
	"fmt"
	"time"
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open windows share any instant:
// start_a < end_b AND end_a > start_b.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && w.End.After(o.Start)
}

func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

func (w Window) Valid() bool { return w.Start.Before(w.End) }

// TimeOfDay is a wall-clock time expressed in minutes after midnight UTC.
type TimeOfDay int

const minutesPerDay = 24 * 60

// ParseTimeOfDay parses "HH:MM". "24:00" is accepted as end of day.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if s == "24:00" {
		return minutesPerDay, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On anchors t to the calendar date of day.
func (t TimeOfDay) On(day time.Time) time.Time {
	return DateOf(day).Add(time.Duration(t) * time.Minute)
}

func timeOfDayOf(ts time.Time) TimeOfDay {
	ts = ts.UTC()
	return TimeOfDay(ts.Hour()*60 + ts.Minute())
}

// DateOf truncates ts to midnight UTC of its calendar day.
func DateOf(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

// Days lists every calendar date in [from, to], inclusive.
func Days(from, to time.Time) []time.Time {
	var out []time.Time
	for d := DateOf(from); !d.After(DateOf(to)); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
