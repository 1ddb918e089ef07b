package schedule_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/tutor-booking/internal/schedule"
)

var monday = time.Date(2026, time.November, 2, 0, 0, 0, 0, time.UTC)

func weekday(d time.Weekday) *time.Weekday { return &d }

func at(day time.Time, hhmm string) time.Time {
	return schedule.MustTimeOfDay(hhmm).On(day)
}

func recurring(day time.Weekday, start, end string, slot, brk int) *schedule.AvailabilityRule {
	return &schedule.AvailabilityRule{
		ID:           uuid.New(),
		InstructorID: uuid.New(),
		Type:         schedule.RuleRecurring,
		DayOfWeek:    weekday(day),
		StartTime:    schedule.MustTimeOfDay(start),
		EndTime:      schedule.MustTimeOfDay(end),
		SlotMinutes:  slot,
		BreakMinutes: brk,
		ValidFrom:    monday.AddDate(0, 0, -7),
		IsActive:     true,
	}
}

func TestGenerateSlots_LastSlotMayOverrunByBreak(t *testing.T) {
	// GIVEN: Monday 09:00-10:40 with 50 minute slots and 10 minute breaks
	rule := recurring(time.Monday, "09:00", "10:40", 50, 10)

	// WHEN
	got := schedule.GenerateSlots(rule, monday)

	// THEN: exactly 09:00-09:50 and 10:00-10:50
	require.Len(t, got, 2)
	assert.Equal(t, at(monday, "09:00"), got[0].Start)
	assert.Equal(t, at(monday, "09:50"), got[0].End)
	assert.Equal(t, at(monday, "10:00"), got[1].Start)
	assert.Equal(t, at(monday, "10:50"), got[1].End)
}

func TestGenerateSlots_Deterministic(t *testing.T) {
	rule := recurring(time.Monday, "08:00", "18:00", 45, 15)

	first := schedule.GenerateSlots(rule, monday)
	second := schedule.GenerateSlots(rule, monday)

	assert.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		assert.True(t, first[i-1].End.Before(first[i].Start) || first[i-1].End.Equal(first[i].Start))
	}
}

func TestGenerateSlots_RuleDoesNotApply(t *testing.T) {
	rule := recurring(time.Monday, "09:00", "12:00", 50, 10)

	tests := []struct {
		name string
		edit func(r *schedule.AvailabilityRule)
		date time.Time
	}{
		{name: "other weekday", edit: func(*schedule.AvailabilityRule) {}, date: monday.AddDate(0, 0, 1)},
		{name: "inactive", edit: func(r *schedule.AvailabilityRule) { r.IsActive = false }, date: monday},
		{name: "before valid_from", edit: func(r *schedule.AvailabilityRule) { r.ValidFrom = monday.AddDate(0, 0, 1) }, date: monday},
		{name: "after valid_until", edit: func(r *schedule.AvailabilityRule) {
			until := monday.AddDate(0, 0, -1)
			r.ValidUntil = &until
		}, date: monday},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := *rule
			tt.edit(&r)
			assert.Empty(t, schedule.GenerateSlots(&r, tt.date))
		})
	}
}

func TestGenerateSlots_OneTime(t *testing.T) {
	date := monday.AddDate(0, 0, 3)
	rule := &schedule.AvailabilityRule{
		Type:         schedule.RuleOneTime,
		SpecificDate: &date,
		StartTime:    schedule.MustTimeOfDay("14:00"),
		EndTime:      schedule.MustTimeOfDay("15:00"),
		SlotMinutes:  30,
		ValidFrom:    date,
		IsActive:     true,
	}

	assert.Len(t, schedule.GenerateSlots(rule, date), 2)
	assert.Empty(t, schedule.GenerateSlots(rule, monday))
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(r *schedule.AvailabilityRule)
		want error
	}{
		{name: "start after end", edit: func(r *schedule.AvailabilityRule) { r.StartTime = schedule.MustTimeOfDay("13:00") }, want: schedule.ErrInvalidTimeRange},
		{name: "slot too short", edit: func(r *schedule.AvailabilityRule) { r.SlotMinutes = 10 }, want: schedule.ErrSlotTooShort},
		{name: "negative break", edit: func(r *schedule.AvailabilityRule) { r.BreakMinutes = -1 }, want: schedule.ErrNegativeBreak},
		{name: "window fits no slot", edit: func(r *schedule.AvailabilityRule) {
			r.EndTime = schedule.MustTimeOfDay("09:10")
			r.SlotMinutes = 15
			r.BreakMinutes = 0
		}, want: schedule.ErrWindowTooNarrow},
		{name: "recurring without day", edit: func(r *schedule.AvailabilityRule) { r.DayOfWeek = nil }, want: schedule.ErrMissingDayOfWeek},
		{name: "one-time without date", edit: func(r *schedule.AvailabilityRule) { r.Type = schedule.RuleOneTime }, want: schedule.ErrMissingDate},
		{name: "unknown type", edit: func(r *schedule.AvailabilityRule) { r.Type = "weekly" }, want: schedule.ErrUnknownRuleType},
		{name: "valid", edit: func(*schedule.AvailabilityRule) {}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := *recurring(time.Monday, "09:00", "12:00", 50, 10)
			tt.edit(&r)
			err := r.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRuleConflicts(t *testing.T) {
	a := recurring(time.Monday, "09:00", "12:00", 50, 10)

	b := recurring(time.Monday, "11:00", "13:00", 50, 10)
	b.InstructorID = a.InstructorID
	assert.True(t, a.ConflictsWith(b))

	// the last slot of a runs 11:00-11:50, so 12:00 onward is free
	c := recurring(time.Monday, "12:00", "14:00", 50, 10)
	c.InstructorID = a.InstructorID
	assert.False(t, a.ConflictsWith(c))

	d := recurring(time.Tuesday, "09:00", "12:00", 50, 10)
	d.InstructorID = a.InstructorID
	assert.False(t, a.ConflictsWith(d))

	b.IsActive = false
	assert.False(t, a.ConflictsWith(b))
}

func TestWindowOverlapIsHalfOpen(t *testing.T) {
	w := schedule.Window{Start: at(monday, "09:00"), End: at(monday, "09:50")}

	assert.False(t, w.Overlaps(schedule.Window{Start: at(monday, "09:50"), End: at(monday, "10:40")}))
	assert.False(t, w.Overlaps(schedule.Window{Start: at(monday, "08:00"), End: at(monday, "09:00")}))
	assert.True(t, w.Overlaps(schedule.Window{Start: at(monday, "09:49"), End: at(monday, "10:00")}))
	assert.True(t, w.Overlaps(schedule.Window{Start: at(monday, "08:00"), End: at(monday, "11:00")}))
}

func TestSlotTransitions(t *testing.T) {
	now := monday
	slot, err := schedule.NewSlot(uuid.New(), schedule.Window{Start: at(monday, "09:00"), End: at(monday, "09:50")}, nil, now)
	require.NoError(t, err)
	assert.Equal(t, 50, slot.DurationMinutes)
	assert.Equal(t, schedule.SlotAvailable, slot.Status)

	sessionID := uuid.New()
	require.NoError(t, slot.Book(sessionID, now))
	assert.ErrorIs(t, slot.Book(uuid.New(), now), schedule.ErrSlotNotAvailable)
	assert.ErrorIs(t, slot.Block(now), schedule.ErrSlotBooked)
	assert.ErrorIs(t, slot.Resize(slot.Window(), now), schedule.ErrSlotBooked)
	require.Equal(t, sessionID, *slot.SessionID)

	require.NoError(t, slot.Unbook(now))
	assert.Nil(t, slot.SessionID)
	require.NoError(t, slot.Block(now))
	assert.ErrorIs(t, slot.Book(sessionID, now), schedule.ErrSlotNotAvailable)
	require.NoError(t, slot.Unblock(now))
	assert.ErrorIs(t, slot.Unblock(now), schedule.ErrSlotNotBlocked)

	_, err = schedule.NewSlot(uuid.New(), schedule.Window{Start: at(monday, "10:00"), End: at(monday, "10:00")}, nil, now)
	assert.ErrorIs(t, err, schedule.ErrInvalidTimeRange)
}

func TestTimeOff_RecurringOccurrences(t *testing.T) {
	off := &schedule.TimeOff{
		StartAt:       at(monday, "12:00"),
		EndAt:         at(monday, "13:00"),
		IsRecurring:   true,
		RecurrenceDay: weekday(time.Monday),
	}
	require.NoError(t, off.Validate())

	occ := off.Occurrences(monday, monday.AddDate(0, 0, 21))
	require.Len(t, occ, 3)
	assert.Equal(t, at(monday.AddDate(0, 0, 14), "12:00"), occ[2].Start)

	nextMonday := monday.AddDate(0, 0, 7)
	assert.True(t, off.Blocks(schedule.Window{Start: at(nextMonday, "12:30"), End: at(nextMonday, "13:20")}))
	assert.False(t, off.Blocks(schedule.Window{Start: at(nextMonday, "13:00"), End: at(nextMonday, "13:50")}))
	// nothing before the first occurrence
	lastMonday := monday.AddDate(0, 0, -7)
	assert.False(t, off.Blocks(schedule.Window{Start: at(lastMonday, "12:00"), End: at(lastMonday, "12:50")}))

	off.RecurrenceDay = nil
	assert.ErrorIs(t, off.Validate(), schedule.ErrMissingRecurrence)
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := schedule.ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, schedule.TimeOfDay(570), tod)
	assert.Equal(t, "09:30", tod.String())

	_, err = schedule.ParseTimeOfDay("24:01")
	assert.Error(t, err)
	_, err = schedule.ParseTimeOfDay("nine")
	assert.Error(t, err)

	end, err := schedule.ParseTimeOfDay("24:00")
	require.NoError(t, err)
	assert.Equal(t, schedule.TimeOfDay(24*60), end)

	for _, junk := range []string{"09:30xyz", "09:30:00", "9:3", " 09:30", "-1:30"} {
		_, err = schedule.ParseTimeOfDay(junk)
		assert.Error(t, err, junk)
	}
}
