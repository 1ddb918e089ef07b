package schedule

import (
	"time"

	"github.com/google/uuid"
)

type RuleType string

const (
	RuleRecurring RuleType = "recurring"
	RuleOneTime   RuleType = "one_time"
)

// MinSlotMinutes is the shortest bookable slot a rule may declare.
const MinSlotMinutes = 15

// AvailabilityRule is an instructor-declared teaching window. Recurring rules
// apply every DayOfWeek inside the validity range; one-time rules apply on
// SpecificDate only.
type AvailabilityRule struct {
	ID           uuid.UUID
	InstructorID uuid.UUID
	Type         RuleType
	DayOfWeek    *time.Weekday
	SpecificDate *time.Time
	StartTime    TimeOfDay
	EndTime      TimeOfDay
	SlotMinutes  int
	BreakMinutes int
	ValidFrom    time.Time
	ValidUntil   *time.Time
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks the field-level invariants of the rule.
func (r *AvailabilityRule) Validate() error {
	if r.StartTime >= r.EndTime || r.StartTime < 0 || r.EndTime > minutesPerDay {
		return ErrInvalidTimeRange
	}
	if r.SlotMinutes < MinSlotMinutes {
		return ErrSlotTooShort
	}
	if r.BreakMinutes < 0 {
		return ErrNegativeBreak
	}
	if len(slotOffsets(r)) == 0 {
		return ErrWindowTooNarrow
	}
	switch r.Type {
	case RuleRecurring:
		if r.DayOfWeek == nil {
			return ErrMissingDayOfWeek
		}
	case RuleOneTime:
		if r.SpecificDate == nil {
			return ErrMissingDate
		}
	default:
		return ErrUnknownRuleType
	}
	if r.ValidUntil != nil && DateOf(*r.ValidUntil).Before(DateOf(r.ValidFrom)) {
		return ErrInvalidValidity
	}
	return nil
}

// normalize pins dates to midnight UTC and defaults the validity window of
// one-time rules to their date.
func (r *AvailabilityRule) normalize() {
	if r.SpecificDate != nil {
		d := DateOf(*r.SpecificDate)
		r.SpecificDate = &d
		if r.ValidFrom.IsZero() {
			r.ValidFrom = d
		}
	}
	if !r.ValidFrom.IsZero() {
		r.ValidFrom = DateOf(r.ValidFrom)
	}
	if r.ValidUntil != nil {
		u := DateOf(*r.ValidUntil)
		r.ValidUntil = &u
	}
}

// AppliesOn reports whether the rule produces slots on date.
func (r *AvailabilityRule) AppliesOn(date time.Time) bool {
	if !r.IsActive {
		return false
	}
	d := DateOf(date)
	if d.Before(DateOf(r.ValidFrom)) {
		return false
	}
	if r.ValidUntil != nil && d.After(DateOf(*r.ValidUntil)) {
		return false
	}
	switch r.Type {
	case RuleRecurring:
		return r.DayOfWeek != nil && d.Weekday() == *r.DayOfWeek
	case RuleOneTime:
		return r.SpecificDate != nil && DateOf(*r.SpecificDate).Equal(d)
	}
	return false
}

// span is the time-of-day range the rule's generated slots actually cover.
// The last slot may run past EndTime by less than one break. A valid rule
// always generates at least one slot.
func (r *AvailabilityRule) span() (TimeOfDay, TimeOfDay) {
	offsets := slotOffsets(r)
	if len(offsets) == 0 {
		return r.StartTime, r.EndTime
	}
	last := offsets[len(offsets)-1]
	return r.StartTime, last + TimeOfDay(r.SlotMinutes)
}

// sharesDate reports whether both rules can apply on some common date.
func (r *AvailabilityRule) sharesDate(o *AvailabilityRule) bool {
	if !validityOverlaps(r, o) {
		return false
	}
	switch {
	case r.Type == RuleRecurring && o.Type == RuleRecurring:
		return *r.DayOfWeek == *o.DayOfWeek
	case r.Type == RuleOneTime && o.Type == RuleOneTime:
		return DateOf(*r.SpecificDate).Equal(DateOf(*o.SpecificDate))
	case r.Type == RuleOneTime:
		return o.appliesIgnoringActive(*r.SpecificDate)
	default:
		return r.appliesIgnoringActive(*o.SpecificDate)
	}
}

func (r *AvailabilityRule) appliesIgnoringActive(date time.Time) bool {
	cp := *r
	cp.IsActive = true
	return cp.AppliesOn(date)
}

func validityOverlaps(a, b *AvailabilityRule) bool {
	if a.ValidUntil != nil && DateOf(*a.ValidUntil).Before(DateOf(b.ValidFrom)) {
		return false
	}
	if b.ValidUntil != nil && DateOf(*b.ValidUntil).Before(DateOf(a.ValidFrom)) {
		return false
	}
	return true
}

// ConflictsWith reports whether r and o are both active, belong to the same
// instructor, apply on a common date and cover overlapping times of day.
func (r *AvailabilityRule) ConflictsWith(o *AvailabilityRule) bool {
	if r.ID == o.ID || r.InstructorID != o.InstructorID {
		return false
	}
	if !r.IsActive || !o.IsActive {
		return false
	}
	if !r.sharesDate(o) {
		return false
	}
	rs, re := r.span()
	os, oe := o.span()
	return rs < oe && re > os
}
