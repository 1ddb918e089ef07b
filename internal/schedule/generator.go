package schedule

import "time"

// GenerateSlots expands rule into candidate windows on date. It is a pure
// function: identical inputs always produce the identical, ordered sequence.
// It returns nil when the rule does not apply on date.
//
// The walk advances by SlotMinutes+BreakMinutes from StartTime and emits a
// slot while it still fits before EndTime. The trailing break of the final
// slot is not required to fit, so a slot may end up to one break past EndTime:
// 09:00-10:40 with 50/10 yields 09:00-09:50 and 10:00-10:50.
func GenerateSlots(rule *AvailabilityRule, date time.Time) []Window {
	if !rule.AppliesOn(date) {
		return nil
	}
	offsets := slotOffsets(rule)
	out := make([]Window, 0, len(offsets))
	slot := time.Duration(rule.SlotMinutes) * time.Minute
	for _, off := range offsets {
		start := off.On(date)
		out = append(out, Window{Start: start, End: start.Add(slot)})
	}
	return out
}

// slotOffsets returns the start time of every slot the rule yields on a day
// where it applies.
func slotOffsets(rule *AvailabilityRule) []TimeOfDay {
	if rule.SlotMinutes <= 0 || rule.BreakMinutes < 0 {
		return nil
	}
	step := TimeOfDay(rule.SlotMinutes + rule.BreakMinutes)
	limit := rule.EndTime + TimeOfDay(rule.BreakMinutes)
	if limit > minutesPerDay {
		limit = minutesPerDay
	}
	var out []TimeOfDay
	for cur := rule.StartTime; cur+TimeOfDay(rule.SlotMinutes) <= limit; cur += step {
		out = append(out, cur)
	}
	return out
}

// GenerateRange expands rule across every date in [from, to].
func GenerateRange(rule *AvailabilityRule, from, to time.Time) []Window {
	var out []Window
	for _, d := range Days(from, to) {
		out = append(out, GenerateSlots(rule, d)...)
	}
	return out
}
