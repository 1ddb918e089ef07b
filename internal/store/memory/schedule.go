package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/tutor-booking/internal/schedule"
)

type ruleRepo struct{ repo }

func (r ruleRepo) CreateRule(_ context.Context, rule *schedule.AvailabilityRule) error {
	defer r.lock()()
	r.s.st.rules[rule.ID] = *rule
	return nil
}

func (r ruleRepo) UpdateRule(_ context.Context, rule *schedule.AvailabilityRule) error {
	defer r.lock()()
	if _, ok := r.s.st.rules[rule.ID]; !ok {
		return schedule.ErrRuleNotFound
	}
	r.s.st.rules[rule.ID] = *rule
	return nil
}

func (r ruleRepo) GetRule(_ context.Context, id uuid.UUID) (*schedule.AvailabilityRule, error) {
	defer r.lock()()
	rule, ok := r.s.st.rules[id]
	if !ok {
		return nil, schedule.ErrRuleNotFound
	}
	return &rule, nil
}

func (r ruleRepo) ListRules(_ context.Context, instructorID uuid.UUID, activeOnly bool) ([]schedule.AvailabilityRule, error) {
	defer r.lock()()
	var out []schedule.AvailabilityRule
	for _, rule := range r.s.st.rules {
		if rule.InstructorID != instructorID || (activeOnly && !rule.IsActive) {
			continue
		}
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r ruleRepo) DeleteRule(_ context.Context, id uuid.UUID) error {
	defer r.lock()()
	if _, ok := r.s.st.rules[id]; !ok {
		return schedule.ErrRuleNotFound
	}
	delete(r.s.st.rules, id)
	return nil
}

type slotRepo struct{ repo }

func (r slotRepo) overlapping(instructorID uuid.UUID, w schedule.Window, exclude uuid.UUID) bool {
	for _, s := range r.s.st.slots {
		if s.InstructorID == instructorID && s.ID != exclude && s.Overlaps(w) {
			return true
		}
	}
	return false
}

func (r slotRepo) CreateSlot(_ context.Context, s *schedule.BookingSlot) error {
	defer r.lock()()
	if r.overlapping(s.InstructorID, s.Window(), uuid.Nil) {
		return schedule.ErrSlotOverlap
	}
	r.s.st.slots[s.ID] = *s
	return nil
}

func (r slotRepo) GetSlot(_ context.Context, id uuid.UUID) (*schedule.BookingSlot, error) {
	defer r.lock()()
	s, ok := r.s.st.slots[id]
	if !ok {
		return nil, schedule.ErrSlotNotFound
	}
	return &s, nil
}

// LockSlot is GetSlot: a unit already excludes every other writer.
func (r slotRepo) LockSlot(ctx context.Context, id uuid.UUID) (*schedule.BookingSlot, error) {
	return r.GetSlot(ctx, id)
}

func (r slotRepo) FindSlotByStart(_ context.Context, instructorID uuid.UUID, start time.Time) (*schedule.BookingSlot, error) {
	defer r.lock()()
	for _, s := range r.s.st.slots {
		if s.InstructorID == instructorID && s.StartAt.Equal(start) {
			return &s, nil
		}
	}
	return nil, schedule.ErrSlotNotFound
}

func (r slotRepo) ListSlots(_ context.Context, instructorID uuid.UUID, from, to time.Time) ([]schedule.BookingSlot, error) {
	defer r.lock()()
	var out []schedule.BookingSlot
	for _, s := range r.s.st.slots {
		if s.InstructorID == instructorID && !s.StartAt.Before(from) && s.StartAt.Before(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (r slotRepo) UpdateSlot(_ context.Context, s *schedule.BookingSlot, expected schedule.SlotStatus) error {
	defer r.lock()()
	return r.update(s, expected, false)
}

func (r slotRepo) ResizeSlot(_ context.Context, s *schedule.BookingSlot, expected schedule.SlotStatus) error {
	defer r.lock()()
	return r.update(s, expected, true)
}

func (r slotRepo) update(s *schedule.BookingSlot, expected schedule.SlotStatus, checkOverlap bool) error {
	current, ok := r.s.st.slots[s.ID]
	if !ok {
		return schedule.ErrSlotNotFound
	}
	if current.Status != expected {
		return schedule.ErrSlotStateChanged
	}
	if checkOverlap && r.overlapping(s.InstructorID, s.Window(), s.ID) {
		return schedule.ErrSlotOverlap
	}
	r.s.st.slots[s.ID] = *s
	return nil
}

func (r slotRepo) DeleteSlot(_ context.Context, id uuid.UUID) error {
	defer r.lock()()
	s, ok := r.s.st.slots[id]
	if !ok {
		return schedule.ErrSlotNotFound
	}
	if s.Status == schedule.SlotBooked {
		return schedule.ErrSlotBooked
	}
	delete(r.s.st.slots, id)
	return nil
}

func (r slotRepo) DeleteAvailableSlotsByRule(_ context.Context, ruleID uuid.UUID) (int, error) {
	defer r.lock()()
	n := 0
	for id, s := range r.s.st.slots {
		if s.RuleID != nil && *s.RuleID == ruleID && s.Status == schedule.SlotAvailable {
			delete(r.s.st.slots, id)
			n++
		}
	}
	return n, nil
}

type timeOffRepo struct{ repo }

func (r timeOffRepo) CreateTimeOff(_ context.Context, t *schedule.TimeOff) error {
	defer r.lock()()
	r.s.st.timeOff[t.ID] = *t
	return nil
}

func (r timeOffRepo) DeleteTimeOff(_ context.Context, id uuid.UUID) error {
	defer r.lock()()
	if _, ok := r.s.st.timeOff[id]; !ok {
		return schedule.ErrTimeOffNotFound
	}
	delete(r.s.st.timeOff, id)
	return nil
}

func (r timeOffRepo) ListTimeOff(_ context.Context, instructorID uuid.UUID) ([]schedule.TimeOff, error) {
	defer r.lock()()
	var out []schedule.TimeOff
	for _, t := range r.s.st.timeOff {
		if t.InstructorID == instructorID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

// BusyWindows returns the windows of sessions that still occupy their time.
func (s *Store) BusyWindows(_ context.Context, instructorID uuid.UUID, from, to time.Time) ([]schedule.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rng := schedule.Window{Start: from, End: to}
	var out []schedule.Window
	for _, sess := range s.st.sessions {
		w := schedule.Window{Start: sess.StartAt, End: sess.EndAt}
		if sess.InstructorID == instructorID && sess.Occupies() && w.Overlaps(rng) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
