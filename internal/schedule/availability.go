package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// AvailableSlot is one entry of the bookable view. SlotID is nil for windows
// generated on the fly from a recurring rule that have not been persisted yet.
type AvailableSlot struct {
	SlotID          *uuid.UUID
	RuleID          *uuid.UUID
	InstructorID    uuid.UUID
	StartAt         time.Time
	EndAt           time.Time
	DurationMinutes int
	Generated       bool
}

// AvailableSlots merges materialized slots, recurring-rule windows, sessions
// and time off into the set of windows a student may book in [from, to).
// A materialized slot always wins over a generated window at the same start.
func (s *Service) AvailableSlots(ctx context.Context, instructorID uuid.UUID, from, to time.Time) ([]AvailableSlot, error) {
	if !from.Before(to) {
		return nil, ErrInvalidTimeRange
	}
	from, to = from.UTC(), to.UTC()
	now := s.now().UTC()
	repos := s.store.ScheduleRepos()

	// widen the lookup so slots starting before from still count as occupied
	materialized, err := repos.Slots.ListSlots(ctx, instructorID, from.Add(-24*time.Hour), to)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	offs, err := repos.TimeOff.ListTimeOff(ctx, instructorID)
	if err != nil {
		return nil, fmt.Errorf("list time off: %w", err)
	}
	busy, err := s.store.BusyWindows(ctx, instructorID, from.Add(-24*time.Hour), to.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	rules, err := repos.Rules.ListRules(ctx, instructorID, true)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	excluded := func(w Window) bool {
		for _, b := range busy {
			if b.Overlaps(w) {
				return true
			}
		}
		for i := range offs {
			if offs[i].Blocks(w) {
				return true
			}
		}
		return false
	}
	inRange := func(start time.Time) bool {
		return !start.Before(from) && start.Before(to) && start.After(now)
	}

	var out []AvailableSlot
	taken := make(map[int64]struct{}, len(materialized))
	for i := range materialized {
		slot := &materialized[i]
		taken[slot.StartAt.Unix()] = struct{}{}
		if slot.Status != SlotAvailable || slot.SessionID != nil {
			continue
		}
		if !inRange(slot.StartAt) || excluded(slot.Window()) {
			continue
		}
		id := slot.ID
		out = append(out, AvailableSlot{
			SlotID:          &id,
			RuleID:          slot.RuleID,
			InstructorID:    slot.InstructorID,
			StartAt:         slot.StartAt,
			EndAt:           slot.EndAt,
			DurationMinutes: slot.DurationMinutes,
		})
	}

	for i := range rules {
		rule := &rules[i]
		if rule.Type != RuleRecurring {
			continue
		}
		for _, w := range GenerateRange(rule, from, to) {
			if !inRange(w.Start) {
				continue
			}
			if _, dup := taken[w.Start.Unix()]; dup {
				continue
			}
			if overlapsAny(w, materialized) || excluded(w) {
				continue
			}
			taken[w.Start.Unix()] = struct{}{}
			ruleID := rule.ID
			out = append(out, AvailableSlot{
				RuleID:          &ruleID,
				InstructorID:    instructorID,
				StartAt:         w.Start,
				EndAt:           w.End,
				DurationMinutes: int(w.Duration() / time.Minute),
				Generated:       true,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func overlapsAny(w Window, slots []BookingSlot) bool {
	for i := range slots {
		if slots[i].Overlaps(w) {
			return true
		}
	}
	return false
}

// MaterializeSlot resolves the persisted slot for a recurring-rule window,
// creating it on first use. The lookup and the overlap-checked insert run in
// one unit serialized per instructor, so concurrent callers for the same
// window end up with the same slot.
func (s *Service) MaterializeSlot(ctx context.Context, instructorID, ruleID uuid.UUID, start time.Time) (*BookingSlot, error) {
	repos := s.store.ScheduleRepos()
	rule, err := repos.Rules.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule.InstructorID != instructorID {
		return nil, ErrRuleNotFound
	}
	if !rule.IsActive {
		return nil, ErrRuleInactive
	}
	start = start.UTC()
	var window *Window
	for _, w := range GenerateSlots(rule, start) {
		if w.Start.Equal(start) {
			w := w
			window = &w
			break
		}
	}
	if window == nil {
		return nil, ErrNotGenerated
	}

	var slot *BookingSlot
	err = s.store.InstructorTx(ctx, instructorID, func(ctx context.Context, r Repos) error {
		existing, err := r.Slots.FindSlotByStart(ctx, instructorID, start)
		if err == nil {
			slot = existing
			return nil
		}
		if !errors.Is(err, ErrSlotNotFound) {
			return err
		}
		created, err := NewSlot(instructorID, *window, &rule.ID, s.now().UTC())
		if err != nil {
			return err
		}
		if err := r.Slots.CreateSlot(ctx, created); err != nil {
			return err
		}
		slot = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// CheckBookable rejects slots that have started or that collide with time
// off or another session. Status is checked by the caller.
func (s *Service) CheckBookable(ctx context.Context, slot *BookingSlot) error {
	w := slot.Window()
	if !slot.StartAt.After(s.now()) {
		return ErrSlotInPast
	}
	offs, err := s.store.ScheduleRepos().TimeOff.ListTimeOff(ctx, slot.InstructorID)
	if err != nil {
		return fmt.Errorf("list time off: %w", err)
	}
	for i := range offs {
		if offs[i].Blocks(w) {
			return ErrSlotInTimeOff
		}
	}
	busy, err := s.store.BusyWindows(ctx, slot.InstructorID, w.Start, w.End)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, b := range busy {
		if b.Overlaps(w) {
			return ErrSlotNotAvailable
		}
	}
	return nil
}
