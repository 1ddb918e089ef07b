package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Service manages rules, slots and time off for instructors and answers
// availability queries.
type Service struct {
	store Store
	log   logrus.FieldLogger
	now   func() time.Time
}

type Option func(*Service)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RuleInput carries the instructor-editable fields of a rule.
type RuleInput struct {
	Type         RuleType
	DayOfWeek    *time.Weekday
	SpecificDate *time.Time
	StartTime    TimeOfDay
	EndTime      TimeOfDay
	SlotMinutes  int
	BreakMinutes int
	ValidFrom    time.Time
	ValidUntil   *time.Time
}

func (in RuleInput) apply(r *AvailabilityRule) {
	r.Type = in.Type
	r.DayOfWeek = in.DayOfWeek
	r.SpecificDate = in.SpecificDate
	r.StartTime = in.StartTime
	r.EndTime = in.EndTime
	r.SlotMinutes = in.SlotMinutes
	r.BreakMinutes = in.BreakMinutes
	r.ValidFrom = in.ValidFrom
	r.ValidUntil = in.ValidUntil
	if r.Type == RuleRecurring {
		r.SpecificDate = nil
	} else {
		r.DayOfWeek = nil
	}
	if r.ValidFrom.IsZero() && r.Type == RuleRecurring {
		r.ValidFrom = r.CreatedAt
	}
	r.normalize()
}

// CreateRule validates the rule, rejects it if it overlaps another active
// rule of the instructor and, for one-time rules, materializes its slots in
// the same transactional unit.
func (s *Service) CreateRule(ctx context.Context, instructorID uuid.UUID, in RuleInput) (*AvailabilityRule, error) {
	now := s.now().UTC()
	rule := &AvailabilityRule{
		ID:           uuid.New(),
		InstructorID: instructorID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	in.apply(rule)
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	err := s.store.InstructorTx(ctx, instructorID, func(ctx context.Context, r Repos) error {
		if err := checkRuleConflicts(ctx, r.Rules, rule); err != nil {
			return err
		}
		if err := r.Rules.CreateRule(ctx, rule); err != nil {
			return fmt.Errorf("create rule: %w", err)
		}
		return materializeOneTime(ctx, r.Slots, rule, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"instructor_id": instructorID,
		"rule_id":       rule.ID,
		"type":          rule.Type,
	}).Info("availability rule created")
	return rule, nil
}

// UpdateRule replaces the editable fields of a rule. Available slots the old
// definition produced are dropped; booked and blocked ones stay.
func (s *Service) UpdateRule(ctx context.Context, id uuid.UUID, in RuleInput) (*AvailabilityRule, error) {
	current, err := s.store.ScheduleRepos().Rules.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	var updated *AvailabilityRule
	err = s.store.InstructorTx(ctx, current.InstructorID, func(ctx context.Context, r Repos) error {
		rule, err := r.Rules.GetRule(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		in.apply(rule)
		rule.UpdatedAt = now
		if err := rule.Validate(); err != nil {
			return err
		}
		if err := checkRuleConflicts(ctx, r.Rules, rule); err != nil {
			return err
		}
		if err := r.Rules.UpdateRule(ctx, rule); err != nil {
			return fmt.Errorf("update rule: %w", err)
		}
		if _, err := r.Slots.DeleteAvailableSlotsByRule(ctx, rule.ID); err != nil {
			return fmt.Errorf("drop stale slots: %w", err)
		}
		if rule.IsActive {
			if err := materializeOneTime(ctx, r.Slots, rule, now); err != nil {
				return err
			}
		}
		updated = rule
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeactivateRule soft-disables a rule and drops its available slots.
func (s *Service) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	return s.setActive(ctx, id, false)
}

// ActivateRule re-enables a rule after checking it against the instructor's
// other active rules.
func (s *Service) ActivateRule(ctx context.Context, id uuid.UUID) error {
	return s.setActive(ctx, id, true)
}

func (s *Service) setActive(ctx context.Context, id uuid.UUID, active bool) error {
	current, err := s.store.ScheduleRepos().Rules.GetRule(ctx, id)
	if err != nil {
		return err
	}
	return s.store.InstructorTx(ctx, current.InstructorID, func(ctx context.Context, r Repos) error {
		rule, err := r.Rules.GetRule(ctx, id)
		if err != nil {
			return err
		}
		if rule.IsActive == active {
			return nil
		}
		now := s.now().UTC()
		rule.IsActive = active
		rule.UpdatedAt = now
		if active {
			if err := checkRuleConflicts(ctx, r.Rules, rule); err != nil {
				return err
			}
		}
		if err := r.Rules.UpdateRule(ctx, rule); err != nil {
			return fmt.Errorf("update rule: %w", err)
		}
		if !active {
			_, err := r.Slots.DeleteAvailableSlotsByRule(ctx, rule.ID)
			return err
		}
		return materializeOneTime(ctx, r.Slots, rule, now)
	})
}

// DeleteRule hard-deletes a rule. Only available slots cascade; booked and
// blocked slots keep their dangling rule reference.
func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	current, err := s.store.ScheduleRepos().Rules.GetRule(ctx, id)
	if err != nil {
		return err
	}
	var dropped int
	err = s.store.InstructorTx(ctx, current.InstructorID, func(ctx context.Context, r Repos) error {
		n, err := r.Slots.DeleteAvailableSlotsByRule(ctx, id)
		if err != nil {
			return fmt.Errorf("delete rule slots: %w", err)
		}
		dropped = n
		return r.Rules.DeleteRule(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"rule_id":       id,
		"slots_dropped": dropped,
	}).Info("availability rule deleted")
	return nil
}

func (s *Service) ListRules(ctx context.Context, instructorID uuid.UUID, activeOnly bool) ([]AvailabilityRule, error) {
	return s.store.ScheduleRepos().Rules.ListRules(ctx, instructorID, activeOnly)
}

func checkRuleConflicts(ctx context.Context, rules RuleRepository, rule *AvailabilityRule) error {
	if !rule.IsActive {
		return nil
	}
	existing, err := rules.ListRules(ctx, rule.InstructorID, true)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	for i := range existing {
		if rule.ConflictsWith(&existing[i]) {
			return fmt.Errorf("%w (rule %s)", ErrRuleOverlap, existing[i].ID)
		}
	}
	return nil
}

// materializeOneTime eagerly persists the slots of an active one-time rule.
// Windows already holding a slot of this rule are kept as they are.
func materializeOneTime(ctx context.Context, slots SlotRepository, rule *AvailabilityRule, now time.Time) error {
	if rule.Type != RuleOneTime || !rule.IsActive {
		return nil
	}
	for _, w := range GenerateSlots(rule, *rule.SpecificDate) {
		existing, err := slots.FindSlotByStart(ctx, rule.InstructorID, w.Start)
		if err != nil && !errors.Is(err, ErrSlotNotFound) {
			return err
		}
		if existing != nil && existing.RuleID != nil && *existing.RuleID == rule.ID {
			continue
		}
		ruleID := rule.ID
		slot, err := NewSlot(rule.InstructorID, w, &ruleID, now)
		if err != nil {
			return err
		}
		if err := slots.CreateSlot(ctx, slot); err != nil {
			return fmt.Errorf("materialize %s: %w", w.Start.Format(time.RFC3339), err)
		}
	}
	return nil
}

// CreateSlot adds a manual slot with no generating rule.
func (s *Service) CreateSlot(ctx context.Context, instructorID uuid.UUID, w Window) (*BookingSlot, error) {
	slot, err := NewSlot(instructorID, w, nil, s.now().UTC())
	if err != nil {
		return nil, err
	}
	err = s.store.InstructorTx(ctx, instructorID, func(ctx context.Context, r Repos) error {
		return r.Slots.CreateSlot(ctx, slot)
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*BookingSlot, error) {
	return s.store.ScheduleRepos().Slots.GetSlot(ctx, id)
}

func (s *Service) BlockSlot(ctx context.Context, id uuid.UUID) (*BookingSlot, error) {
	return s.transition(ctx, id, func(slot *BookingSlot, now time.Time) error {
		return slot.Block(now)
	})
}

func (s *Service) UnblockSlot(ctx context.Context, id uuid.UUID) (*BookingSlot, error) {
	return s.transition(ctx, id, func(slot *BookingSlot, now time.Time) error {
		return slot.Unblock(now)
	})
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, fn func(*BookingSlot, time.Time) error) (*BookingSlot, error) {
	slots := s.store.ScheduleRepos().Slots
	slot, err := slots.GetSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := slot.Status
	if err := fn(slot, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := slots.UpdateSlot(ctx, slot, expected); err != nil {
		return nil, err
	}
	return slot, nil
}

// ResizeSlot moves an unbooked slot to a new window, rejecting overlaps with
// the instructor's other slots.
func (s *Service) ResizeSlot(ctx context.Context, id uuid.UUID, w Window) (*BookingSlot, error) {
	current, err := s.store.ScheduleRepos().Slots.GetSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	var resized *BookingSlot
	err = s.store.InstructorTx(ctx, current.InstructorID, func(ctx context.Context, r Repos) error {
		slot, err := r.Slots.LockSlot(ctx, id)
		if err != nil {
			return err
		}
		expected := slot.Status
		if err := slot.Resize(w, s.now().UTC()); err != nil {
			return err
		}
		if err := r.Slots.ResizeSlot(ctx, slot, expected); err != nil {
			return err
		}
		resized = slot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resized, nil
}

func (s *Service) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	return s.store.ScheduleRepos().Slots.DeleteSlot(ctx, id)
}

// CreateTimeOff records a blackout window.
func (s *Service) CreateTimeOff(ctx context.Context, t *TimeOff) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.StartAt = t.StartAt.UTC()
	t.EndAt = t.EndAt.UTC()
	t.CreatedAt = s.now().UTC()
	if err := s.store.ScheduleRepos().TimeOff.CreateTimeOff(ctx, t); err != nil {
		return fmt.Errorf("create time off: %w", err)
	}
	return nil
}

func (s *Service) DeleteTimeOff(ctx context.Context, id uuid.UUID) error {
	return s.store.ScheduleRepos().TimeOff.DeleteTimeOff(ctx, id)
}

func (s *Service) ListTimeOff(ctx context.Context, instructorID uuid.UUID) ([]TimeOff, error) {
	return s.store.ScheduleRepos().TimeOff.ListTimeOff(ctx, instructorID)
}
