package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RuleRepository persists availability rules.
type RuleRepository interface {
	CreateRule(ctx context.Context, r *AvailabilityRule) error
	UpdateRule(ctx context.Context, r *AvailabilityRule) error
	GetRule(ctx context.Context, id uuid.UUID) (*AvailabilityRule, error)
	ListRules(ctx context.Context, instructorID uuid.UUID, activeOnly bool) ([]AvailabilityRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

// SlotRepository persists materialized slots.
type SlotRepository interface {
	// CreateSlot inserts s unless it overlaps any slot of the same instructor,
	// whatever that slot's status. Returns ErrSlotOverlap.
	CreateSlot(ctx context.Context, s *BookingSlot) error

	GetSlot(ctx context.Context, id uuid.UUID) (*BookingSlot, error)

	// LockSlot reads a slot and, inside a transaction, holds it until commit.
	LockSlot(ctx context.Context, id uuid.UUID) (*BookingSlot, error)

	FindSlotByStart(ctx context.Context, instructorID uuid.UUID, start time.Time) (*BookingSlot, error)
	ListSlots(ctx context.Context, instructorID uuid.UUID, from, to time.Time) ([]BookingSlot, error)

	// UpdateSlot writes status, window and session link of s only if the
	// stored status still equals expected. Returns ErrSlotStateChanged.
	UpdateSlot(ctx context.Context, s *BookingSlot, expected SlotStatus) error

	// ResizeSlot is UpdateSlot plus the overlap check of CreateSlot,
	// excluding s itself.
	ResizeSlot(ctx context.Context, s *BookingSlot, expected SlotStatus) error

	// DeleteSlot removes an unbooked slot. Returns ErrSlotBooked for booked ones.
	DeleteSlot(ctx context.Context, id uuid.UUID) error

	// DeleteAvailableSlotsByRule removes the available slots generated by the
	// rule. Booked and blocked slots are left in place.
	DeleteAvailableSlotsByRule(ctx context.Context, ruleID uuid.UUID) (int, error)
}

// TimeOffRepository persists blackout windows.
type TimeOffRepository interface {
	CreateTimeOff(ctx context.Context, t *TimeOff) error
	DeleteTimeOff(ctx context.Context, id uuid.UUID) error
	ListTimeOff(ctx context.Context, instructorID uuid.UUID) ([]TimeOff, error)
}

// Calendar reports the windows already taken by sessions that have not been
// cancelled.
type Calendar interface {
	BusyWindows(ctx context.Context, instructorID uuid.UUID, from, to time.Time) ([]Window, error)
}

// Repos groups the repositories a schedule operation may touch.
type Repos struct {
	Rules   RuleRepository
	Slots   SlotRepository
	TimeOff TimeOffRepository
}

// Store is the persistence the schedule Service needs.
type Store interface {
	Calendar

	ScheduleRepos() Repos

	// InstructorTx runs fn in one transactional unit serialized per
	// instructor. Repositories handed to fn are bound to that unit; an error
	// from fn rolls every write back.
	InstructorTx(ctx context.Context, instructorID uuid.UUID, fn func(ctx context.Context, r Repos) error) error
}
