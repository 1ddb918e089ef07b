package schedule

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotBlocked   SlotStatus = "blocked"
)

// BookingSlot is one materialized, individually addressable bookable unit.
// RuleID is a weak back-reference: deleting the rule leaves booked slots and
// their RuleID untouched.
type BookingSlot struct {
	ID              uuid.UUID
	InstructorID    uuid.UUID
	StartAt         time.Time
	EndAt           time.Time
	DurationMinutes int
	Status          SlotStatus
	RuleID          *uuid.UUID
	SessionID       *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewSlot builds an available slot with a fresh id.
func NewSlot(instructorID uuid.UUID, w Window, ruleID *uuid.UUID, now time.Time) (*BookingSlot, error) {
	if !w.Valid() {
		return nil, ErrInvalidTimeRange
	}
	return &BookingSlot{
		ID:              uuid.New(),
		InstructorID:    instructorID,
		StartAt:         w.Start.UTC(),
		EndAt:           w.End.UTC(),
		DurationMinutes: int(w.Duration() / time.Minute),
		Status:          SlotAvailable,
		RuleID:          ruleID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *BookingSlot) Window() Window { return Window{Start: s.StartAt, End: s.EndAt} }

func (s *BookingSlot) Overlaps(w Window) bool { return s.Window().Overlaps(w) }

func (s *BookingSlot) IsAvailable() bool { return s.Status == SlotAvailable }

// Book moves available -> booked and links the session.
func (s *BookingSlot) Book(sessionID uuid.UUID, now time.Time) error {
	if s.Status != SlotAvailable {
		return ErrSlotNotAvailable
	}
	s.Status = SlotBooked
	s.SessionID = &sessionID
	s.UpdatedAt = now
	return nil
}

// Unbook moves booked -> available and clears the session link.
func (s *BookingSlot) Unbook(now time.Time) error {
	if s.Status != SlotBooked {
		return ErrSlotNotBooked
	}
	s.Status = SlotAvailable
	s.SessionID = nil
	s.UpdatedAt = now
	return nil
}

// Block takes an unbooked slot off the market.
func (s *BookingSlot) Block(now time.Time) error {
	if s.Status == SlotBooked {
		return ErrSlotBooked
	}
	s.Status = SlotBlocked
	s.UpdatedAt = now
	return nil
}

func (s *BookingSlot) Unblock(now time.Time) error {
	if s.Status != SlotBlocked {
		return ErrSlotNotBlocked
	}
	s.Status = SlotAvailable
	s.UpdatedAt = now
	return nil
}

// Resize changes the window of an unbooked slot. Overlap with sibling slots
// is checked by the repository, not here.
func (s *BookingSlot) Resize(w Window, now time.Time) error {
	if s.Status == SlotBooked {
		return ErrSlotBooked
	}
	if !w.Valid() {
		return ErrInvalidTimeRange
	}
	s.StartAt = w.Start.UTC()
	s.EndAt = w.End.UTC()
	s.DurationMinutes = int(w.Duration() / time.Minute)
	s.UpdatedAt = now
	return nil
}

// FindOverlap returns the first slot in existing that overlaps candidate,
// ignoring candidate itself.
func FindOverlap(candidate *BookingSlot, existing []BookingSlot) *BookingSlot {
	for i := range existing {
		other := &existing[i]
		if other.ID == candidate.ID || other.InstructorID != candidate.InstructorID {
			continue
		}
		if other.Overlaps(candidate.Window()) {
			return other
		}
	}
	return nil
}
