// Package session models a booked lesson and its lifecycle.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/tutor-booking/internal/apperr"
	"github.com/hackgods/tutor-booking/internal/money"
)

type Type string

const (
	TypeTrial     Type = "trial"
	TypeSingle    Type = "single"
	TypeRecurring Type = "recurring"
)

func (t Type) Valid() bool {
	switch t {
	case TypeTrial, TypeSingle, TypeRecurring:
		return true
	}
	return false
}

type Status string

const (
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusConfirmed           Status = "confirmed"
	StatusInProgress          Status = "in_progress"
	StatusCompleted           Status = "completed"
	StatusCancelled           Status = "cancelled"
	StatusNoShow              Status = "no_show"
)

// DefaultCancellationWindow is how long before the start a session may still
// be cancelled.
const DefaultCancellationWindow = 24 * time.Hour

var (
	ErrNotFound          = fmt.Errorf("%w: session not found", apperr.ErrNotFound)
	ErrInvalidTimeRange  = fmt.Errorf("%w: session start must be before end", apperr.ErrValidation)
	ErrInvalidType       = fmt.Errorf("%w: unknown session type", apperr.ErrValidation)
	ErrInvalidTransition = fmt.Errorf("%w: invalid session status transition", apperr.ErrConflict)
	ErrTooLateToCancel   = fmt.Errorf("%w: session can no longer be cancelled", apperr.ErrConflict)
	ErrNotStarted        = fmt.Errorf("%w: session has not started yet", apperr.ErrConflict)
	ErrStateChanged      = fmt.Errorf("%w: session was modified concurrently", apperr.ErrConflict)
)

type Session struct {
	ID                 uuid.UUID
	InstructorID       uuid.UUID
	StudentID          uuid.UUID
	SlotID             uuid.UUID
	PaymentID          uuid.UUID
	Type               Type
	Status             Status
	StartAt            time.Time
	EndAt              time.Time
	DurationMinutes    int
	Amount             money.Money
	CancelledBy        *uuid.UUID
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ConfirmedAt        *time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
}

// Params carries what the booking protocol knows when it creates a session.
type Params struct {
	InstructorID uuid.UUID
	StudentID    uuid.UUID
	SlotID       uuid.UUID
	PaymentID    uuid.UUID
	Type         Type
	StartAt      time.Time
	EndAt        time.Time
	Amount       money.Money
}

// New builds a session in pending_confirmation.
func New(p Params, now time.Time) (*Session, error) {
	if !p.Type.Valid() {
		return nil, ErrInvalidType
	}
	if !p.StartAt.Before(p.EndAt) {
		return nil, ErrInvalidTimeRange
	}
	return &Session{
		ID:              uuid.New(),
		InstructorID:    p.InstructorID,
		StudentID:       p.StudentID,
		SlotID:          p.SlotID,
		PaymentID:       p.PaymentID,
		Type:            p.Type,
		Status:          StatusPendingConfirmation,
		StartAt:         p.StartAt.UTC(),
		EndAt:           p.EndAt.UTC(),
		DurationMinutes: int(p.EndAt.Sub(p.StartAt) / time.Minute),
		Amount:          p.Amount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *Session) Confirm(now time.Time) error {
	if s.Status != StatusPendingConfirmation {
		return ErrInvalidTransition
	}
	s.Status = StatusConfirmed
	s.ConfirmedAt = &now
	s.UpdatedAt = now
	return nil
}

// Start moves a confirmed session in progress once its start time is reached.
func (s *Session) Start(now time.Time) error {
	if s.Status != StatusConfirmed {
		return ErrInvalidTransition
	}
	if now.Before(s.StartAt) {
		return ErrNotStarted
	}
	s.Status = StatusInProgress
	s.StartedAt = &now
	s.UpdatedAt = now
	return nil
}

func (s *Session) Complete(now time.Time) error {
	if s.Status != StatusInProgress {
		return ErrInvalidTransition
	}
	s.Status = StatusCompleted
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

// CanBeCancelled reports whether Cancel would succeed at now.
func (s *Session) CanBeCancelled(now time.Time, window time.Duration) bool {
	if s.Status != StatusPendingConfirmation && s.Status != StatusConfirmed {
		return false
	}
	return !now.Add(window).After(s.StartAt)
}

// Cancel is allowed from pending_confirmation or confirmed, and only while
// the start is at least window away.
func (s *Session) Cancel(by uuid.UUID, reason string, now time.Time, window time.Duration) error {
	if s.Status != StatusPendingConfirmation && s.Status != StatusConfirmed {
		return ErrInvalidTransition
	}
	if !s.CanBeCancelled(now, window) {
		return ErrTooLateToCancel
	}
	s.Status = StatusCancelled
	s.CancelledBy = &by
	s.CancellationReason = reason
	s.CancelledAt = &now
	s.UpdatedAt = now
	return nil
}

// MarkNoShow is reachable only from in_progress.
func (s *Session) MarkNoShow(now time.Time) error {
	if s.Status != StatusInProgress {
		return ErrInvalidTransition
	}
	s.Status = StatusNoShow
	s.UpdatedAt = now
	return nil
}

// Occupies reports whether the session still holds its time window.
func (s *Session) Occupies() bool {
	return s.Status != StatusCancelled
}

// Repository persists sessions.
type Repository interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	// UpdateSession writes s only if the stored status equals expected.
	UpdateSession(ctx context.Context, s *Session, expected Status) error
	ListSessions(ctx context.Context, instructorID uuid.UUID, from, to time.Time) ([]Session, error)
}
