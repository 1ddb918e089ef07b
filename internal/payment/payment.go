// Package payment tracks single payment attempts and talks to the payment
// gateway.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/tutor-booking/internal/apperr"
	"github.com/hackgods/tutor-booking/internal/money"
	"github.com/hackgods/tutor-booking/internal/session"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Active statuses hold the slot's single in-flight payment.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusProcessing
}

// Terminal statuses accept no further transition, except refund from
// completed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

var (
	ErrNotFound          = fmt.Errorf("%w: payment not found", apperr.ErrNotFound)
	ErrActivePayment     = fmt.Errorf("%w: a payment is already in progress for this slot", apperr.ErrConflict)
	ErrInvalidTransition = fmt.Errorf("%w: invalid payment status transition", apperr.ErrConflict)
	ErrStateChanged      = fmt.Errorf("%w: payment was modified concurrently", apperr.ErrConflict)
	ErrOrderMismatch     = fmt.Errorf("%w: order id mismatch", apperr.ErrValidation)
	ErrNegativeAmount    = fmt.Errorf("%w: amount must not be negative", apperr.ErrValidation)
)

// Payment is one attempt to pay for one slot.
type Payment struct {
	ID               uuid.UUID
	StudentID        uuid.UUID
	InstructorID     uuid.UUID
	SlotID           uuid.UUID
	LessonType       session.Type
	Amount           money.Money
	Status           Status
	GatewayOrderID   string
	GatewayPaymentID string
	GatewaySignature string
	PaymentMethod    string
	SessionID        *uuid.UUID
	FailureReason    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
	RefundedAt       *time.Time
}

// New builds a pending payment.
func New(studentID, instructorID, slotID uuid.UUID, lesson session.Type, amount money.Money, now time.Time) (*Payment, error) {
	if amount.Amount().IsNegative() {
		return nil, ErrNegativeAmount
	}
	return &Payment{
		ID:           uuid.New(),
		StudentID:    studentID,
		InstructorID: instructorID,
		SlotID:       slotID,
		LessonType:   lesson,
		Amount:       amount,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Receipt is the merchant reference sent to the gateway.
func (p *Payment) Receipt() string {
	return "pay_" + p.ID.String()[:8]
}

// MarkProcessing records the gateway order: pending -> processing.
func (p *Payment) MarkProcessing(orderID string, now time.Time) error {
	if p.Status != StatusPending {
		return ErrInvalidTransition
	}
	p.Status = StatusProcessing
	p.GatewayOrderID = orderID
	p.UpdatedAt = now
	return nil
}

// CheckOrder fails with ErrOrderMismatch unless orderID is the gateway
// order this payment was created under.
func (p *Payment) CheckOrder(orderID string) error {
	if p.GatewayOrderID == "" || p.GatewayOrderID != orderID {
		return ErrOrderMismatch
	}
	return nil
}

// Complete records the verified gateway payment: processing -> completed.
func (p *Payment) Complete(gatewayPaymentID, signature, method string, sessionID uuid.UUID, now time.Time) error {
	if p.Status != StatusProcessing {
		return ErrInvalidTransition
	}
	p.Status = StatusCompleted
	p.GatewayPaymentID = gatewayPaymentID
	p.GatewaySignature = signature
	p.PaymentMethod = method
	p.SessionID = &sessionID
	p.CompletedAt = &now
	p.UpdatedAt = now
	return nil
}

// Fail is reachable from any non-terminal status. A completed payment is
// refunded, never failed.
func (p *Payment) Fail(reason string, now time.Time) error {
	if p.Status.Terminal() {
		return ErrInvalidTransition
	}
	p.Status = StatusFailed
	p.FailureReason = reason
	p.UpdatedAt = now
	return nil
}

// Cancel abandons a pending or processing payment.
func (p *Payment) Cancel(now time.Time) error {
	if !p.Status.Active() {
		return ErrInvalidTransition
	}
	p.Status = StatusCancelled
	p.UpdatedAt = now
	return nil
}

// Refund is reachable only from completed.
func (p *Payment) Refund(reason string, now time.Time) error {
	if p.Status != StatusCompleted {
		return ErrInvalidTransition
	}
	p.Status = StatusRefunded
	p.FailureReason = reason
	p.RefundedAt = &now
	p.UpdatedAt = now
	return nil
}

// Repository persists payments.
type Repository interface {
	// CreatePayment inserts p. It fails with ErrActivePayment when another
	// pending or processing payment exists for the same slot; the check and
	// the insert are one atomic operation.
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	FindActivePayment(ctx context.Context, slotID uuid.UUID) (*Payment, error)
	// UpdatePayment writes p only if the stored status equals expected.
	UpdatePayment(ctx context.Context, p *Payment, expected Status) error
}
