package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hackgods/tutor-booking/internal/apperr"
	"github.com/hackgods/tutor-booking/internal/events"
	"github.com/hackgods/tutor-booking/internal/money"
	"github.com/hackgods/tutor-booking/internal/payment"
	"github.com/hackgods/tutor-booking/internal/schedule"
	"github.com/hackgods/tutor-booking/internal/session"
)

var (
	errLessonType = fmt.Errorf("%w: lesson type must be trial or single", apperr.ErrValidation)
	errNoTrials   = errors.New("instructor does not offer trial lessons")
	errSlotTarget = fmt.Errorf("%w: either slot_id or rule_id with start_at is required", apperr.ErrValidation)
	errMissingIDs = fmt.Errorf("%w: student and instructor ids are required", apperr.ErrValidation)
	errWrongSlot  = fmt.Errorf("%w: slot belongs to another instructor", apperr.ErrValidation)
)

// InitiateRequest names the slot either by id or, for a window generated
// from a recurring rule, by rule and start.
type InitiateRequest struct {
	StudentID    uuid.UUID
	InstructorID uuid.UUID
	SlotID       *uuid.UUID
	RuleID       *uuid.UUID
	StartAt      time.Time
	LessonType   session.Type
}

func (r InitiateRequest) validate() error {
	if r.StudentID == uuid.Nil || r.InstructorID == uuid.Nil {
		return errMissingIDs
	}
	if r.LessonType != session.TypeTrial && r.LessonType != session.TypeSingle {
		return fmt.Errorf("%w: %q", errLessonType, r.LessonType)
	}
	if r.SlotID == nil && (r.RuleID == nil || r.StartAt.IsZero()) {
		return errSlotTarget
	}
	return nil
}

// InitiateResult is what the client needs to open the gateway checkout.
type InitiateResult struct {
	Success        bool
	Message        string
	PaymentID      uuid.UUID
	SlotID         uuid.UUID
	OrderID        string
	KeyID          string
	AmountMinor    int64
	Currency       string
	Amount         money.Money
	StartAt        time.Time
	EndAt          time.Time
	InstructorName string
}

func initiateFailure(msg string) *InitiateResult {
	return &InitiateResult{Success: false, Message: msg}
}

// Initiate resolves the slot, prices the lesson, records a pending payment
// and opens a gateway order for it. Business rejections come back as a
// failed result; errors are reserved for malformed requests, missing
// entities and infrastructure failures.
func (o *Orchestrator) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	ctx, span := o.tracer.Start(ctx, "booking.Initiate")
	defer span.End()
	span.SetAttributes(
		attribute.String("instructor_id", req.InstructorID.String()),
		attribute.String("lesson_type", string(req.LessonType)),
	)

	res, err := o.initiate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("success", res.Success))
	if res.Success {
		span.SetAttributes(attribute.String("payment_id", res.PaymentID.String()))
	}
	return res, nil
}

func (o *Orchestrator) initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	profile, err := o.dir.Instructor(ctx, req.InstructorID)
	if err != nil {
		return nil, err
	}
	if !profile.AcceptsBookings {
		return initiateFailure(MsgNotAccepting), nil
	}

	slot, fail, err := o.resolveSlot(ctx, req)
	if err != nil || fail != "" {
		return failureOrErr(fail, err)
	}

	amount, err := Quote(profile.Pricing, req.LessonType, slot.DurationMinutes)
	if errors.Is(err, errNoTrials) {
		return initiateFailure(MsgNoTrials), nil
	}
	if err != nil {
		return nil, err
	}

	var pay *payment.Payment
	err = o.locker.WithLock(ctx, slotLockKey(slot.InstructorID, slot.StartAt), func(ctx context.Context) error {
		p, err := o.reserve(ctx, req, slot, amount)
		if err != nil {
			return err
		}
		pay = p
		return nil
	})
	switch {
	case errors.Is(err, payment.ErrActivePayment):
		return initiateFailure(MsgPaymentInProgress), nil
	case apperr.IsConflict(err):
		return initiateFailure(slotFailureMessage(err, MsgSlotLocked)), nil
	case err != nil:
		return nil, err
	}

	log := o.log.WithFields(logrus.Fields{
		"payment_id":    pay.ID,
		"slot_id":       slot.ID,
		"instructor_id": slot.InstructorID,
		"student_id":    req.StudentID,
	})

	order, err := o.gateway.CreateOrder(ctx, payment.OrderRequest{
		Amount:  amount,
		Receipt: pay.Receipt(),
		Notes: map[string]string{
			"payment_id":    pay.ID.String(),
			"slot_id":       slot.ID.String(),
			"instructor_id": slot.InstructorID.String(),
			"student_id":    req.StudentID.String(),
			"lesson_type":   string(req.LessonType),
		},
	})
	if err != nil {
		msg := gatewayMessage(err)
		log.WithError(err).Warn("gateway order creation failed")
		o.failPayment(ctx, pay, payment.StatusPending, msg)
		return initiateFailure(msg), nil
	}

	if err := pay.MarkProcessing(order.OrderID, o.now().UTC()); err != nil {
		return nil, err
	}
	if err := o.store.BookingRepos().Payments.UpdatePayment(ctx, pay, payment.StatusPending); err != nil {
		return nil, fmt.Errorf("record gateway order: %w", err)
	}

	log.WithField("order_id", order.OrderID).Info("payment initiated")
	o.emit.Emit(events.New(events.PaymentInitiated, pay.ID, map[string]any{
		"slot_id":       slot.ID,
		"instructor_id": slot.InstructorID,
		"student_id":    req.StudentID,
		"order_id":      order.OrderID,
		"amount":        amount.Amount().StringFixed(money.Scale),
		"currency":      amount.Currency(),
	}, o.now().UTC()))

	return &InitiateResult{
		Success:        true,
		Message:        "Payment initiated",
		PaymentID:      pay.ID,
		SlotID:         slot.ID,
		OrderID:        order.OrderID,
		KeyID:          order.KeyID,
		AmountMinor:    order.AmountMinor,
		Currency:       order.Currency,
		Amount:         amount,
		StartAt:        slot.StartAt,
		EndAt:          slot.EndAt,
		InstructorName: profile.DisplayName,
	}, nil
}

// resolveSlot returns the persisted slot for the request, materializing a
// generated window on first use. A non-empty message is a business failure.
func (o *Orchestrator) resolveSlot(ctx context.Context, req InitiateRequest) (*schedule.BookingSlot, string, error) {
	if req.SlotID != nil {
		slot, err := o.schedule.GetSlot(ctx, *req.SlotID)
		if err != nil {
			return nil, "", err
		}
		if slot.InstructorID != req.InstructorID {
			return nil, "", errWrongSlot
		}
		return slot, "", nil
	}

	slot, err := o.schedule.MaterializeSlot(ctx, req.InstructorID, *req.RuleID, req.StartAt)
	switch {
	case errors.Is(err, schedule.ErrSlotOverlap), errors.Is(err, schedule.ErrRuleInactive):
		return nil, MsgSlotNotAvailable, nil
	case err != nil:
		return nil, "", err
	}
	return slot, "", nil
}

// reserve re-reads the slot, checks it is bookable and inserts the pending
// payment. An in-flight payment for the slot is reported up front; the
// insert still fails if one slips in between.
func (o *Orchestrator) reserve(ctx context.Context, req InitiateRequest, slot *schedule.BookingSlot, amount money.Money) (*payment.Payment, error) {
	current, err := o.schedule.GetSlot(ctx, slot.ID)
	if err != nil {
		return nil, err
	}
	if !current.IsAvailable() {
		return nil, schedule.ErrSlotNotAvailable
	}
	if err := o.schedule.CheckBookable(ctx, current); err != nil {
		return nil, err
	}

	payments := o.store.BookingRepos().Payments
	if _, err := payments.FindActivePayment(ctx, current.ID); err == nil {
		return nil, payment.ErrActivePayment
	} else if !errors.Is(err, payment.ErrNotFound) {
		return nil, err
	}

	pay, err := payment.New(req.StudentID, current.InstructorID, current.ID, req.LessonType, amount, o.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := payments.CreatePayment(ctx, pay); err != nil {
		return nil, err
	}
	return pay, nil
}

// failPayment moves the payment to failed if it is still in the expected
// status. Losing that race is not an error: someone else settled it.
func (o *Orchestrator) failPayment(ctx context.Context, pay *payment.Payment, expected payment.Status, reason string) {
	if err := pay.Fail(reason, o.now().UTC()); err != nil {
		return
	}
	log := o.log.WithFields(logrus.Fields{"payment_id": pay.ID, "reason": reason})
	if err := o.store.BookingRepos().Payments.UpdatePayment(ctx, pay, expected); err != nil {
		if !errors.Is(err, payment.ErrStateChanged) {
			log.WithError(err).Error("mark payment failed")
		}
		return
	}
	log.Info("payment failed")
	o.emit.Emit(events.New(events.PaymentFailed, pay.ID, map[string]any{
		"slot_id": pay.SlotID,
		"reason":  reason,
	}, o.now().UTC()))
}

func gatewayMessage(err error) string {
	var gerr *payment.GatewayError
	if errors.As(err, &gerr) && gerr.Message != "" {
		return gerr.Message
	}
	return err.Error()
}

// slotFailureMessage maps a bookability conflict to the message shown to
// the student. Any other conflict, such as lock contention, gets fallback.
func slotFailureMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, schedule.ErrSlotNotAvailable), errors.Is(err, schedule.ErrSlotStateChanged):
		return MsgSlotNotAvailable
	case errors.Is(err, schedule.ErrSlotInPast):
		return MsgSlotStarted
	case errors.Is(err, schedule.ErrSlotInTimeOff):
		return MsgInstructorAway
	}
	return fallback
}

func failureOrErr(msg string, err error) (*InitiateResult, error) {
	if err != nil {
		return nil, err
	}
	return initiateFailure(msg), nil
}
