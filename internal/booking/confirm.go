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
	"github.com/hackgods/tutor-booking/internal/wallet"
)

var (
	errNotPayer       = fmt.Errorf("%w: payment belongs to another student", apperr.ErrValidation)
	errConfirmMissing = fmt.Errorf("%w: order id, payment id and signature are required", apperr.ErrValidation)
	errSlotGone       = errors.New("slot no longer available")
)

// ConfirmRequest carries the signed checkout callback.
type ConfirmRequest struct {
	PaymentID        uuid.UUID
	StudentID        uuid.UUID
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// ConfirmResult describes the booked lesson. Warning is set when the booking
// succeeded but the wallet credit was queued for reconciliation.
type ConfirmResult struct {
	Success        bool
	Message        string
	Warning        string
	PaymentID      uuid.UUID
	SessionID      uuid.UUID
	SlotID         uuid.UUID
	StartAt        time.Time
	EndAt          time.Time
	Amount         money.Money
	InstructorName string
}

func confirmFailure(paymentID uuid.UUID, msg string) *ConfirmResult {
	return &ConfirmResult{Success: false, Message: msg, PaymentID: paymentID}
}

// Confirm verifies the gateway payment and, in one transactional unit,
// creates the session, books the slot and completes the payment. The wallet
// is credited afterwards; a failed credit is queued, never rolled back into
// the booking.
func (o *Orchestrator) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	ctx, span := o.tracer.Start(ctx, "booking.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("payment_id", req.PaymentID.String()))

	res, err := o.confirm(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("success", res.Success))
	if res.Success {
		span.SetAttributes(attribute.String("session_id", res.SessionID.String()))
	}
	return res, nil
}

func (o *Orchestrator) confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		return nil, errConfirmMissing
	}
	payments := o.store.BookingRepos().Payments
	pay, err := payments.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if req.StudentID != uuid.Nil && pay.StudentID != req.StudentID {
		return nil, errNotPayer
	}
	if pay.Status != payment.StatusProcessing {
		return nil, fmt.Errorf("%w: payment is %s", payment.ErrInvalidTransition, pay.Status)
	}
	if err := pay.CheckOrder(req.GatewayOrderID); err != nil {
		return confirmFailure(pay.ID, MsgOrderMismatch), nil
	}

	log := o.log.WithFields(logrus.Fields{
		"payment_id":    pay.ID,
		"slot_id":       pay.SlotID,
		"instructor_id": pay.InstructorID,
	})

	verification, err := o.gateway.VerifyPayment(ctx, req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		msg := gatewayMessage(err)
		log.WithError(err).Warn("gateway verification failed")
		o.failPayment(ctx, pay, payment.StatusProcessing, msg)
		return confirmFailure(pay.ID, msg), nil
	}
	if !verification.IsValid {
		msg := verification.ErrorMessage
		if msg == "" {
			msg = MsgInvalidSignature
		}
		o.failPayment(ctx, pay, payment.StatusProcessing, msg)
		return confirmFailure(pay.ID, msg), nil
	}

	slot, err := o.schedule.GetSlot(ctx, pay.SlotID)
	if errors.Is(err, schedule.ErrSlotNotFound) {
		o.failPayment(ctx, pay, payment.StatusProcessing, MsgSlotGone)
		return confirmFailure(pay.ID, MsgSlotGone), nil
	}
	if err != nil {
		return nil, err
	}

	var sess *session.Session
	err = o.locker.WithLock(ctx, slotLockKey(slot.InstructorID, slot.StartAt), func(ctx context.Context) error {
		if !slot.IsAvailable() {
			return errSlotGone
		}
		if err := o.schedule.CheckBookable(ctx, slot); err != nil {
			if apperr.IsConflict(err) {
				return errSlotGone
			}
			return err
		}
		s, err := o.commit(ctx, pay, slot, verification.PaymentMethod, req)
		if err != nil {
			return err
		}
		sess = s
		return nil
	})
	switch {
	case errors.Is(err, errSlotGone):
		if o.settledElsewhere(ctx, pay.ID) {
			// a concurrent Confirm for this payment booked the slot
			return confirmFailure(pay.ID, MsgAlreadyProcessed), nil
		}
		log.Info("slot taken before confirmation")
		o.failPayment(ctx, pay, payment.StatusProcessing, MsgSlotGone)
		return confirmFailure(pay.ID, MsgSlotGone), nil
	case errors.Is(err, payment.ErrStateChanged):
		// a concurrent Confirm settled this payment first
		return confirmFailure(pay.ID, MsgAlreadyProcessed), nil
	case apperr.IsConflict(err):
		return confirmFailure(pay.ID, MsgSlotLocked), nil
	case err != nil:
		return nil, err
	}

	log = log.WithField("session_id", sess.ID)
	log.Info("booking confirmed")
	now := o.now().UTC()
	o.emit.Emit(events.New(events.PaymentCompleted, pay.ID, map[string]any{
		"slot_id":            pay.SlotID,
		"session_id":         sess.ID,
		"gateway_payment_id": req.GatewayPaymentID,
		"amount":             pay.Amount.Amount().StringFixed(money.Scale),
		"currency":           pay.Amount.Currency(),
	}, now))
	o.emit.Emit(events.New(events.SessionBooked, sess.ID, map[string]any{
		"instructor_id": sess.InstructorID,
		"student_id":    sess.StudentID,
		"slot_id":       sess.SlotID,
		"start_at":      sess.StartAt,
		"end_at":        sess.EndAt,
	}, now))

	res := &ConfirmResult{
		Success:        true,
		Message:        "Booking confirmed",
		PaymentID:      pay.ID,
		SessionID:      sess.ID,
		SlotID:         sess.SlotID,
		StartAt:        sess.StartAt,
		EndAt:          sess.EndAt,
		Amount:         sess.Amount,
		InstructorName: o.displayName(ctx, sess.InstructorID),
	}

	if _, err := o.wallet.CreditEarnings(ctx, pay.InstructorID, pay.ID, pay.Amount); err != nil {
		log.WithError(err).Warn("wallet credit failed, queued for reconciliation")
		if rerr := o.wallet.RecordFailure(ctx, wallet.FailureCredit, pay.InstructorID, pay.ID, &sess.ID, pay.Amount, err); rerr != nil {
			log.WithError(rerr).Error("record wallet credit failure")
		}
		res.Warning = MsgWalletCreditQueued
	}
	return res, nil
}

// settledElsewhere reports whether the payment left processing after it
// was loaded.
func (o *Orchestrator) settledElsewhere(ctx context.Context, id uuid.UUID) bool {
	latest, err := o.store.BookingRepos().Payments.GetPayment(ctx, id)
	return err == nil && latest.Status != payment.StatusProcessing
}

// commit is the Confirm transactional unit. The slot is re-read under lock
// and booked with a compare-and-swap on its status, and the payment is
// completed with a compare-and-swap from processing, so of two racing
// confirmations at most one commits.
func (o *Orchestrator) commit(ctx context.Context, pay *payment.Payment, slot *schedule.BookingSlot, method string, req ConfirmRequest) (*session.Session, error) {
	var sess *session.Session
	err := o.store.BookingTx(ctx, slot.InstructorID, func(ctx context.Context, tx Tx) error {
		now := o.now().UTC()
		current, err := tx.Slots.LockSlot(ctx, slot.ID)
		if err != nil {
			if errors.Is(err, schedule.ErrSlotNotFound) {
				return errSlotGone
			}
			return err
		}
		if !current.IsAvailable() {
			return errSlotGone
		}

		s, err := session.New(session.Params{
			InstructorID: pay.InstructorID,
			StudentID:    pay.StudentID,
			SlotID:       current.ID,
			PaymentID:    pay.ID,
			Type:         pay.LessonType,
			StartAt:      current.StartAt,
			EndAt:        current.EndAt,
			Amount:       pay.Amount,
		}, now)
		if err != nil {
			return err
		}
		if err := s.Confirm(now); err != nil {
			return err
		}
		if err := tx.Sessions.CreateSession(ctx, s); err != nil {
			return fmt.Errorf("create session: %w", err)
		}

		if err := current.Book(s.ID, now); err != nil {
			return errSlotGone
		}
		if err := tx.Slots.UpdateSlot(ctx, current, schedule.SlotAvailable); err != nil {
			if errors.Is(err, schedule.ErrSlotStateChanged) {
				return errSlotGone
			}
			return err
		}

		completed := *pay
		if err := completed.Complete(req.GatewayPaymentID, req.Signature, method, s.ID, now); err != nil {
			return err
		}
		if err := tx.Payments.UpdatePayment(ctx, &completed, payment.StatusProcessing); err != nil {
			return err
		}
		*pay = completed
		sess = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}
