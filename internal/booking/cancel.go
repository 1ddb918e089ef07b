package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/tutor-booking/internal/apperr"
	"github.com/hackgods/tutor-booking/internal/events"
	"github.com/hackgods/tutor-booking/internal/payment"
	"github.com/hackgods/tutor-booking/internal/schedule"
	"github.com/hackgods/tutor-booking/internal/session"
	"github.com/hackgods/tutor-booking/internal/wallet"
)

var errNotParticipant = fmt.Errorf("%w: only the student or the instructor may cancel", apperr.ErrValidation)

// CancelPayment abandons an in-flight checkout. StudentID, when set, must
// match the payer.
func (o *Orchestrator) CancelPayment(ctx context.Context, paymentID, studentID uuid.UUID) (*payment.Payment, error) {
	payments := o.store.BookingRepos().Payments
	pay, err := payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if studentID != uuid.Nil && pay.StudentID != studentID {
		return nil, errNotPayer
	}
	expected := pay.Status
	if err := pay.Cancel(o.now().UTC()); err != nil {
		return nil, err
	}
	if err := payments.UpdatePayment(ctx, pay, expected); err != nil {
		return nil, err
	}

	o.log.WithFields(logrus.Fields{"payment_id": pay.ID, "slot_id": pay.SlotID}).Info("payment cancelled")
	o.emit.Emit(events.New(events.PaymentCancelled, pay.ID, map[string]any{
		"slot_id": pay.SlotID,
	}, o.now().UTC()))
	return pay, nil
}

// CancelSessionRequest cancels a booked lesson on behalf of ActorID.
type CancelSessionRequest struct {
	SessionID uuid.UUID
	ActorID   uuid.UUID
	Reason    string
}

// CancelSessionResult carries the cancelled session. Warning is set when the
// wallet refund was queued for reconciliation.
type CancelSessionResult struct {
	Session *session.Session
	Payment *payment.Payment
	Warning string
}

// CancelSession cancels the session, releases its slot and refunds its
// payment in one transactional unit, then takes the instructor's share back
// out of the wallet.
func (o *Orchestrator) CancelSession(ctx context.Context, req CancelSessionRequest) (*CancelSessionResult, error) {
	ctx, span := o.tracer.Start(ctx, "booking.CancelSession")
	defer span.End()

	sess, err := o.store.BookingRepos().Sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if req.ActorID != sess.StudentID && req.ActorID != sess.InstructorID {
		return nil, errNotParticipant
	}

	var pay *payment.Payment
	err = o.store.BookingTx(ctx, sess.InstructorID, func(ctx context.Context, tx Tx) error {
		now := o.now().UTC()
		current, err := tx.Sessions.GetSession(ctx, req.SessionID)
		if err != nil {
			return err
		}
		expected := current.Status
		if err := current.Cancel(req.ActorID, req.Reason, now, o.cancellationWindow); err != nil {
			return err
		}
		if err := tx.Sessions.UpdateSession(ctx, current, expected); err != nil {
			return err
		}

		slot, err := tx.Slots.LockSlot(ctx, current.SlotID)
		switch {
		case errors.Is(err, schedule.ErrSlotNotFound):
		case err != nil:
			return err
		case slot.Status == schedule.SlotBooked && slot.SessionID != nil && *slot.SessionID == current.ID:
			if err := slot.Unbook(now); err != nil {
				return err
			}
			if err := tx.Slots.UpdateSlot(ctx, slot, schedule.SlotBooked); err != nil {
				return err
			}
		}

		p, err := tx.Payments.GetPayment(ctx, current.PaymentID)
		if err != nil {
			return err
		}
		if err := p.Refund(cancelReason(req.Reason), now); err != nil {
			return err
		}
		if err := tx.Payments.UpdatePayment(ctx, p, payment.StatusCompleted); err != nil {
			return err
		}
		sess, pay = current, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := o.log.WithFields(logrus.Fields{
		"session_id":    sess.ID,
		"payment_id":    pay.ID,
		"instructor_id": sess.InstructorID,
	})
	log.Info("session cancelled")
	now := o.now().UTC()
	o.emit.Emit(events.New(events.SessionCancelled, sess.ID, map[string]any{
		"cancelled_by": req.ActorID,
		"reason":       req.Reason,
		"slot_id":      sess.SlotID,
	}, now))
	o.emit.Emit(events.New(events.PaymentRefunded, pay.ID, map[string]any{
		"session_id": sess.ID,
		"amount":     pay.Amount.String(),
	}, now))

	res := &CancelSessionResult{Session: sess, Payment: pay}
	if _, err := o.wallet.RefundEarnings(ctx, sess.InstructorID, pay.ID, sess.ID); err != nil {
		log.WithError(err).Warn("wallet refund failed, queued for reconciliation")
		if rerr := o.wallet.RecordFailure(ctx, wallet.FailureRefund, sess.InstructorID, pay.ID, &sess.ID, pay.Amount, err); rerr != nil {
			log.WithError(rerr).Error("record wallet refund failure")
		}
		res.Warning = "Session cancelled; instructor wallet refund is pending reconciliation"
	}
	return res, nil
}

func cancelReason(reason string) string {
	if reason == "" {
		return "Session cancelled"
	}
	return reason
}

// GetSession returns a session by id.
func (o *Orchestrator) GetSession(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	return o.store.BookingRepos().Sessions.GetSession(ctx, id)
}

// ListSessions returns the instructor's sessions overlapping [from, to),
// ordered by start.
func (o *Orchestrator) ListSessions(ctx context.Context, instructorID uuid.UUID, from, to time.Time) ([]session.Session, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", apperr.ErrValidation)
	}
	return o.store.BookingRepos().Sessions.ListSessions(ctx, instructorID, from, to)
}

// GetPayment returns a payment by id.
func (o *Orchestrator) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return o.store.BookingRepos().Payments.GetPayment(ctx, id)
}

func (o *Orchestrator) StartSession(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	return o.sessionTransition(ctx, id, (*session.Session).Start)
}

func (o *Orchestrator) CompleteSession(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	return o.sessionTransition(ctx, id, (*session.Session).Complete)
}

func (o *Orchestrator) MarkNoShow(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	return o.sessionTransition(ctx, id, (*session.Session).MarkNoShow)
}

func (o *Orchestrator) sessionTransition(ctx context.Context, id uuid.UUID, fn func(*session.Session, time.Time) error) (*session.Session, error) {
	sessions := o.store.BookingRepos().Sessions
	sess, err := sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := sess.Status
	if err := fn(sess, o.now().UTC()); err != nil {
		return nil, err
	}
	if err := sessions.UpdateSession(ctx, sess, expected); err != nil {
		return nil, err
	}
	o.log.WithFields(logrus.Fields{"session_id": sess.ID, "status": sess.Status}).Info("session updated")
	return sess, nil
}
