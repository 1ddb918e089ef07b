// Package booking runs the payment-gated booking protocol: Initiate reserves
// a price and opens a gateway order, Confirm verifies the gateway payment and
// commits session, slot and payment together.
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/tutor-booking/internal/events"
	"github.com/hackgods/tutor-booking/internal/money"
	"github.com/hackgods/tutor-booking/internal/payment"
	"github.com/hackgods/tutor-booking/internal/schedule"
	"github.com/hackgods/tutor-booking/internal/session"
	"github.com/hackgods/tutor-booking/internal/wallet"
)

// StandardLessonMinutes is the lesson length the regular price is quoted for.
const StandardLessonMinutes = 50

// Messages returned in failed results.
const (
	MsgSlotNotAvailable   = "Slot is not available"
	MsgSlotGone           = "Slot no longer available"
	MsgSlotLocked         = "Slot is currently being booked"
	MsgSlotStarted        = "Slot has already started"
	MsgInstructorAway     = "Instructor is unavailable at this time"
	MsgPaymentInProgress  = "A payment is already in progress for this slot"
	MsgOrderMismatch      = "Order ID mismatch"
	MsgNoTrials           = "Instructor does not offer trial lessons"
	MsgNotAccepting       = "Instructor is not accepting bookings"
	MsgInvalidSignature   = "Invalid payment signature"
	MsgAlreadyProcessed   = "Payment was already processed"
	MsgWalletCreditQueued = "Payment received; instructor wallet credit is pending reconciliation"
)

const tracerName = "github.com/hackgods/tutor-booking/internal/booking"

// Orchestrator coordinates schedule, payment, session and wallet for one
// booking at a time. It is safe for concurrent use.
type Orchestrator struct {
	store    Store
	schedule *schedule.Service
	gateway  payment.Gateway
	wallet   *wallet.Service
	dir      Directory
	locker   Locker
	emit     events.Emitter
	log      logrus.FieldLogger
	tracer   trace.Tracer
	now      func() time.Time

	cancellationWindow time.Duration
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithLocker(l Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

func WithEmitter(e events.Emitter) Option {
	return func(o *Orchestrator) { o.emit = e }
}

// WithCancellationWindow sets how long before the start a session may be
// cancelled.
func WithCancellationWindow(d time.Duration) Option {
	return func(o *Orchestrator) { o.cancellationWindow = d }
}

func NewOrchestrator(
	store Store,
	sched *schedule.Service,
	gateway payment.Gateway,
	wallets *wallet.Service,
	dir Directory,
	log logrus.FieldLogger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:              store,
		schedule:           sched,
		gateway:            gateway,
		wallet:             wallets,
		dir:                dir,
		locker:             NoLock{},
		emit:               events.Discard,
		log:                log,
		tracer:             otel.Tracer(tracerName),
		now:                time.Now,
		cancellationWindow: session.DefaultCancellationWindow,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Quote prices a lesson of the given type and length. Trial lessons cost the
// flat trial price; regular lessons are pro-rated from the standard length.
func Quote(p Pricing, lesson session.Type, minutes int) (money.Money, error) {
	switch lesson {
	case session.TypeTrial:
		if p.TrialPrice == nil {
			return money.Money{}, errNoTrials
		}
		return *p.TrialPrice, nil
	case session.TypeSingle:
		if minutes == StandardLessonMinutes {
			return p.RegularPrice, nil
		}
		factor := decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(StandardLessonMinutes))
		return p.RegularPrice.Mul(factor), nil
	default:
		return money.Money{}, fmt.Errorf("%w: %q", errLessonType, lesson)
	}
}

func slotLockKey(instructorID uuid.UUID, start time.Time) string {
	return fmt.Sprintf("booking:slot:%s:%d", instructorID, start.UTC().Unix())
}

func (o *Orchestrator) displayName(ctx context.Context, id uuid.UUID) string {
	name, err := o.dir.DisplayName(ctx, id)
	if err != nil {
		o.log.WithError(err).WithField("user_id", id).Debug("display name lookup failed")
		return ""
	}
	return name
}
