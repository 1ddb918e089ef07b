package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/tutor-booking/internal/apperr"
	"github.com/hackgods/tutor-booking/internal/booking"
	"github.com/hackgods/tutor-booking/internal/events"
	"github.com/hackgods/tutor-booking/internal/money"
	"github.com/hackgods/tutor-booking/internal/payment"
	"github.com/hackgods/tutor-booking/internal/schedule"
	"github.com/hackgods/tutor-booking/internal/session"
	"github.com/hackgods/tutor-booking/internal/store/memory"
	"github.com/hackgods/tutor-booking/internal/wallet"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// Sunday noon; the test slot is the following Thursday morning.
var (
	now       = time.Date(2026, time.November, 1, 12, 0, 0, 0, time.UTC)
	slotStart = time.Date(2026, time.November, 5, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	ctx        context.Context
	clock      *clock
	store      *memory.Store
	sched      *schedule.Service
	wallets    *wallet.Service
	gw         *payment.FakeGateway
	orch       *booking.Orchestrator
	rec        *events.Recorder
	hook       *logtest.Hook
	instructor uuid.UUID
	student    uuid.UUID
	slot       *schedule.BookingSlot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clk := &clock{t: now}
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	store := memory.New()
	rec := events.NewRecorder(64)

	trial := money.MustParse("200", "INR")
	instructor := uuid.New()
	store.AddInstructor(booking.InstructorProfile{
		ID:              instructor,
		DisplayName:     "Asha Rao",
		AcceptsBookings: true,
		Pricing: booking.Pricing{
			RegularPrice: money.MustParse("500", "INR"),
			TrialPrice:   &trial,
		},
	})
	student := uuid.New()
	store.AddUser(student, "Ravi Kumar")

	sched := schedule.NewService(store, log, schedule.WithClock(clk.Now))
	wallets := wallet.NewService(store, decimal.NewFromInt(15), log, wallet.WithClock(clk.Now), wallet.WithEmitter(rec))
	gw := payment.NewFakeGateway("test-secret")
	orch := booking.NewOrchestrator(store, sched, gw, wallets, store, log,
		booking.WithClock(clk.Now),
		booking.WithEmitter(rec),
	)

	slot, err := sched.CreateSlot(ctx, instructor, schedule.Window{Start: slotStart, End: slotStart.Add(50 * time.Minute)})
	require.NoError(t, err)

	return &fixture{
		ctx:        ctx,
		clock:      clk,
		store:      store,
		sched:      sched,
		wallets:    wallets,
		gw:         gw,
		orch:       orch,
		rec:        rec,
		hook:       hook,
		instructor: instructor,
		student:    student,
		slot:       slot,
	}
}

func (f *fixture) initiate(t *testing.T, student uuid.UUID) *booking.InitiateResult {
	t.Helper()
	res, err := f.orch.Initiate(f.ctx, booking.InitiateRequest{
		StudentID:    student,
		InstructorID: f.instructor,
		SlotID:       &f.slot.ID,
		LessonType:   session.TypeSingle,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) confirmRequest(res *booking.InitiateResult, gatewayPaymentID string) booking.ConfirmRequest {
	return booking.ConfirmRequest{
		PaymentID:        res.PaymentID,
		StudentID:        f.student,
		GatewayOrderID:   res.OrderID,
		GatewayPaymentID: gatewayPaymentID,
		Signature:        f.gw.Sign(res.OrderID, gatewayPaymentID),
	}
}

func (f *fixture) book(t *testing.T) *booking.ConfirmResult {
	t.Helper()
	init := f.initiate(t, f.student)
	require.True(t, init.Success, init.Message)
	res, err := f.orch.Confirm(f.ctx, f.confirmRequest(init, "pay_live_1"))
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	return res
}

func TestInitiateConfirm_CreditsWalletNetOfFee(t *testing.T) {
	f := newFixture(t)

	// WHEN: the student initiates a 50 minute lesson
	init := f.initiate(t, f.student)
	require.True(t, init.Success, init.Message)
	assert.Equal(t, int64(50000), init.AmountMinor)
	assert.Equal(t, "INR", init.Currency)
	assert.Equal(t, "Asha Rao", init.InstructorName)

	pay, err := f.orch.GetPayment(f.ctx, init.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusProcessing, pay.Status)
	assert.Equal(t, init.OrderID, pay.GatewayOrderID)

	// AND: confirms with a valid signature
	res, err := f.orch.Confirm(f.ctx, f.confirmRequest(init, "pay_live_1"))
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.Empty(t, res.Warning)

	// THEN: session, slot and payment are committed together
	sess, err := f.orch.GetSession(f.ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusConfirmed, sess.Status)
	assert.True(t, sess.StartAt.Equal(slotStart))

	slot, err := f.sched.GetSlot(f.ctx, f.slot.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.SlotBooked, slot.Status)
	assert.Equal(t, sess.ID, *slot.SessionID)

	pay, err = f.orch.GetPayment(f.ctx, init.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, pay.Status)
	assert.Equal(t, "pay_live_1", pay.GatewayPaymentID)
	assert.Equal(t, "upi", pay.PaymentMethod)

	// AND: the wallet gets 500 minus the 15% fee
	w, err := f.wallets.GetWallet(f.ctx, f.instructor)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.RequireFromString("425")), w.Balance.String())
	assert.True(t, w.TotalEarned.Equal(decimal.RequireFromString("425")))

	txs, err := f.wallets.ListTransactions(f.ctx, f.instructor)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, wallet.TxDeposit, txs[0].Type)
	assert.Equal(t, wallet.TxCompleted, txs[0].Status)
	assert.True(t, txs[0].BalanceAfter.Equal(decimal.RequireFromString("425")))

	assert.Equal(t, []events.Type{
		events.PaymentInitiated,
		events.PaymentCompleted,
		events.SessionBooked,
		events.WalletCredited,
	}, f.rec.Types())
}

func TestInitiate_BookedSlotIsRejectedWithoutPayment(t *testing.T) {
	f := newFixture(t)
	f.book(t)
	before := len(f.store.Payments(f.slot.ID))

	// WHEN: another student tries the booked slot
	res := f.initiate(t, uuid.New())

	// THEN: it fails and no payment is created
	assert.False(t, res.Success)
	assert.Equal(t, booking.MsgSlotNotAvailable, res.Message)
	assert.Len(t, f.store.Payments(f.slot.ID), before)
}

func TestConfirm_OrderMismatchLeavesPaymentProcessing(t *testing.T) {
	f := newFixture(t)
	init := f.initiate(t, f.student)
	require.True(t, init.Success)

	req := f.confirmRequest(init, "pay_live_1")
	req.GatewayOrderID = "order_other"
	res, err := f.orch.Confirm(f.ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, booking.MsgOrderMismatch, res.Message)

	pay, err := f.orch.GetPayment(f.ctx, init.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusProcessing, pay.Status)
}

func TestConfirm_SlotGoneFailsPayment(t *testing.T) {
	f := newFixture(t)
	init := f.initiate(t, f.student)
	require.True(t, init.Success)

	// GIVEN: the instructor blocks the slot during checkout
	_, err := f.sched.BlockSlot(f.ctx, f.slot.ID)
	require.NoError(t, err)

	res, err := f.orch.Confirm(f.ctx, f.confirmRequest(init, "pay_live_1"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, booking.MsgSlotGone, res.Message)

	pay, err := f.orch.GetPayment(f.ctx, init.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, pay.Status)
	assert.Equal(t, booking.MsgSlotGone, pay.FailureReason)
	assert.Empty(t, f.store.Sessions(f.instructor))
}

func TestConfirm_InvalidSignatureFailsPayment(t *testing.T) {
	f := newFixture(t)
	init := f.initiate(t, f.student)
	require.True(t, init.Success)

	req := f.confirmRequest(init, "pay_live_1")
	req.Signature = "forged"
	res, err := f.orch.Confirm(f.ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, booking.MsgInvalidSignature, res.Message)

	pay, err := f.orch.GetPayment(f.ctx, init.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, pay.Status)

	// a failed payment cannot be confirmed again
	_, err = f.orch.Confirm(f.ctx, f.confirmRequest(init, "pay_live_1"))
	assert.ErrorIs(t, err, payment.ErrInvalidTransition)
}

func TestInitiate_AtMostOneActivePaymentPerSlot(t *testing.T) {
	f := newFixture(t)

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]*booking.InitiateResult, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.orch.Initiate(f.ctx, booking.InitiateRequest{
				StudentID:    uuid.New(),
				InstructorID: f.instructor,
				SlotID:       &f.slot.ID,
				LessonType:   session.TypeSingle,
			})
			if assert.NoError(t, err) {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, res := range results {
		if res != nil && res.Success {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)

	active := 0
	for _, p := range f.store.Payments(f.slot.ID) {
		if p.Status.Active() {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestInitiate_GatewayFailureFailsPayment(t *testing.T) {
	f := newFixture(t)
	f.gw.FailCreate("Gateway unavailable")

	res := f.initiate(t, f.student)
	assert.False(t, res.Success)
	assert.Equal(t, "Gateway unavailable", res.Message)

	payments := f.store.Payments(f.slot.ID)
	require.Len(t, payments, 1)
	assert.Equal(t, payment.StatusFailed, payments[0].Status)

	// the failed attempt does not hold the slot
	f.gw.FailCreate("")
	res = f.initiate(t, f.student)
	assert.True(t, res.Success, res.Message)
}

func TestInitiate_TrialRequiresInstructorOffer(t *testing.T) {
	f := newFixture(t)
	other := uuid.New()
	f.store.AddInstructor(booking.InstructorProfile{
		ID:              other,
		AcceptsBookings: true,
		Pricing:         booking.Pricing{RegularPrice: money.MustParse("800", "INR")},
	})
	slot, err := f.sched.CreateSlot(f.ctx, other, schedule.Window{Start: slotStart, End: slotStart.Add(30 * time.Minute)})
	require.NoError(t, err)

	res, err := f.orch.Initiate(f.ctx, booking.InitiateRequest{
		StudentID:    f.student,
		InstructorID: other,
		SlotID:       &slot.ID,
		LessonType:   session.TypeTrial,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, booking.MsgNoTrials, res.Message)

	_, err = f.orch.Initiate(f.ctx, booking.InitiateRequest{
		StudentID:    f.student,
		InstructorID: other,
		SlotID:       &slot.ID,
		LessonType:   session.TypeRecurring,
	})
	assert.True(t, apperr.IsValidation(err))
}

func TestQuote_ProRatesRegularLessons(t *testing.T) {
	trial := money.MustParse("150", "INR")
	p := booking.Pricing{RegularPrice: money.MustParse("500", "INR"), TrialPrice: &trial}

	m, err := booking.Quote(p, session.TypeSingle, 25)
	require.NoError(t, err)
	assert.Equal(t, "250.00 INR", m.String())

	m, err = booking.Quote(p, session.TypeTrial, 25)
	require.NoError(t, err)
	assert.Equal(t, "150.00 INR", m.String())
}

func TestInitiate_MaterializesGeneratedWindow(t *testing.T) {
	f := newFixture(t)
	thursday := time.Thursday
	rule, err := f.sched.CreateRule(f.ctx, f.instructor, schedule.RuleInput{
		Type:         schedule.RuleRecurring,
		DayOfWeek:    &thursday,
		StartTime:    schedule.MustTimeOfDay("14:00"),
		EndTime:      schedule.MustTimeOfDay("16:00"),
		SlotMinutes:  50,
		BreakMinutes: 10,
	})
	require.NoError(t, err)

	start := time.Date(2026, time.November, 5, 15, 0, 0, 0, time.UTC)
	res, err := f.orch.Initiate(f.ctx, booking.InitiateRequest{
		StudentID:    f.student,
		InstructorID: f.instructor,
		RuleID:       &rule.ID,
		StartAt:      start,
		LessonType:   session.TypeSingle,
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	assert.True(t, res.StartAt.Equal(start))

	slot, err := f.sched.GetSlot(f.ctx, res.SlotID)
	require.NoError(t, err)
	require.NotNil(t, slot.RuleID)
	assert.Equal(t, rule.ID, *slot.RuleID)

	// a start the rule never generates is rejected
	_, err = f.orch.Initiate(f.ctx, booking.InitiateRequest{
		StudentID:    f.student,
		InstructorID: f.instructor,
		RuleID:       &rule.ID,
		StartAt:      start.Add(10 * time.Minute),
		LessonType:   session.TypeSingle,
	})
	assert.ErrorIs(t, err, schedule.ErrNotGenerated)
}

func TestConfirm_ConcurrentConfirmsBookOnce(t *testing.T) {
	f := newFixture(t)
	init := f.initiate(t, f.student)
	require.True(t, init.Success)
	req := f.confirmRequest(init, "pay_live_1")

	const racers = 2
	var wg sync.WaitGroup
	type outcome struct {
		res *booking.ConfirmResult
		err error
	}
	outcomes := make([]outcome, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.orch.Confirm(f.ctx, req)
			outcomes[i] = outcome{res, err}
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			assert.True(t, apperr.IsConflict(o.err), o.err.Error())
		case o.res.Success:
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.store.Sessions(f.instructor), 1)

	pay, err := f.orch.GetPayment(f.ctx, init.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, pay.Status)

	w, err := f.wallets.GetWallet(f.ctx, f.instructor)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.RequireFromString("425")))
}

func TestConfirm_WalletFailureDoesNotUndoBooking(t *testing.T) {
	f := newFixture(t)
	_, err := f.wallets.OpenWallet(f.ctx, f.instructor, "INR")
	require.NoError(t, err)
	_, err = f.wallets.Freeze(f.ctx, f.instructor)
	require.NoError(t, err)

	// WHEN: the booking is confirmed while the wallet refuses deposits
	res := f.book(t)

	// THEN: the booking stands and the credit is queued
	assert.Equal(t, booking.MsgWalletCreditQueued, res.Warning)
	sess, err := f.orch.GetSession(f.ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusConfirmed, sess.Status)

	warned := false
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)

	// AND: reconciliation applies it once the wallet is usable again
	_, err = f.wallets.Unfreeze(f.ctx, f.instructor)
	require.NoError(t, err)
	report, err := f.wallets.ReconcileCredits(f.ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, wallet.ReconcileReport{Attempted: 1, Resolved: 1}, report)

	w, err := f.wallets.GetWallet(f.ctx, f.instructor)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.RequireFromString("425")))

	report, err = f.wallets.ReconcileCredits(f.ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
}

func TestCancelSession_RefundsAndReleasesSlot(t *testing.T) {
	f := newFixture(t)
	res := f.book(t)

	out, err := f.orch.CancelSession(f.ctx, booking.CancelSessionRequest{
		SessionID: res.SessionID,
		ActorID:   f.student,
		Reason:    "exam moved",
	})
	require.NoError(t, err)
	assert.Empty(t, out.Warning)
	assert.Equal(t, session.StatusCancelled, out.Session.Status)
	assert.Equal(t, payment.StatusRefunded, out.Payment.Status)

	slot, err := f.sched.GetSlot(f.ctx, f.slot.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.SlotAvailable, slot.Status)
	assert.Nil(t, slot.SessionID)

	w, err := f.wallets.GetWallet(f.ctx, f.instructor)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())

	summary, err := f.wallets.VerifyLedger(f.ctx, f.instructor)
	require.NoError(t, err)
	assert.True(t, summary.Refunded.Equal(decimal.RequireFromString("425")))

	// the released slot can be booked again
	again := f.initiate(t, uuid.New())
	assert.True(t, again.Success, again.Message)
}

func TestCancelSession_InsideWindowIsRejected(t *testing.T) {
	f := newFixture(t)
	res := f.book(t)
	f.clock.Set(slotStart.Add(-23 * time.Hour))

	_, err := f.orch.CancelSession(f.ctx, booking.CancelSessionRequest{SessionID: res.SessionID, ActorID: f.instructor})
	assert.ErrorIs(t, err, session.ErrTooLateToCancel)

	_, err = f.orch.CancelSession(f.ctx, booking.CancelSessionRequest{SessionID: res.SessionID, ActorID: uuid.New()})
	assert.True(t, apperr.IsValidation(err))

	sess, err := f.orch.GetSession(f.ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusConfirmed, sess.Status)
}

func TestCancelPayment_ReleasesSlotForOthers(t *testing.T) {
	f := newFixture(t)
	init := f.initiate(t, f.student)
	require.True(t, init.Success)

	_, err := f.orch.CancelPayment(f.ctx, init.PaymentID, uuid.New())
	assert.True(t, apperr.IsValidation(err))

	pay, err := f.orch.CancelPayment(f.ctx, init.PaymentID, f.student)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCancelled, pay.Status)

	res := f.initiate(t, uuid.New())
	assert.True(t, res.Success, res.Message)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	res := f.book(t)

	_, err := f.orch.StartSession(f.ctx, res.SessionID)
	assert.ErrorIs(t, err, session.ErrNotStarted)

	f.clock.Set(slotStart.Add(2 * time.Minute))
	sess, err := f.orch.StartSession(f.ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusInProgress, sess.Status)

	sess, err = f.orch.CompleteSession(f.ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, sess.Status)

	_, err = f.orch.MarkNoShow(f.ctx, res.SessionID)
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
}

// verifyThen runs a callback before verifying, the way a retried checkout
// callback can land while the first one is still in flight.
type verifyThen struct {
	*payment.FakeGateway
	then func()
}

func (g *verifyThen) VerifyPayment(ctx context.Context, orderID, paymentID, signature string) (*payment.Verification, error) {
	if then := g.then; then != nil {
		g.then = nil
		then()
	}
	return g.FakeGateway.VerifyPayment(ctx, orderID, paymentID, signature)
}

func TestConfirm_RetryAfterCommitReportsAlreadyProcessed(t *testing.T) {
	f := newFixture(t)
	init := f.initiate(t, f.student)
	require.True(t, init.Success)
	req := f.confirmRequest(init, "pay_live_1")

	// GIVEN: a second callback for the same payment commits while the first
	// is verifying
	gw := &verifyThen{FakeGateway: f.gw}
	log, _ := logtest.NewNullLogger()
	retrying := booking.NewOrchestrator(f.store, f.sched, gw, f.wallets, f.store, log, booking.WithClock(f.clock.Now))
	gw.then = func() {
		first, err := f.orch.Confirm(f.ctx, req)
		require.NoError(t, err)
		require.True(t, first.Success, first.Message)
	}

	// WHEN
	res, err := retrying.Confirm(f.ctx, req)

	// THEN: the late callback neither fails the payment nor books twice
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, booking.MsgAlreadyProcessed, res.Message)

	pay, err := f.orch.GetPayment(f.ctx, init.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, pay.Status)
	assert.Empty(t, pay.FailureReason)
	assert.Len(t, f.store.Sessions(f.instructor), 1)
}
