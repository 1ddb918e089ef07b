package wallet_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/tutor-booking/internal/apperr"
	"github.com/hackgods/tutor-booking/internal/money"
	"github.com/hackgods/tutor-booking/internal/store/memory"
	"github.com/hackgods/tutor-booking/internal/wallet"
)

var now = time.Date(2026, time.November, 1, 12, 0, 0, 0, time.UTC)

func inr(s string) money.Money { return money.MustParse(s, "INR") }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.New(uuid.New(), "inr", now)
	require.NoError(t, err)
	assert.Equal(t, "INR", w.Currency)
	return w
}

func TestDeposit_GrowsBalanceAndEarned(t *testing.T) {
	w := newWallet(t)

	tx, err := w.Deposit(inr("425"), wallet.RefPayment, "p1", "", now)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(dec("425")))
	assert.True(t, w.TotalEarned.Equal(dec("425")))
	assert.Equal(t, wallet.TxCompleted, tx.Status)
	assert.True(t, tx.BalanceAfter.Equal(dec("425")))

	_, err = w.Deposit(inr("0"), wallet.RefPayment, "p2", "", now)
	assert.ErrorIs(t, err, wallet.ErrNonPositiveAmount)

	_, err = w.Deposit(money.MustParse("10", "USD"), wallet.RefPayment, "p3", "", now)
	assert.ErrorIs(t, err, wallet.ErrCurrencyMismatch)
	assert.True(t, apperr.IsValidation(err))
}

func TestRequestWithdrawal_InsufficientFunds(t *testing.T) {
	w := newWallet(t)
	_, err := w.Deposit(inr("425"), wallet.RefPayment, "p1", "", now)
	require.NoError(t, err)

	// WHEN: more than the balance is requested
	_, err = w.RequestWithdrawal(inr("600"), "payout", now)

	// THEN: it is refused and the balance is untouched
	require.Error(t, err)
	assert.ErrorIs(t, err, wallet.ErrInsufficientFunds)
	var ife *wallet.InsufficientFundsError
	require.True(t, errors.As(err, &ife))
	assert.True(t, ife.Available.Equal(dec("425")))
	assert.True(t, ife.Requested.Equal(dec("600")))
	assert.True(t, w.Balance.Equal(dec("425")))
}

func TestWithdrawal_HoldCompleteAndFail(t *testing.T) {
	w := newWallet(t)
	dep, err := w.Deposit(inr("1000"), wallet.RefPayment, "p1", "", now)
	require.NoError(t, err)
	trail := []wallet.Transaction{*dep}

	hold, err := w.RequestWithdrawal(inr("300"), "payout 1", now)
	require.NoError(t, err)
	assert.Equal(t, wallet.TxPending, hold.Status)
	assert.True(t, w.Balance.Equal(dec("700")))
	assert.True(t, w.TotalWithdrawn.IsZero())

	require.NoError(t, w.CompleteWithdrawal(hold, now))
	assert.True(t, w.TotalWithdrawn.Equal(dec("300")))
	assert.ErrorIs(t, w.CompleteWithdrawal(hold, now), wallet.ErrNotPending)
	trail = append(trail, *hold)

	second, err := w.RequestWithdrawal(inr("200"), "payout 2", now)
	require.NoError(t, err)
	reversal, err := w.FailWithdrawal(second, "bank rejected", now)
	require.NoError(t, err)
	assert.Equal(t, wallet.TxFailed, second.Status)
	assert.Equal(t, wallet.TxReversal, reversal.Type)
	assert.True(t, w.Balance.Equal(dec("700")))
	assert.True(t, reversal.BalanceAfter.Equal(dec("700")))
	trail = append(trail, *second, *reversal)

	summary, err := wallet.Reconstruct(w, trail)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Entries)
	assert.True(t, summary.Withdrawn.Equal(dec("300")))
}

func TestStatus_BlocksDepositsAndWithdrawals(t *testing.T) {
	w := newWallet(t)
	_, err := w.Deposit(inr("100"), wallet.RefPayment, "p1", "", now)
	require.NoError(t, err)

	require.NoError(t, w.Freeze(now))
	_, err = w.Deposit(inr("1"), wallet.RefPayment, "p2", "", now)
	assert.ErrorIs(t, err, wallet.ErrDepositsBlocked)
	_, err = w.RequestWithdrawal(inr("1"), "", now)
	assert.ErrorIs(t, err, wallet.ErrWithdrawalsBlocked)
	assert.True(t, w.Balance.Equal(dec("100")))

	assert.ErrorIs(t, w.Suspend(now), wallet.ErrInvalidStatus)
	require.NoError(t, w.Unfreeze(now))
	require.NoError(t, w.Suspend(now))
	_, err = w.Deposit(inr("1"), wallet.RefPayment, "p3", "", now)
	assert.ErrorIs(t, err, wallet.ErrDepositsBlocked)

	// refunds are still taken while suspended
	_, err = w.ProcessRefund(inr("40"), uuid.New(), "", now)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(dec("60")))
	require.NoError(t, w.Reactivate(now))
}

func TestReconstruct_DetectsTamperedSnapshot(t *testing.T) {
	w := newWallet(t)
	a, err := w.Deposit(inr("100"), wallet.RefPayment, "p1", "", now)
	require.NoError(t, err)
	b, err := w.Deposit(inr("50"), wallet.RefPayment, "p2", "", now)
	require.NoError(t, err)

	b.BalanceAfter = dec("140")
	_, err = wallet.Reconstruct(w, []wallet.Transaction{*a, *b})
	assert.ErrorIs(t, err, wallet.ErrLedgerMismatch)
}

func TestReconstruct_RandomLedgerAlwaysBalances(t *testing.T) {
	w := newWallet(t)
	var trail []wallet.Transaction
	amounts := []string{"425", "212.50", "99.99", "1000", "0.01", "350"}

	for i, a := range amounts {
		dep, err := w.Deposit(inr(a), wallet.RefPayment, uuid.NewString(), "", now)
		require.NoError(t, err)
		trail = append(trail, *dep)

		switch i % 3 {
		case 0:
			hold, err := w.RequestWithdrawal(inr("50"), "", now)
			require.NoError(t, err)
			require.NoError(t, w.CompleteWithdrawal(hold, now))
			trail = append(trail, *hold)
		case 1:
			hold, err := w.RequestWithdrawal(inr("20"), "", now)
			require.NoError(t, err)
			rev, err := w.FailWithdrawal(hold, "", now)
			require.NoError(t, err)
			trail = append(trail, *hold, *rev)
		case 2:
			ref, err := w.ProcessRefund(inr("10"), uuid.New(), "", now)
			require.NoError(t, err)
			trail = append(trail, *ref)
		}
		_, err = wallet.Reconstruct(w, trail)
		require.NoError(t, err, "after step %d", i)
	}

	// a pending hold still reconciles
	hold, err := w.RequestWithdrawal(inr("5"), "", now)
	require.NoError(t, err)
	trail = append(trail, *hold)
	summary, err := wallet.Reconstruct(w, trail)
	require.NoError(t, err)
	assert.True(t, summary.PendingHeld.Equal(dec("5")))
	assert.False(t, w.Balance.IsNegative())
}

func newService(t *testing.T) (*wallet.Service, *memory.Store) {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	store := memory.New()
	return wallet.NewService(store, decimal.NewFromInt(15), log, wallet.WithClock(func() time.Time { return now })), store
}

func TestService_CreditIsIdempotentPerPayment(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	instructor, paymentID := uuid.New(), uuid.New()

	credit, err := svc.CreditEarnings(ctx, instructor, paymentID, inr("500"))
	require.NoError(t, err)
	assert.Equal(t, "75.00 INR", credit.Fee.String())
	assert.Equal(t, "425.00 INR", credit.Net.String())
	assert.False(t, credit.Duplicate)

	again, err := svc.CreditEarnings(ctx, instructor, paymentID, inr("500"))
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, credit.Transaction.ID, again.Transaction.ID)

	w, err := svc.GetWallet(ctx, instructor)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(dec("425")))
}

func TestService_WithdrawalLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	instructor := uuid.New()
	_, err := svc.CreditEarnings(ctx, instructor, uuid.New(), inr("500"))
	require.NoError(t, err)

	_, err = svc.RequestWithdrawal(ctx, instructor, inr("600"), "payout")
	assert.ErrorIs(t, err, wallet.ErrInsufficientFunds)

	hold, err := svc.RequestWithdrawal(ctx, instructor, inr("400"), "payout")
	require.NoError(t, err)
	_, err = svc.FailWithdrawal(ctx, hold.ID, "bank rejected")
	require.NoError(t, err)

	hold, err = svc.RequestWithdrawal(ctx, instructor, inr("400"), "payout")
	require.NoError(t, err)
	done, err := svc.CompleteWithdrawal(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.TxCompleted, done.Status)

	w, err := svc.GetWallet(ctx, instructor)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(dec("25")))
	assert.True(t, w.TotalWithdrawn.Equal(dec("400")))

	summary, err := svc.VerifyLedger(ctx, instructor)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Entries)
}

func TestService_RefundBeforeCreditResolvesQueuedCredit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	instructor, paymentID, sessionID := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, svc.RecordFailure(ctx, wallet.FailureCredit, instructor, paymentID, &sessionID, inr("500"), errors.New("db down")))

	// the lesson is refunded before the credit was ever applied
	tx, err := svc.RefundEarnings(ctx, instructor, paymentID, sessionID)
	require.NoError(t, err)
	assert.Nil(t, tx)

	report, err := svc.ReconcileCredits(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)

	_, err = svc.GetWallet(ctx, instructor)
	assert.ErrorIs(t, err, wallet.ErrNotFound)
}

func TestService_OpenWalletTwice(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	instructor := uuid.New()

	_, err := svc.OpenWallet(ctx, instructor, "INR")
	require.NoError(t, err)
	_, err = svc.OpenWallet(ctx, instructor, "INR")
	assert.ErrorIs(t, err, wallet.ErrExists)
}

func TestService_RefundTakesBackWhatWasCredited(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	instructor, first, second := uuid.New(), uuid.New(), uuid.New()

	// GIVEN: two lessons credited at a 15% fee
	_, err := svc.CreditEarnings(ctx, instructor, first, inr("500"))
	require.NoError(t, err)
	_, err = svc.CreditEarnings(ctx, instructor, second, inr("500"))
	require.NoError(t, err)

	// WHEN: the fee changes to 10% before the first lesson is refunded
	log, _ := logtest.NewNullLogger()
	lowerFee := wallet.NewService(store, decimal.NewFromInt(10), log, wallet.WithClock(func() time.Time { return now }))
	tx, err := lowerFee.RefundEarnings(ctx, instructor, first, uuid.New())
	require.NoError(t, err)

	// THEN: exactly the credited share comes back out
	require.NotNil(t, tx)
	assert.True(t, tx.Amount.Equal(dec("425")))
	w, err := svc.GetWallet(ctx, instructor)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(dec("425")))
	_, err = svc.VerifyLedger(ctx, instructor)
	require.NoError(t, err)
}

// afterList runs a callback once the unresolved failures have been listed.
type afterList struct {
	*memory.Store
	then func()
}

func (s *afterList) WalletRepo() wallet.Repository {
	return listHook{Repository: s.Store.WalletRepo(), then: s.then}
}

type listHook struct {
	wallet.Repository
	then func()
}

func (r listHook) ListUnresolvedCreditFailures(ctx context.Context, limit int) ([]wallet.CreditFailure, error) {
	out, err := r.Repository.ListUnresolvedCreditFailures(ctx, limit)
	if r.then != nil {
		r.then()
	}
	return out, err
}

func TestService_ReconcileSkipsCreditRefundedMeanwhile(t *testing.T) {
	ctx := context.Background()
	log, _ := logtest.NewNullLogger()
	store := &afterList{Store: memory.New()}
	svc := wallet.NewService(store, decimal.NewFromInt(15), log, wallet.WithClock(func() time.Time { return now }))
	instructor, paymentID, sessionID := uuid.New(), uuid.New(), uuid.New()

	// GIVEN: a queued credit for a lesson
	_, err := svc.OpenWallet(ctx, instructor, "INR")
	require.NoError(t, err)
	require.NoError(t, svc.RecordFailure(ctx, wallet.FailureCredit, instructor, paymentID, &sessionID, inr("500"), errors.New("db down")))

	// AND: the lesson is refunded right after reconciliation listed its batch
	store.then = func() {
		_, err := svc.RefundEarnings(ctx, instructor, paymentID, sessionID)
		assert.NoError(t, err)
	}

	// WHEN
	report, err := svc.ReconcileCredits(ctx, 10)
	require.NoError(t, err)

	// THEN: the refunded credit is not paid out
	assert.Equal(t, wallet.ReconcileReport{Skipped: 1}, report)
	w, err := svc.GetWallet(ctx, instructor)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
	txs, err := svc.ListTransactions(ctx, instructor)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestService_ReconcileResolvesInSameUnit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	instructor, paymentID := uuid.New(), uuid.New()

	require.NoError(t, svc.RecordFailure(ctx, wallet.FailureCredit, instructor, paymentID, nil, inr("500"), errors.New("db down")))

	report, err := svc.ReconcileCredits(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, wallet.ReconcileReport{Attempted: 1, Resolved: 1}, report)

	// a second pass finds nothing left to replay
	report, err = svc.ReconcileCredits(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, wallet.ReconcileReport{}, report)

	w, err := svc.GetWallet(ctx, instructor)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(dec("425")))
}
