package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/tutor-booking/internal/events"
	"github.com/hackgods/tutor-booking/internal/money"
)

// Service runs ledger operations inside per-wallet transactional units.
type Service struct {
	store      Store
	feePercent decimal.Decimal
	emit       events.Emitter
	log        logrus.FieldLogger
	now        func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithEmitter(e events.Emitter) Option {
	return func(s *Service) { s.emit = e }
}

// NewService builds a Service that withholds feePercent percent of every
// credited payment.
func NewService(store Store, feePercent decimal.Decimal, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		feePercent: feePercent,
		emit:       events.Discard,
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Credit is the outcome of crediting one payment.
type Credit struct {
	Gross       money.Money
	Fee         money.Money
	Net         money.Money
	WalletID    uuid.UUID
	Transaction *Transaction
	// Duplicate is set when the payment had already been credited.
	Duplicate bool
}

// OpenWallet creates an active wallet for the instructor.
func (s *Service) OpenWallet(ctx context.Context, instructorID uuid.UUID, currency string) (*Wallet, error) {
	var out *Wallet
	err := s.store.WalletTx(ctx, instructorID, func(ctx context.Context, repo Repository) error {
		if _, err := repo.GetWalletByInstructor(ctx, instructorID); err == nil {
			return ErrExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		w, err := New(instructorID, currency, s.now().UTC())
		if err != nil {
			return err
		}
		if err := repo.CreateWallet(ctx, w); err != nil {
			return fmt.Errorf("create wallet: %w", err)
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) GetWallet(ctx context.Context, instructorID uuid.UUID) (*Wallet, error) {
	return s.store.WalletRepo().GetWalletByInstructor(ctx, instructorID)
}

func (s *Service) ListTransactions(ctx context.Context, instructorID uuid.UUID) ([]Transaction, error) {
	repo := s.store.WalletRepo()
	w, err := repo.GetWalletByInstructor(ctx, instructorID)
	if err != nil {
		return nil, err
	}
	return repo.ListTransactions(ctx, w.ID)
}

// VerifyLedger replays the wallet's trail against its balances.
func (s *Service) VerifyLedger(ctx context.Context, instructorID uuid.UUID) (LedgerSummary, error) {
	repo := s.store.WalletRepo()
	w, err := repo.GetWalletByInstructor(ctx, instructorID)
	if err != nil {
		return LedgerSummary{}, err
	}
	txs, err := repo.ListTransactions(ctx, w.ID)
	if err != nil {
		return LedgerSummary{}, err
	}
	return Reconstruct(w, txs)
}

func walletFor(ctx context.Context, repo Repository, instructorID uuid.UUID, currency string, now time.Time) (*Wallet, error) {
	w, err := repo.GetWalletByInstructor(ctx, instructorID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	w, err = New(instructorID, currency, now)
	if err != nil {
		return nil, err
	}
	if err := repo.CreateWallet(ctx, w); err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return w, nil
}

func (s *Service) split(gross money.Money) (fee, net money.Money) {
	return gross.Split(s.feePercent)
}

// CreditEarnings deposits the instructor's share of a completed payment,
// opening the wallet on first credit. Crediting the same payment twice is
// a no-op.
func (s *Service) CreditEarnings(ctx context.Context, instructorID, paymentID uuid.UUID, gross money.Money) (*Credit, error) {
	now := s.now().UTC()
	var credit *Credit
	err := s.store.WalletTx(ctx, instructorID, func(ctx context.Context, repo Repository) error {
		var err error
		credit, err = s.credit(ctx, repo, instructorID, paymentID, gross, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.credited(credit, instructorID, paymentID, now)
	return credit, nil
}

func (s *Service) credit(ctx context.Context, repo Repository, instructorID, paymentID uuid.UUID, gross money.Money, now time.Time) (*Credit, error) {
	fee, net := s.split(gross)
	credit := &Credit{Gross: gross, Fee: fee, Net: net}
	ref := paymentID.String()

	w, err := walletFor(ctx, repo, instructorID, gross.Currency(), now)
	if err != nil {
		return nil, err
	}
	credit.WalletID = w.ID
	prior, err := repo.FindTransactionByReference(ctx, w.ID, TxDeposit, RefPayment, ref)
	if err == nil {
		credit.Transaction = prior
		credit.Duplicate = true
		return credit, nil
	}
	if !errors.Is(err, ErrTransactionNotFound) {
		return nil, err
	}
	if !net.IsPositive() {
		return credit, nil
	}
	t, err := w.Deposit(net, RefPayment, ref, fmt.Sprintf("Lesson earnings (fee %s)", fee), now)
	if err != nil {
		return nil, err
	}
	if err := repo.UpdateWallet(ctx, w); err != nil {
		return nil, err
	}
	if err := repo.AppendTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("append deposit: %w", err)
	}
	credit.Transaction = t
	return credit, nil
}

func (s *Service) credited(c *Credit, instructorID, paymentID uuid.UUID, now time.Time) {
	if c.Transaction == nil || c.Duplicate {
		return
	}
	s.emit.Emit(events.New(events.WalletCredited, c.WalletID, map[string]any{
		"instructor_id": instructorID,
		"payment_id":    paymentID,
		"gross":         c.Gross.Amount().StringFixed(money.Scale),
		"fee":           c.Fee.Amount().StringFixed(money.Scale),
		"net":           c.Net.Amount().StringFixed(money.Scale),
		"currency":      c.Gross.Currency(),
	}, now))
	s.log.WithFields(logrus.Fields{
		"instructor_id": instructorID,
		"payment_id":    paymentID,
		"wallet_id":     c.WalletID,
		"net":           c.Net.String(),
	}).Info("wallet credited")
}

// RefundEarnings takes the instructor's share of a refunded payment back
// out of the wallet. The amount taken back is exactly what the payment's
// deposit credited. When the payment was never credited there is nothing
// to take back; a queued credit for it is resolved instead so it is never
// replayed.
func (s *Service) RefundEarnings(ctx context.Context, instructorID, paymentID, sessionID uuid.UUID) (*Transaction, error) {
	now := s.now().UTC()
	var (
		out       *Transaction
		duplicate bool
	)
	err := s.store.WalletTx(ctx, instructorID, func(ctx context.Context, repo Repository) error {
		var err error
		out, duplicate, err = s.refund(ctx, repo, instructorID, paymentID, sessionID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out != nil && !duplicate {
		s.refunded(out, instructorID, paymentID, sessionID, now)
	}
	return out, nil
}

func (s *Service) refund(ctx context.Context, repo Repository, instructorID, paymentID, sessionID uuid.UUID, now time.Time) (*Transaction, bool, error) {
	w, err := repo.GetWalletByInstructor(ctx, instructorID)
	if errors.Is(err, ErrNotFound) {
		return nil, false, resolvePendingCredit(ctx, repo, paymentID, now)
	}
	if err != nil {
		return nil, false, err
	}
	if prior, err := repo.FindTransactionByReference(ctx, w.ID, TxRefund, RefSession, sessionID.String()); err == nil {
		return prior, true, nil
	} else if !errors.Is(err, ErrTransactionNotFound) {
		return nil, false, err
	}
	deposit, err := repo.FindTransactionByReference(ctx, w.ID, TxDeposit, RefPayment, paymentID.String())
	if errors.Is(err, ErrTransactionNotFound) {
		return nil, false, resolvePendingCredit(ctx, repo, paymentID, now)
	}
	if err != nil {
		return nil, false, err
	}

	amount, err := money.New(deposit.Amount, w.Currency)
	if err != nil {
		return nil, false, err
	}
	t, err := w.ProcessRefund(amount, sessionID, "Lesson cancelled", now)
	if err != nil {
		return nil, false, err
	}
	if err := repo.UpdateWallet(ctx, w); err != nil {
		return nil, false, err
	}
	if err := repo.AppendTransaction(ctx, t); err != nil {
		return nil, false, fmt.Errorf("append refund: %w", err)
	}
	return t, false, nil
}

func (s *Service) refunded(t *Transaction, instructorID, paymentID, sessionID uuid.UUID, now time.Time) {
	s.emit.Emit(events.New(events.WalletRefunded, t.WalletID, map[string]any{
		"instructor_id": instructorID,
		"payment_id":    paymentID,
		"session_id":    sessionID,
		"amount":        t.Amount.StringFixed(money.Scale),
	}, now))
}

func resolvePendingCredit(ctx context.Context, repo Repository, paymentID uuid.UUID, now time.Time) error {
	f, err := repo.FindUnresolvedCreditFailure(ctx, FailureCredit, paymentID)
	if errors.Is(err, ErrFailureNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	f.Resolved = true
	f.ResolvedAt = &now
	f.UpdatedAt = now
	f.LastError = "payment refunded before credit"
	return repo.UpdateCreditFailure(ctx, f)
}

// RecordFailure queues a credit or refund that could not be applied so
// ReconcileCredits can replay it.
func (s *Service) RecordFailure(ctx context.Context, kind FailureKind, instructorID, paymentID uuid.UUID, sessionID *uuid.UUID, gross money.Money, cause error) error {
	now := s.now().UTC()
	f := &CreditFailure{
		ID:           uuid.New(),
		Kind:         kind,
		InstructorID: instructorID,
		PaymentID:    paymentID,
		SessionID:    sessionID,
		Gross:        gross,
		LastError:    cause.Error(),
		Attempts:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.WalletRepo().RecordCreditFailure(ctx, f); err != nil {
		return fmt.Errorf("record credit failure: %w", err)
	}
	s.emit.Emit(events.New(events.WalletCreditFail, instructorID, map[string]any{
		"kind":       kind,
		"payment_id": paymentID,
		"error":      cause.Error(),
	}, now))
	return nil
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Attempted int
	Resolved  int
	Failed    int
	// Skipped counts failures settled elsewhere after the batch was listed.
	Skipped int
}

// ReconcileCredits replays up to limit unresolved credit failures. Each
// replay re-reads its failure inside the wallet's transactional unit, so a
// failure resolved meanwhile (a refund before the credit) is never applied.
func (s *Service) ReconcileCredits(ctx context.Context, limit int) (ReconcileReport, error) {
	var report ReconcileReport
	failures, err := s.store.WalletRepo().ListUnresolvedCreditFailures(ctx, limit)
	if err != nil {
		return report, fmt.Errorf("list credit failures: %w", err)
	}

	for i := range failures {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		f := &failures[i]
		log := s.log.WithFields(logrus.Fields{
			"failure_id":    f.ID,
			"kind":          f.Kind,
			"payment_id":    f.PaymentID,
			"instructor_id": f.InstructorID,
		})

		skipped, applyErr := s.replay(ctx, f)
		switch {
		case skipped:
			report.Skipped++
			log.Info("credit failure already settled")
			continue
		case applyErr == nil:
			report.Attempted++
			report.Resolved++
			log.Info("credit failure reconciled")
			continue
		}

		report.Attempted++
		report.Failed++
		log.WithError(applyErr).Warn("reconciliation attempt failed")
		now := s.now().UTC()
		f.Attempts++
		f.UpdatedAt = now
		f.LastError = applyErr.Error()
		if err := s.store.WalletRepo().UpdateCreditFailure(ctx, f); err != nil {
			return report, fmt.Errorf("update credit failure %s: %w", f.ID, err)
		}
	}
	return report, nil
}

// replay applies one queued failure and marks it resolved in the same
// unit. skipped reports that the failure was no longer unresolved.
func (s *Service) replay(ctx context.Context, listed *CreditFailure) (skipped bool, err error) {
	now := s.now().UTC()
	var (
		credit   *Credit
		refunded *Transaction
	)
	err = s.store.WalletTx(ctx, listed.InstructorID, func(ctx context.Context, repo Repository) error {
		f, err := repo.FindUnresolvedCreditFailure(ctx, listed.Kind, listed.PaymentID)
		if errors.Is(err, ErrFailureNotFound) || (err == nil && f.ID != listed.ID) {
			skipped = true
			return nil
		}
		if err != nil {
			return err
		}

		switch f.Kind {
		case FailureCredit:
			credit, err = s.credit(ctx, repo, f.InstructorID, f.PaymentID, f.Gross, now)
		case FailureRefund:
			if f.SessionID == nil {
				return errors.New("refund failure without session id")
			}
			var duplicate bool
			refunded, duplicate, err = s.refund(ctx, repo, f.InstructorID, f.PaymentID, *f.SessionID, now)
			if duplicate {
				refunded = nil
			}
		default:
			err = fmt.Errorf("unknown failure kind %q", f.Kind)
		}
		if err != nil {
			return err
		}

		f.Attempts++
		f.Resolved = true
		f.ResolvedAt = &now
		f.UpdatedAt = now
		return repo.UpdateCreditFailure(ctx, f)
	})
	if err != nil || skipped {
		return skipped, err
	}
	if credit != nil {
		s.credited(credit, listed.InstructorID, listed.PaymentID, now)
	}
	if refunded != nil {
		s.refunded(refunded, listed.InstructorID, listed.PaymentID, *listed.SessionID, now)
	}
	return false, nil
}

// RequestWithdrawal holds amount for payout.
func (s *Service) RequestWithdrawal(ctx context.Context, instructorID uuid.UUID, amount money.Money, desc string) (*Transaction, error) {
	var out *Transaction
	err := s.store.WalletTx(ctx, instructorID, func(ctx context.Context, repo Repository) error {
		w, err := repo.GetWalletByInstructor(ctx, instructorID)
		if err != nil {
			return err
		}
		t, err := w.RequestWithdrawal(amount, desc, s.now().UTC())
		if err != nil {
			return err
		}
		if err := repo.UpdateWallet(ctx, w); err != nil {
			return err
		}
		if err := repo.AppendTransaction(ctx, t); err != nil {
			return fmt.Errorf("append withdrawal: %w", err)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"instructor_id":  instructorID,
		"transaction_id": out.ID,
		"amount":         amount.String(),
	}).Info("withdrawal requested")
	return out, nil
}

func (s *Service) CompleteWithdrawal(ctx context.Context, txID uuid.UUID) (*Transaction, error) {
	return s.settleWithdrawal(ctx, txID, func(ctx context.Context, repo Repository, w *Wallet, t *Transaction, now time.Time) error {
		return w.CompleteWithdrawal(t, now)
	})
}

func (s *Service) FailWithdrawal(ctx context.Context, txID uuid.UUID, reason string) (*Transaction, error) {
	return s.settleWithdrawal(ctx, txID, func(ctx context.Context, repo Repository, w *Wallet, t *Transaction, now time.Time) error {
		reversal, err := w.FailWithdrawal(t, reason, now)
		if err != nil {
			return err
		}
		return repo.AppendTransaction(ctx, reversal)
	})
}

func (s *Service) settleWithdrawal(ctx context.Context, txID uuid.UUID, fn func(context.Context, Repository, *Wallet, *Transaction, time.Time) error) (*Transaction, error) {
	repo := s.store.WalletRepo()
	t, err := repo.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	w, err := repo.GetWallet(ctx, t.WalletID)
	if err != nil {
		return nil, err
	}

	var out *Transaction
	err = s.store.WalletTx(ctx, w.InstructorID, func(ctx context.Context, repo Repository) error {
		w, err := repo.GetWallet(ctx, t.WalletID)
		if err != nil {
			return err
		}
		t, err := repo.GetTransaction(ctx, txID)
		if err != nil {
			return err
		}
		if err := fn(ctx, repo, w, t, s.now().UTC()); err != nil {
			return err
		}
		if err := repo.UpdateTransactionStatus(ctx, t); err != nil {
			return err
		}
		if err := repo.UpdateWallet(ctx, w); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit.Emit(events.New(events.WithdrawalUpdated, out.WalletID, map[string]any{
		"transaction_id": out.ID,
		"status":         out.Status,
	}, s.now().UTC()))
	return out, nil
}

func (s *Service) Freeze(ctx context.Context, instructorID uuid.UUID) (*Wallet, error) {
	return s.setStatus(ctx, instructorID, (*Wallet).Freeze)
}

func (s *Service) Unfreeze(ctx context.Context, instructorID uuid.UUID) (*Wallet, error) {
	return s.setStatus(ctx, instructorID, (*Wallet).Unfreeze)
}

func (s *Service) Suspend(ctx context.Context, instructorID uuid.UUID) (*Wallet, error) {
	return s.setStatus(ctx, instructorID, (*Wallet).Suspend)
}

func (s *Service) Reactivate(ctx context.Context, instructorID uuid.UUID) (*Wallet, error) {
	return s.setStatus(ctx, instructorID, (*Wallet).Reactivate)
}

func (s *Service) setStatus(ctx context.Context, instructorID uuid.UUID, fn func(*Wallet, time.Time) error) (*Wallet, error) {
	var out *Wallet
	err := s.store.WalletTx(ctx, instructorID, func(ctx context.Context, repo Repository) error {
		w, err := repo.GetWalletByInstructor(ctx, instructorID)
		if err != nil {
			return err
		}
		if err := fn(w, s.now().UTC()); err != nil {
			return err
		}
		if err := repo.UpdateWallet(ctx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"instructor_id": instructorID,
		"wallet_id":     out.ID,
		"status":        out.Status,
	}).Info("wallet status changed")
	return out, nil
}
