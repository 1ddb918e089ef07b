// Package wallet is the instructor earnings ledger.
//
// A Wallet is only mutated through its own methods. Each balance-affecting
// method returns the Transaction it appended; the caller persists both in
// one transactional unit.
package wallet

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/tutor-booking/internal/apperr"
	"github.com/hackgods/tutor-booking/internal/money"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusFrozen    Status = "frozen"
	StatusSuspended Status = "suspended"
)

func (s Status) CanReceiveDeposits() bool { return s == StatusActive }
func (s Status) CanWithdraw() bool        { return s == StatusActive }

type TxType string

const (
	TxDeposit    TxType = "deposit"
	TxWithdrawal TxType = "withdrawal"
	TxRefund     TxType = "refund"
	// TxReversal returns funds held by a failed withdrawal.
	TxReversal   TxType = "reversal"
)

type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxFailed    TxStatus = "failed"
	TxCancelled TxStatus = "cancelled"
)

// Reference types attached to ledger entries.
const (
	RefPayment    = "payment"
	RefSession    = "session"
	RefWithdrawal = "withdrawal"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

var (
	ErrNotFound            = fmt.Errorf("%w: wallet not found", apperr.ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("%w: wallet transaction not found", apperr.ErrNotFound)
	ErrFailureNotFound     = fmt.Errorf("%w: credit failure not found", apperr.ErrNotFound)
	ErrExists              = fmt.Errorf("%w: wallet already exists", apperr.ErrConflict)
	ErrDepositsBlocked     = fmt.Errorf("%w: wallet cannot receive deposits", apperr.ErrConflict)
	ErrWithdrawalsBlocked  = fmt.Errorf("%w: wallet cannot withdraw", apperr.ErrConflict)
	ErrInvalidStatus       = fmt.Errorf("%w: invalid wallet status transition", apperr.ErrConflict)
	ErrNotPending          = fmt.Errorf("%w: transaction is not a pending withdrawal", apperr.ErrConflict)
	ErrStateChanged        = fmt.Errorf("%w: wallet was modified concurrently", apperr.ErrConflict)
	ErrNonPositiveAmount   = fmt.Errorf("%w: amount must be positive", apperr.ErrValidation)
	ErrCurrencyMismatch    = fmt.Errorf("%w: currency does not match wallet", apperr.ErrValidation)
	ErrForeignTransaction  = fmt.Errorf("%w: transaction belongs to another wallet", apperr.ErrValidation)
)

// InsufficientFundsError reports a withdrawal or refund larger than the
// balance. The wallet is left unchanged.
type InsufficientFundsError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
	Currency  string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s %s, requested %s %s",
		e.Available.StringFixed(money.Scale), e.Currency, e.Requested.StringFixed(money.Scale), e.Currency)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// Wallet is one instructor's earnings account. Version increments on
// every persisted change.
type Wallet struct {
	ID             uuid.UUID
	InstructorID   uuid.UUID
	Balance        decimal.Decimal
	TotalEarned    decimal.Decimal
	TotalWithdrawn decimal.Decimal
	Currency       string
	Status         Status
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction is one append-only ledger entry. Only Status changes after
// creation.
type Transaction struct {
	ID            uuid.UUID
	WalletID      uuid.UUID
	Type          TxType
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	Status        TxStatus
	ReferenceType string
	ReferenceID   string
	Description   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Delta is the signed effect of the entry on the balance at the moment it
// was appended.
func (t *Transaction) Delta() decimal.Decimal {
	switch t.Type {
	case TxDeposit, TxReversal:
		return t.Amount
	default:
		return t.Amount.Neg()
	}
}

func New(instructorID uuid.UUID, currency string, now time.Time) (*Wallet, error) {
	zero, err := money.New(decimal.Zero, currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return &Wallet{
		ID:             uuid.New(),
		InstructorID:   instructorID,
		Balance:        decimal.Zero,
		TotalEarned:    decimal.Zero,
		TotalWithdrawn: decimal.Zero,
		Currency:       zero.Currency(),
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// BalanceMoney returns the balance as Money.
func (w *Wallet) BalanceMoney() money.Money {
	m, _ := money.New(w.Balance, w.Currency)
	return m
}

func (w *Wallet) checkAmount(amount money.Money) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if amount.Currency() != w.Currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, amount.Currency(), w.Currency)
	}
	return nil
}

func (w *Wallet) checkFunds(amount money.Money) error {
	if amount.GreaterThan(w.BalanceMoney()) {
		return &InsufficientFundsError{Available: w.Balance, Requested: amount.Amount(), Currency: w.Currency}
	}
	return nil
}

func (w *Wallet) entry(typ TxType, amount decimal.Decimal, status TxStatus, refType, refID, desc string, now time.Time) *Transaction {
	return &Transaction{
		ID:            uuid.New(),
		WalletID:      w.ID,
		Type:          typ,
		Amount:        amount,
		BalanceAfter:  w.Balance,
		Status:        status,
		ReferenceType: refType,
		ReferenceID:   refID,
		Description:   desc,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Deposit credits earnings: balance and total earned grow by amount.
func (w *Wallet) Deposit(amount money.Money, refType, refID, desc string, now time.Time) (*Transaction, error) {
	if !w.Status.CanReceiveDeposits() {
		return nil, ErrDepositsBlocked
	}
	if err := w.checkAmount(amount); err != nil {
		return nil, err
	}
	w.Balance = w.Balance.Add(amount.Amount())
	w.TotalEarned = w.TotalEarned.Add(amount.Amount())
	w.UpdatedAt = now
	return w.entry(TxDeposit, amount.Amount(), TxCompleted, refType, refID, desc, now), nil
}

// RequestWithdrawal holds amount out of the balance and appends a pending
// withdrawal. Total withdrawn moves only on completion.
func (w *Wallet) RequestWithdrawal(amount money.Money, desc string, now time.Time) (*Transaction, error) {
	if !w.Status.CanWithdraw() {
		return nil, ErrWithdrawalsBlocked
	}
	if err := w.checkAmount(amount); err != nil {
		return nil, err
	}
	if err := w.checkFunds(amount); err != nil {
		return nil, err
	}
	w.Balance = w.Balance.Sub(amount.Amount())
	w.UpdatedAt = now
	t := w.entry(TxWithdrawal, amount.Amount(), TxPending, RefWithdrawal, "", desc, now)
	t.ReferenceID = t.ID.String()
	return t, nil
}

func (w *Wallet) pendingWithdrawal(t *Transaction) error {
	if t.WalletID != w.ID {
		return ErrForeignTransaction
	}
	if t.Type != TxWithdrawal || t.Status != TxPending {
		return ErrNotPending
	}
	return nil
}

// CompleteWithdrawal settles a held withdrawal.
func (w *Wallet) CompleteWithdrawal(t *Transaction, now time.Time) error {
	if err := w.pendingWithdrawal(t); err != nil {
		return err
	}
	w.TotalWithdrawn = w.TotalWithdrawn.Add(t.Amount)
	w.UpdatedAt = now
	t.Status = TxCompleted
	t.UpdatedAt = now
	return nil
}

// FailWithdrawal releases the held funds back to the balance. The release
// is appended as a reversal entry so the trail keeps reconstructing the
// balance.
func (w *Wallet) FailWithdrawal(t *Transaction, reason string, now time.Time) (*Transaction, error) {
	if err := w.pendingWithdrawal(t); err != nil {
		return nil, err
	}
	w.Balance = w.Balance.Add(t.Amount)
	w.UpdatedAt = now
	t.Status = TxFailed
	t.UpdatedAt = now
	return w.entry(TxReversal, t.Amount, TxCompleted, RefWithdrawal, t.ID.String(), reason, now), nil
}

// ProcessRefund takes a refunded lesson's earnings back out of the balance.
// It is allowed whatever the wallet status.
func (w *Wallet) ProcessRefund(amount money.Money, sessionID uuid.UUID, desc string, now time.Time) (*Transaction, error) {
	if err := w.checkAmount(amount); err != nil {
		return nil, err
	}
	if err := w.checkFunds(amount); err != nil {
		return nil, err
	}
	w.Balance = w.Balance.Sub(amount.Amount())
	w.UpdatedAt = now
	return w.entry(TxRefund, amount.Amount(), TxCompleted, RefSession, sessionID.String(), desc, now), nil
}

func (w *Wallet) setStatus(from, to Status, now time.Time) error {
	if w.Status != from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, w.Status, to)
	}
	w.Status = to
	w.UpdatedAt = now
	return nil
}

func (w *Wallet) Freeze(now time.Time) error     { return w.setStatus(StatusActive, StatusFrozen, now) }
func (w *Wallet) Unfreeze(now time.Time) error   { return w.setStatus(StatusFrozen, StatusActive, now) }
func (w *Wallet) Suspend(now time.Time) error    { return w.setStatus(StatusActive, StatusSuspended, now) }
func (w *Wallet) Reactivate(now time.Time) error { return w.setStatus(StatusSuspended, StatusActive, now) }
