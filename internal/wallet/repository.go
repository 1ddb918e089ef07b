package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/tutor-booking/internal/money"
)

type FailureKind string

const (
	FailureCredit FailureKind = "credit"
	FailureRefund FailureKind = "refund"
)

// CreditFailure records a ledger write that did not happen after the
// booking it belongs to was already committed. Reconciliation replays it.
type CreditFailure struct {
	ID           uuid.UUID
	Kind         FailureKind
	InstructorID uuid.UUID
	PaymentID    uuid.UUID
	SessionID    *uuid.UUID
	Gross        money.Money
	LastError    string
	Attempts     int
	Resolved     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ResolvedAt   *time.Time
}

// Repository persists wallets, their ledger and pending reconciliation work.
type Repository interface {
	CreateWallet(ctx context.Context, w *Wallet) error
	GetWallet(ctx context.Context, id uuid.UUID) (*Wallet, error)
	GetWalletByInstructor(ctx context.Context, instructorID uuid.UUID) (*Wallet, error)
	// UpdateWallet writes w only if the stored version equals w.Version,
	// then increments w.Version.
	UpdateWallet(ctx context.Context, w *Wallet) error

	AppendTransaction(ctx context.Context, t *Transaction) error
	// UpdateTransactionStatus changes status only.
	UpdateTransactionStatus(ctx context.Context, t *Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// ListTransactions returns the trail in creation order.
	ListTransactions(ctx context.Context, walletID uuid.UUID) ([]Transaction, error)
	FindTransactionByReference(ctx context.Context, walletID uuid.UUID, typ TxType, refType, refID string) (*Transaction, error)

	RecordCreditFailure(ctx context.Context, f *CreditFailure) error
	UpdateCreditFailure(ctx context.Context, f *CreditFailure) error
	ListUnresolvedCreditFailures(ctx context.Context, limit int) ([]CreditFailure, error)
	// FindUnresolvedCreditFailure returns ErrFailureNotFound when there is none.
	FindUnresolvedCreditFailure(ctx context.Context, kind FailureKind, paymentID uuid.UUID) (*CreditFailure, error)
}

// Store adds the per-wallet transactional unit. Units for the same
// instructor are serialized.
type Store interface {
	WalletRepo() Repository
	WalletTx(ctx context.Context, instructorID uuid.UUID, fn func(ctx context.Context, repo Repository) error) error
}
