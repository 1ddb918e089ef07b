package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/tutor-booking/internal/wallet"
)

type walletRepo struct{ repo }

func (r walletRepo) CreateWallet(_ context.Context, w *wallet.Wallet) error {
	defer r.lock()()
	for _, existing := range r.s.st.wallets {
		if existing.InstructorID == w.InstructorID {
			return wallet.ErrExists
		}
	}
	r.s.st.wallets[w.ID] = *w
	return nil
}

func (r walletRepo) GetWallet(_ context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	defer r.lock()()
	w, ok := r.s.st.wallets[id]
	if !ok {
		return nil, wallet.ErrNotFound
	}
	return &w, nil
}

func (r walletRepo) GetWalletByInstructor(_ context.Context, instructorID uuid.UUID) (*wallet.Wallet, error) {
	defer r.lock()()
	for _, w := range r.s.st.wallets {
		if w.InstructorID == instructorID {
			return &w, nil
		}
	}
	return nil, wallet.ErrNotFound
}

func (r walletRepo) UpdateWallet(_ context.Context, w *wallet.Wallet) error {
	defer r.lock()()
	current, ok := r.s.st.wallets[w.ID]
	if !ok {
		return wallet.ErrNotFound
	}
	if current.Version != w.Version {
		return wallet.ErrStateChanged
	}
	w.Version++
	r.s.st.wallets[w.ID] = *w
	return nil
}

func (r walletRepo) AppendTransaction(_ context.Context, t *wallet.Transaction) error {
	defer r.lock()()
	r.s.st.ledger = append(r.s.st.ledger, *t)
	return nil
}

func (r walletRepo) UpdateTransactionStatus(_ context.Context, t *wallet.Transaction) error {
	defer r.lock()()
	for i := range r.s.st.ledger {
		if r.s.st.ledger[i].ID == t.ID {
			r.s.st.ledger[i].Status = t.Status
			r.s.st.ledger[i].UpdatedAt = t.UpdatedAt
			return nil
		}
	}
	return wallet.ErrTransactionNotFound
}

func (r walletRepo) GetTransaction(_ context.Context, id uuid.UUID) (*wallet.Transaction, error) {
	defer r.lock()()
	for _, t := range r.s.st.ledger {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, wallet.ErrTransactionNotFound
}

func (r walletRepo) ListTransactions(_ context.Context, walletID uuid.UUID) ([]wallet.Transaction, error) {
	defer r.lock()()
	var out []wallet.Transaction
	for _, t := range r.s.st.ledger {
		if t.WalletID == walletID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r walletRepo) FindTransactionByReference(_ context.Context, walletID uuid.UUID, typ wallet.TxType, refType, refID string) (*wallet.Transaction, error) {
	defer r.lock()()
	for _, t := range r.s.st.ledger {
		if t.WalletID == walletID && t.Type == typ && t.ReferenceType == refType && t.ReferenceID == refID {
			return &t, nil
		}
	}
	return nil, wallet.ErrTransactionNotFound
}

func (r walletRepo) RecordCreditFailure(_ context.Context, f *wallet.CreditFailure) error {
	defer r.lock()()
	r.s.st.failures = append(r.s.st.failures, *f)
	return nil
}

func (r walletRepo) UpdateCreditFailure(_ context.Context, f *wallet.CreditFailure) error {
	defer r.lock()()
	for i := range r.s.st.failures {
		if r.s.st.failures[i].ID == f.ID {
			r.s.st.failures[i] = *f
			return nil
		}
	}
	return wallet.ErrFailureNotFound
}

func (r walletRepo) ListUnresolvedCreditFailures(_ context.Context, limit int) ([]wallet.CreditFailure, error) {
	defer r.lock()()
	var out []wallet.CreditFailure
	for _, f := range r.s.st.failures {
		if f.Resolved {
			continue
		}
		out = append(out, f)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r walletRepo) FindUnresolvedCreditFailure(_ context.Context, kind wallet.FailureKind, paymentID uuid.UUID) (*wallet.CreditFailure, error) {
	defer r.lock()()
	for _, f := range r.s.st.failures {
		if !f.Resolved && f.Kind == kind && f.PaymentID == paymentID {
			return &f, nil
		}
	}
	return nil, wallet.ErrFailureNotFound
}
