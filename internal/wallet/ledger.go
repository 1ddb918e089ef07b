package wallet

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrLedgerMismatch marks a trail that does not reconstruct its wallet.
var ErrLedgerMismatch = errors.New("ledger mismatch")

// LedgerSummary totals a transaction trail.
type LedgerSummary struct {
	Balance     decimal.Decimal
	Earned      decimal.Decimal
	Withdrawn   decimal.Decimal
	Refunded    decimal.Decimal
	PendingHeld decimal.Decimal
	Entries     int
}

// Reconstruct replays txs in creation order and checks them against w:
// every balance_after must equal the running balance, and the totals must
// satisfy balance = earned - withdrawn - refunded - pending holds.
func Reconstruct(w *Wallet, txs []Transaction) (LedgerSummary, error) {
	var s LedgerSummary
	for i := range txs {
		t := &txs[i]
		if t.WalletID != w.ID {
			return s, fmt.Errorf("%w: entry %s: %w", ErrLedgerMismatch, t.ID, ErrForeignTransaction)
		}
		s.Balance = s.Balance.Add(t.Delta())
		if !s.Balance.Equal(t.BalanceAfter) {
			return s, fmt.Errorf("%w: entry %d (%s): running balance %s, balance_after %s",
				ErrLedgerMismatch, i, t.ID, s.Balance.StringFixed(2), t.BalanceAfter.StringFixed(2))
		}
		switch t.Type {
		case TxDeposit:
			s.Earned = s.Earned.Add(t.Amount)
		case TxRefund:
			s.Refunded = s.Refunded.Add(t.Amount)
		case TxWithdrawal:
			switch t.Status {
			case TxCompleted:
				s.Withdrawn = s.Withdrawn.Add(t.Amount)
			case TxPending:
				s.PendingHeld = s.PendingHeld.Add(t.Amount)
			}
		}
		s.Entries++
	}

	if !s.Balance.Equal(w.Balance) {
		return s, fmt.Errorf("%w: ledger balance %s, wallet balance %s", ErrLedgerMismatch, s.Balance.StringFixed(2), w.Balance.StringFixed(2))
	}
	if !s.Earned.Equal(w.TotalEarned) {
		return s, fmt.Errorf("%w: ledger earned %s, wallet total_earned %s", ErrLedgerMismatch, s.Earned.StringFixed(2), w.TotalEarned.StringFixed(2))
	}
	if !s.Withdrawn.Equal(w.TotalWithdrawn) {
		return s, fmt.Errorf("%w: ledger withdrawn %s, wallet total_withdrawn %s", ErrLedgerMismatch, s.Withdrawn.StringFixed(2), w.TotalWithdrawn.StringFixed(2))
	}
	expected := w.TotalEarned.Sub(w.TotalWithdrawn).Sub(s.Refunded).Sub(s.PendingHeld)
	if !expected.Equal(w.Balance) {
		return s, fmt.Errorf("%w: balance %s does not match earned-withdrawn-refunded-held %s",
			ErrLedgerMismatch, w.Balance.StringFixed(2), expected.StringFixed(2))
	}
	return s, nil
}
