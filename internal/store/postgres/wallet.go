package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/hackgods/tutor-booking/internal/money"
	"github.com/hackgods/tutor-booking/internal/wallet"
)

const walletColumns = `id, instructor_id, balance, total_earned, total_withdrawn, currency, status, version, created_at, updated_at`

func scanWallet(row pgx.Row) (*wallet.Wallet, error) {
	var w wallet.Wallet

	err := row.Scan(
		&w.ID,
		&w.InstructorID,
		&w.Balance,
		&w.TotalEarned,
		&w.TotalWithdrawn,
		&w.Currency,
		&w.Status,
		&w.Version,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

const txColumns = `id, wallet_id, tx_type, amount, balance_after, status, reference_type, reference_id, description, created_at, updated_at`

func scanTransaction(row pgx.Row) (*wallet.Transaction, error) {
	var t wallet.Transaction

	err := row.Scan(
		&t.ID,
		&t.WalletID,
		&t.Type,
		&t.Amount,
		&t.BalanceAfter,
		&t.Status,
		&t.ReferenceType,
		&t.ReferenceID,
		&t.Description,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

const failureColumns = `id, kind, instructor_id, payment_id, session_id, gross, currency, last_error, attempts, resolved,
	created_at, updated_at, resolved_at`

func scanFailure(row pgx.Row) (*wallet.CreditFailure, error) {
	var f wallet.CreditFailure
	var gross decimal.Decimal
	var currency string

	err := row.Scan(
		&f.ID,
		&f.Kind,
		&f.InstructorID,
		&f.PaymentID,
		&f.SessionID,
		&gross,
		&currency,
		&f.LastError,
		&f.Attempts,
		&f.Resolved,
		&f.CreatedAt,
		&f.UpdatedAt,
		&f.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrFailureNotFound
		}
		return nil, err
	}
	if f.Gross, err = money.New(gross, currency); err != nil {
		return nil, fmt.Errorf("credit failure %s gross: %w", f.ID, err)
	}
	return &f, nil
}

type walletRepo struct{ q dbtx }

func (r walletRepo) CreateWallet(ctx context.Context, w *wallet.Wallet) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO wallets (`+walletColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, w.ID, w.InstructorID, w.Balance, w.TotalEarned, w.TotalWithdrawn, w.Currency, w.Status, w.Version, w.CreatedAt, w.UpdatedAt)
	if pgCode(err) == codeUniqueViolation {
		return wallet.ErrExists
	}
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

func (r walletRepo) GetWallet(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	row := r.q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
	return scanWallet(row)
}

func (r walletRepo) GetWalletByInstructor(ctx context.Context, instructorID uuid.UUID) (*wallet.Wallet, error) {
	row := r.q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE instructor_id = $1`, instructorID)
	return scanWallet(row)
}

func (r walletRepo) UpdateWallet(ctx context.Context, w *wallet.Wallet) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE wallets
		SET balance = $2,
		    total_earned = $3,
		    total_withdrawn = $4,
		    status = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE id = $1
		  AND version = $7
	`, w.ID, w.Balance, w.TotalEarned, w.TotalWithdrawn, w.Status, w.UpdatedAt, w.Version)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetWallet(ctx, w.ID); err != nil {
			return err
		}
		return wallet.ErrStateChanged
	}
	w.Version++
	return nil
}

func (r walletRepo) AppendTransaction(ctx context.Context, t *wallet.Transaction) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO wallet_transactions (`+txColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.WalletID, t.Type, t.Amount, t.BalanceAfter, t.Status, t.ReferenceType, t.ReferenceID, t.Description, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

func (r walletRepo) UpdateTransactionStatus(ctx context.Context, t *wallet.Transaction) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE wallet_transactions
		SET status = $2,
		    updated_at = $3
		WHERE id = $1
	`, t.ID, t.Status, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update wallet transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return wallet.ErrTransactionNotFound
	}
	return nil
}

func (r walletRepo) GetTransaction(ctx context.Context, id uuid.UUID) (*wallet.Transaction, error) {
	row := r.q.QueryRow(ctx, `SELECT `+txColumns+` FROM wallet_transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (r walletRepo) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]wallet.Transaction, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+txColumns+`
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY seq
	`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []wallet.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r walletRepo) FindTransactionByReference(ctx context.Context, walletID uuid.UUID, typ wallet.TxType, refType, refID string) (*wallet.Transaction, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+txColumns+`
		FROM wallet_transactions
		WHERE wallet_id = $1
		  AND tx_type = $2
		  AND reference_type = $3
		  AND reference_id = $4
		ORDER BY seq
		LIMIT 1
	`, walletID, typ, refType, refID)
	return scanTransaction(row)
}

func (r walletRepo) RecordCreditFailure(ctx context.Context, f *wallet.CreditFailure) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO credit_failures (`+failureColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, f.ID, f.Kind, f.InstructorID, f.PaymentID, f.SessionID, f.Gross.Amount(), f.Gross.Currency(),
		f.LastError, f.Attempts, f.Resolved, f.CreatedAt, f.UpdatedAt, f.ResolvedAt)
	if err != nil {
		return fmt.Errorf("insert credit failure: %w", err)
	}
	return nil
}

func (r walletRepo) UpdateCreditFailure(ctx context.Context, f *wallet.CreditFailure) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE credit_failures
		SET last_error = $2,
		    attempts = $3,
		    resolved = $4,
		    updated_at = $5,
		    resolved_at = $6
		WHERE id = $1
	`, f.ID, f.LastError, f.Attempts, f.Resolved, f.UpdatedAt, nullableTime(f.ResolvedAt))
	if err != nil {
		return fmt.Errorf("update credit failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return wallet.ErrFailureNotFound
	}
	return nil
}

func (r walletRepo) ListUnresolvedCreditFailures(ctx context.Context, limit int) ([]wallet.CreditFailure, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+failureColumns+`
		FROM credit_failures
		WHERE NOT resolved
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []wallet.CreditFailure
	for rows.Next() {
		f, err := scanFailure(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r walletRepo) FindUnresolvedCreditFailure(ctx context.Context, kind wallet.FailureKind, paymentID uuid.UUID) (*wallet.CreditFailure, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+failureColumns+`
		FROM credit_failures
		WHERE kind = $1
		  AND payment_id = $2
		  AND NOT resolved
		ORDER BY created_at
		LIMIT 1
	`, kind, paymentID)
	return scanFailure(row)
}
