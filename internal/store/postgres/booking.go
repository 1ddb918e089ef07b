package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/hackgods/tutor-booking/internal/booking"
	"github.com/hackgods/tutor-booking/internal/money"
	"github.com/hackgods/tutor-booking/internal/payment"
	"github.com/hackgods/tutor-booking/internal/session"
)

// Sessions

const sessionColumns = `id, instructor_id, student_id, slot_id, payment_id, session_type, status, start_at, end_at,
	duration_minutes, amount, currency, cancelled_by, cancellation_reason, created_at, updated_at,
	confirmed_at, started_at, completed_at, cancelled_at`

func scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	var amount decimal.Decimal
	var currency string

	err := row.Scan(
		&s.ID,
		&s.InstructorID,
		&s.StudentID,
		&s.SlotID,
		&s.PaymentID,
		&s.Type,
		&s.Status,
		&s.StartAt,
		&s.EndAt,
		&s.DurationMinutes,
		&amount,
		&currency,
		&s.CancelledBy,
		&s.CancellationReason,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.ConfirmedAt,
		&s.StartedAt,
		&s.CompletedAt,
		&s.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}

	if s.Amount, err = money.New(amount, currency); err != nil {
		return nil, fmt.Errorf("session %s amount: %w", s.ID, err)
	}
	s.StartAt = s.StartAt.UTC()
	s.EndAt = s.EndAt.UTC()
	return &s, nil
}

type sessionRepo struct{ q dbtx }

func (r sessionRepo) CreateSession(ctx context.Context, s *session.Session) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`, s.ID, s.InstructorID, s.StudentID, s.SlotID, s.PaymentID, s.Type, s.Status, s.StartAt, s.EndAt,
		s.DurationMinutes, s.Amount.Amount(), s.Amount.Currency(), s.CancelledBy, s.CancellationReason,
		s.CreatedAt, s.UpdatedAt, s.ConfirmedAt, s.StartedAt, s.CompletedAt, s.CancelledAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r sessionRepo) GetSession(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	row := r.q.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (r sessionRepo) UpdateSession(ctx context.Context, s *session.Session, expected session.Status) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE sessions
		SET status = $2,
		    cancelled_by = $3,
		    cancellation_reason = $4,
		    updated_at = $5,
		    confirmed_at = $6,
		    started_at = $7,
		    completed_at = $8,
		    cancelled_at = $9
		WHERE id = $1
		  AND status = $10
	`, s.ID, s.Status, s.CancelledBy, s.CancellationReason, s.UpdatedAt,
		s.ConfirmedAt, s.StartedAt, s.CompletedAt, s.CancelledAt, expected)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetSession(ctx, s.ID); err != nil {
			return err
		}
		return session.ErrStateChanged
	}
	return nil
}

func (r sessionRepo) ListSessions(ctx context.Context, instructorID uuid.UUID, from, to time.Time) ([]session.Session, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE instructor_id = $1
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`, instructorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Payments

const paymentColumns = `id, student_id, instructor_id, slot_id, lesson_type, amount, currency, status,
	gateway_order_id, gateway_payment_id, gateway_signature, payment_method, session_id, failure_reason,
	created_at, updated_at, completed_at, refunded_at`

func scanPayment(row pgx.Row) (*payment.Payment, error) {
	var p payment.Payment
	var amount decimal.Decimal
	var currency string

	err := row.Scan(
		&p.ID,
		&p.StudentID,
		&p.InstructorID,
		&p.SlotID,
		&p.LessonType,
		&amount,
		&currency,
		&p.Status,
		&p.GatewayOrderID,
		&p.GatewayPaymentID,
		&p.GatewaySignature,
		&p.PaymentMethod,
		&p.SessionID,
		&p.FailureReason,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.CompletedAt,
		&p.RefundedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, err
	}

	if p.Amount, err = money.New(amount, currency); err != nil {
		return nil, fmt.Errorf("payment %s amount: %w", p.ID, err)
	}
	return &p, nil
}

type paymentRepo struct{ q dbtx }

// CreatePayment leans on the partial unique index over in-flight payments.
func (r paymentRepo) CreatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, p.ID, p.StudentID, p.InstructorID, p.SlotID, p.LessonType, p.Amount.Amount(), p.Amount.Currency(), p.Status,
		p.GatewayOrderID, p.GatewayPaymentID, p.GatewaySignature, p.PaymentMethod, p.SessionID, p.FailureReason,
		p.CreatedAt, p.UpdatedAt, p.CompletedAt, p.RefundedAt)
	if pgCode(err) == codeUniqueViolation {
		return payment.ErrActivePayment
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r paymentRepo) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

func (r paymentRepo) FindActivePayment(ctx context.Context, slotID uuid.UUID) (*payment.Payment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE slot_id = $1
		  AND status IN ('pending', 'processing')
	`, slotID)
	return scanPayment(row)
}

func (r paymentRepo) UpdatePayment(ctx context.Context, p *payment.Payment, expected payment.Status) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE payments
		SET status = $2,
		    gateway_order_id = $3,
		    gateway_payment_id = $4,
		    gateway_signature = $5,
		    payment_method = $6,
		    session_id = $7,
		    failure_reason = $8,
		    updated_at = $9,
		    completed_at = $10,
		    refunded_at = $11
		WHERE id = $1
		  AND status = $12
	`, p.ID, p.Status, p.GatewayOrderID, p.GatewayPaymentID, p.GatewaySignature, p.PaymentMethod,
		p.SessionID, p.FailureReason, p.UpdatedAt, p.CompletedAt, p.RefundedAt, expected)
	if pgCode(err) == codeUniqueViolation {
		return payment.ErrActivePayment
	}
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetPayment(ctx, p.ID); err != nil {
			return err
		}
		return payment.ErrStateChanged
	}
	return nil
}

// Directory

func (s *Store) Instructor(ctx context.Context, id uuid.UUID) (*booking.InstructorProfile, error) {
	var (
		p        booking.InstructorProfile
		regular  decimal.Decimal
		trial    *decimal.Decimal
		currency string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT i.id, u.display_name, i.regular_price, i.trial_price, i.currency, i.accepts_bookings
		FROM instructors i
		JOIN users u ON u.id = i.id
		WHERE i.id = $1
	`, id).Scan(&p.ID, &p.DisplayName, &regular, &trial, &currency, &p.AcceptsBookings)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrInstructorNotFound
		}
		return nil, err
	}

	if p.Pricing.RegularPrice, err = money.New(regular, currency); err != nil {
		return nil, fmt.Errorf("instructor %s price: %w", id, err)
	}
	if trial != nil {
		tp, err := money.New(*trial, currency)
		if err != nil {
			return nil, fmt.Errorf("instructor %s trial price: %w", id, err)
		}
		p.Pricing.TrialPrice = &tp
	}
	return &p, nil
}

// DisplayName returns an empty name for unknown users.
func (s *Store) DisplayName(ctx context.Context, userID uuid.UUID) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT display_name FROM users WHERE id = $1`, userID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return name, err
}

// UpsertUser stores a user's display name. Seeding uses it.
func (s *Store) UpsertUser(ctx context.Context, id uuid.UUID, name, email, role string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, display_name, email, role)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, email = EXCLUDED.email
	`, id, name, email, role)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpsertInstructor stores an instructor profile together with its user row.
func (s *Store) UpsertInstructor(ctx context.Context, p booking.InstructorProfile, email string) error {
	if err := s.UpsertUser(ctx, p.ID, p.DisplayName, email, "instructor"); err != nil {
		return err
	}
	var trial *decimal.Decimal
	if p.Pricing.TrialPrice != nil {
		t := p.Pricing.TrialPrice.Amount()
		trial = &t
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO instructors (id, regular_price, trial_price, currency, accepts_bookings)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET regular_price = EXCLUDED.regular_price,
		    trial_price = EXCLUDED.trial_price,
		    currency = EXCLUDED.currency,
		    accepts_bookings = EXCLUDED.accepts_bookings,
		    updated_at = now()
	`, p.ID, p.Pricing.RegularPrice.Amount(), trial, p.Pricing.RegularPrice.Currency(), p.AcceptsBookings)
	if err != nil {
		return fmt.Errorf("upsert instructor: %w", err)
	}
	return nil
}
