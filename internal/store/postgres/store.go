// Package postgres implements every repository on PostgreSQL through pgx.
//
// Transactional units take a transaction-scoped advisory lock on the
// instructor, so units for the same instructor run one after another. The
// slot exclusion constraint and the one-active-payment partial index stay
// authoritative either way.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/tutor-booking/internal/booking"
	"github.com/hackgods/tutor-booking/internal/schedule"
	"github.com/hackgods/tutor-booking/internal/wallet"
)

//go:embed schema.sql
var schemaSQL string

// PostgreSQL error codes the repositories translate.
const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
)

// dbtx is satisfied by both the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements schedule.Store, booking.Store, booking.Directory and
// wallet.Store.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// run executes fn in a transaction holding the instructor's advisory lock.
func (s *Store) run(ctx context.Context, instructorID uuid.UUID, fn func(ctx context.Context, q dbtx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "instructor:"+instructorID.String()); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) scheduleRepos(q dbtx) schedule.Repos {
	return schedule.Repos{Rules: ruleRepo{q}, Slots: slotRepo{q}, TimeOff: timeOffRepo{q}}
}

func (s *Store) ScheduleRepos() schedule.Repos {
	return s.scheduleRepos(s.pool)
}

func (s *Store) InstructorTx(ctx context.Context, instructorID uuid.UUID, fn func(ctx context.Context, r schedule.Repos) error) error {
	return s.run(ctx, instructorID, func(ctx context.Context, q dbtx) error {
		return fn(ctx, s.scheduleRepos(q))
	})
}

func (s *Store) bookingRepos(q dbtx) booking.Tx {
	return booking.Tx{Slots: slotRepo{q}, Sessions: sessionRepo{q}, Payments: paymentRepo{q}}
}

func (s *Store) BookingRepos() booking.Tx {
	return s.bookingRepos(s.pool)
}

func (s *Store) BookingTx(ctx context.Context, instructorID uuid.UUID, fn func(ctx context.Context, tx booking.Tx) error) error {
	return s.run(ctx, instructorID, func(ctx context.Context, q dbtx) error {
		return fn(ctx, s.bookingRepos(q))
	})
}

func (s *Store) WalletRepo() wallet.Repository {
	return walletRepo{s.pool}
}

func (s *Store) WalletTx(ctx context.Context, instructorID uuid.UUID, fn func(ctx context.Context, repo wallet.Repository) error) error {
	return s.run(ctx, instructorID, func(ctx context.Context, q dbtx) error {
		return fn(ctx, walletRepo{q})
	})
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func nullableTime(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	return t
}
