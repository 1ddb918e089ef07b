// Package memory is an in-process implementation of every repository and
// transactional unit. Units are serialized by one mutex and roll back by
// restoring a snapshot, so it is only meant for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/tutor-booking/internal/booking"
	"github.com/hackgods/tutor-booking/internal/payment"
	"github.com/hackgods/tutor-booking/internal/schedule"
	"github.com/hackgods/tutor-booking/internal/session"
	"github.com/hackgods/tutor-booking/internal/wallet"
)

type state struct {
	rules    map[uuid.UUID]schedule.AvailabilityRule
	slots    map[uuid.UUID]schedule.BookingSlot
	timeOff  map[uuid.UUID]schedule.TimeOff
	sessions map[uuid.UUID]session.Session
	payments map[uuid.UUID]payment.Payment
	wallets  map[uuid.UUID]wallet.Wallet
	ledger   []wallet.Transaction
	failures []wallet.CreditFailure
}

func newState() *state {
	return &state{
		rules:    make(map[uuid.UUID]schedule.AvailabilityRule),
		slots:    make(map[uuid.UUID]schedule.BookingSlot),
		timeOff:  make(map[uuid.UUID]schedule.TimeOff),
		sessions: make(map[uuid.UUID]session.Session),
		payments: make(map[uuid.UUID]payment.Payment),
		wallets:  make(map[uuid.UUID]wallet.Wallet),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		rules:    cloneMap(s.rules),
		slots:    cloneMap(s.slots),
		timeOff:  cloneMap(s.timeOff),
		sessions: cloneMap(s.sessions),
		payments: cloneMap(s.payments),
		wallets:  cloneMap(s.wallets),
		ledger:   append([]wallet.Transaction(nil), s.ledger...),
		failures: append([]wallet.CreditFailure(nil), s.failures...),
	}
}

// Store implements schedule.Store, booking.Store and wallet.Store.
type Store struct {
	mu sync.Mutex
	st *state

	dirMu       sync.RWMutex
	instructors map[uuid.UUID]booking.InstructorProfile
	users       map[uuid.UUID]string
}

func New() *Store {
	return &Store{
		st:          newState(),
		instructors: make(map[uuid.UUID]booking.InstructorProfile),
		users:       make(map[uuid.UUID]string),
	}
}

// repo is the receiver of every repository method. Outside a unit each call
// takes the store mutex; inside a unit the mutex is already held.
type repo struct {
	s    *Store
	inTx bool
}

func (r repo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (s *Store) run(ctx context.Context, fn func(ctx context.Context, r repo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(ctx, repo{s: s, inTx: true}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (r repo) scheduleRepos() schedule.Repos {
	return schedule.Repos{Rules: ruleRepo{r}, Slots: slotRepo{r}, TimeOff: timeOffRepo{r}}
}

func (r repo) bookingRepos() booking.Tx {
	return booking.Tx{Slots: slotRepo{r}, Sessions: sessionRepo{r}, Payments: paymentRepo{r}}
}

func (s *Store) ScheduleRepos() schedule.Repos {
	return repo{s: s}.scheduleRepos()
}

func (s *Store) InstructorTx(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context, r schedule.Repos) error) error {
	return s.run(ctx, func(ctx context.Context, r repo) error {
		return fn(ctx, r.scheduleRepos())
	})
}

func (s *Store) BookingRepos() booking.Tx {
	return repo{s: s}.bookingRepos()
}

func (s *Store) BookingTx(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context, tx booking.Tx) error) error {
	return s.run(ctx, func(ctx context.Context, r repo) error {
		return fn(ctx, r.bookingRepos())
	})
}

func (s *Store) WalletRepo() wallet.Repository {
	return walletRepo{repo{s: s}}
}

func (s *Store) WalletTx(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context, repo wallet.Repository) error) error {
	return s.run(ctx, func(ctx context.Context, r repo) error {
		return fn(ctx, walletRepo{r})
	})
}
