package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/tutor-booking/internal/apperr"
	"github.com/hackgods/tutor-booking/internal/money"
	"github.com/hackgods/tutor-booking/internal/payment"
	"github.com/hackgods/tutor-booking/internal/schedule"
	"github.com/hackgods/tutor-booking/internal/session"
)

var ErrInstructorNotFound = fmt.Errorf("%w: instructor not found", apperr.ErrNotFound)

// Tx groups the repositories a booking step writes together.
type Tx struct {
	Slots    schedule.SlotRepository
	Sessions session.Repository
	Payments payment.Repository
}

// Store is the persistence the orchestrator needs.
type Store interface {
	BookingRepos() Tx
	// BookingTx runs fn in one transactional unit serialized per
	// instructor. An error from fn rolls every write back.
	BookingTx(ctx context.Context, instructorID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error
}

// Pricing is an instructor's price list. A nil TrialPrice means the
// instructor does not offer trial lessons.
type Pricing struct {
	RegularPrice money.Money
	TrialPrice   *money.Money
}

// InstructorProfile is the read-only slice of the instructor profile the
// booking core needs.
type InstructorProfile struct {
	ID              uuid.UUID
	DisplayName     string
	Pricing         Pricing
	AcceptsBookings bool
}

// Directory looks up instructor profiles and user display names.
type Directory interface {
	Instructor(ctx context.Context, id uuid.UUID) (*InstructorProfile, error)
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)
}

// Locker takes a short-lived cross-process lock around fn. It sheds
// duplicate work early; correctness never depends on it.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// NoLock runs fn without locking.
type NoLock struct{}

func (NoLock) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
