package schedule

import (
	"fmt"

	"github.com/hackgods/tutor-booking/internal/apperr"
)

var (
	ErrRuleNotFound    = fmt.Errorf("%w: availability rule not found", apperr.ErrNotFound)
	ErrSlotNotFound    = fmt.Errorf("%w: slot not found", apperr.ErrNotFound)
	ErrTimeOffNotFound = fmt.Errorf("%w: time off not found", apperr.ErrNotFound)

	ErrInvalidTimeRange  = fmt.Errorf("%w: start must be before end", apperr.ErrValidation)
	ErrMissingDayOfWeek  = fmt.Errorf("%w: recurring rule requires a day of week", apperr.ErrValidation)
	ErrMissingDate       = fmt.Errorf("%w: one-time rule requires a specific date", apperr.ErrValidation)
	ErrSlotTooShort      = fmt.Errorf("%w: slot duration must be at least 15 minutes", apperr.ErrValidation)
	ErrNegativeBreak     = fmt.Errorf("%w: break duration must not be negative", apperr.ErrValidation)
	ErrWindowTooNarrow   = fmt.Errorf("%w: window does not fit a single slot", apperr.ErrValidation)
	ErrInvalidValidity   = fmt.Errorf("%w: valid_until must not be before valid_from", apperr.ErrValidation)
	ErrUnknownRuleType   = fmt.Errorf("%w: unknown rule type", apperr.ErrValidation)
	ErrMissingRecurrence = fmt.Errorf("%w: recurring time off requires a day of week", apperr.ErrValidation)
	ErrNotGenerated      = fmt.Errorf("%w: requested start is not a slot of this rule", apperr.ErrValidation)

	ErrRuleOverlap      = fmt.Errorf("%w: rule overlaps an existing active rule", apperr.ErrConflict)
	ErrSlotOverlap      = fmt.Errorf("%w: slot overlaps an existing slot", apperr.ErrConflict)
	ErrSlotNotAvailable = fmt.Errorf("%w: slot is not available", apperr.ErrConflict)
	ErrSlotBooked       = fmt.Errorf("%w: slot is booked", apperr.ErrConflict)
	ErrSlotNotBlocked   = fmt.Errorf("%w: slot is not blocked", apperr.ErrConflict)
	ErrSlotNotBooked    = fmt.Errorf("%w: slot is not booked", apperr.ErrConflict)
	ErrSlotStateChanged = fmt.Errorf("%w: slot was modified concurrently", apperr.ErrConflict)
	ErrSlotInTimeOff    = fmt.Errorf("%w: slot falls inside instructor time off", apperr.ErrConflict)
	ErrSlotInPast       = fmt.Errorf("%w: slot has already started", apperr.ErrConflict)
	ErrRuleInactive     = fmt.Errorf("%w: availability rule is not active", apperr.ErrConflict)
)
