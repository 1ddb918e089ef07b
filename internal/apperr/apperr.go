// Package apperr holds the error categories shared by the domain packages.
//
// Domain errors wrap exactly one category so transport code can classify
// them with errors.Is without knowing every sentinel.
package apperr

import "errors"

var (
	// ErrValidation marks malformed input, rejected before any persistence.
	ErrValidation = errors.New("validation error")

	// ErrConflict marks a request that is well formed but clashes with
	// current state (slot taken, overlapping rule, duplicate payment).
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks a missing slot, payment, rule, wallet or instructor.
	ErrNotFound = errors.New("not found")
)

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
