// Package model holds the domain types of the permanence scheduler and
// the error taxonomy shared by repositories, services and handlers.
//
// Errors come in three kinds.  Validation errors are business-rule
// violations that the user can fix (bad time range, full slot, past
// slot).  Lookup errors mean a referenced entity does not exist.
// Duplicate errors mean the user already holds an active registration.
// Handlers translate the kinds with errors.Is against ErrValidation,
// ErrNotFound and ErrDuplicate.
package model

import "errors"

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound matches every *LookupError.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate matches every *DuplicateError.
	ErrDuplicate = errors.New("duplicate")
	// ErrForbidden is returned by the authorization policy.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError carries a user-facing reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// Is makes errors.Is(err, ErrValidation) hold for every validation error.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid returns a new validation error.
func Invalid(reason string) error { return &ValidationError{Reason: reason} }

// LookupError names the entity that could not be found.
type LookupError struct {
	Entity string
}

func (e *LookupError) Error() string { return e.Entity + " not found" }

func (e *LookupError) Is(target error) bool { return target == ErrNotFound }

// DuplicateError is returned when an active registration already exists.
type DuplicateError struct {
	Reason string
}

func (e *DuplicateError) Error() string { return e.Reason }

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

var (
	ErrInvalidTimeRange     = &ValidationError{Reason: "start time must be before end time"}
	ErrSlotTooShort         = &ValidationError{Reason: "a slot must last at least one hour"}
	ErrInvalidCapacity      = &ValidationError{Reason: "capacity must be at least 1"}
	ErrInvalidRepeatEnd     = &ValidationError{Reason: "repeat end date must not be before the start date"}
	ErrInvalidWeekday       = &ValidationError{Reason: "weekday must be between 0 (Monday) and 6 (Sunday)"}
	ErrClosingBeforeOpening = &ValidationError{Reason: "closing time must be after opening time"}
	ErrSlotFull             = &ValidationError{Reason: "this slot is full"}
	ErrPastSlot             = &ValidationError{Reason: "this slot is already over"}
	ErrRepeatTooLong        = &ValidationError{Reason: "slots can be generated at most 52 weeks ahead"}
	ErrCommentTooLong       = &ValidationError{Reason: "comment is too long"}

	ErrSlotNotFound         = &LookupError{Entity: "slot"}
	ErrRegistrationNotFound = &LookupError{Entity: "registration"}
	ErrUserNotFound         = &LookupError{Entity: "user"}

	ErrAlreadyRegistered = &DuplicateError{Reason: "already registered for this slot"}
)

// Reason extracts the user-facing text of a domain error.  Unknown errors
// yield a generic message so that internal details never reach the page.
func Reason(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	var de *DuplicateError
	if errors.As(err, &de) {
		return de.Reason
	}
	var le *LookupError
	if errors.As(err, &le) {
		return le.Error()
	}
	if errors.Is(err, ErrForbidden) {
		return "you are not allowed to do that"
	}
	return "something went wrong, please try again"
}
