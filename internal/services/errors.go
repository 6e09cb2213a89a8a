package services

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation            ErrorKind = "validation"
	KindNotFound              ErrorKind = "not_found"
	KindConflict              ErrorKind = "conflict"
	KindInsufficientInventory ErrorKind = "insufficient_inventory"
	KindOutOfRange            ErrorKind = "out_of_range"
)

// ActionError is the structured failure every recovery action returns.
// Message is safe to show to the user verbatim.
type ActionError struct {
	Kind    ErrorKind `json:"-"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (e *ActionError) Error() string {
	return e.Message
}

// Is matches on Code so wrapped or re-messaged errors still compare equal to
// the sentinels below.
func (e *ActionError) Is(target error) bool {
	var t *ActionError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithMessage copies the error with a more specific message.
func (e *ActionError) WithMessage(format string, args ...any) *ActionError {
	return &ActionError{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

func AsActionError(err error) (*ActionError, bool) {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

var (
	ErrHabitNotFound         = &ActionError{KindNotFound, "HABIT_NOT_FOUND", "Habit not found"}
	ErrUserNotFound          = &ActionError{KindNotFound, "USER_NOT_FOUND", "User not found"}
	ErrFutureDateNotAllowed  = &ActionError{KindOutOfRange, "FUTURE_DATE_NOT_ALLOWED", "Cannot protect a future date"}
	ErrInsufficientInventory = &ActionError{KindInsufficientInventory, "INSUFFICIENT_INVENTORY", "Not enough items in inventory"}
	ErrAlreadyCompleted      = &ActionError{KindConflict, "ALREADY_COMPLETED", "Habit is already completed on this date"}
	ErrAlreadyProtected      = &ActionError{KindConflict, "ALREADY_PROTECTED", "This date is already protected"}
	ErrInvalidDaysRange      = &ActionError{KindValidation, "INVALID_DAYS_RANGE", "Days must be between 1 and 30"}
	ErrFutureStartDate       = &ActionError{KindOutOfRange, "FUTURE_START_DATE", "Start date cannot be in the future"}
	ErrTooFarInPast          = &ActionError{KindOutOfRange, "TOO_FAR_IN_PAST", "Date cannot be more than 30 days in the past"}
	ErrAlreadyFrozen         = &ActionError{KindConflict, "ALREADY_FROZEN", "Habit is already frozen"}
	ErrNoDaysToFreeze        = &ActionError{KindConflict, "NO_DAYS_TO_FREEZE", "All selected days are already tracked"}
	ErrStreakStillActive     = &ActionError{KindConflict, "STREAK_STILL_ACTIVE", "Streak is still active, nothing to revive"}
	ErrNoStreakToRevive      = &ActionError{KindConflict, "NO_STREAK_TO_REVIVE", "There is no previous streak to revive"}
	ErrDateNotEligible       = &ActionError{KindValidation, "DATE_NOT_ELIGIBLE", "This date cannot be revived"}
	ErrInvalidSettings       = &ActionError{KindValidation, "INVALID_SETTINGS", "Invalid protection settings"}
)
