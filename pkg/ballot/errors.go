package ballot

import (
	"errors"
	"fmt"
)

// InvalidReason classifies why a ballot is informal.
type InvalidReason int

const (
	InvalidCharacter InvalidReason = iota + 1
	InvalidMinAbove
	InvalidMaxAbove
	InvalidMinBelow
	InvalidMaxBelow
	InvalidStrict
	EmptyBallot
)

var reasonNames = map[InvalidReason]string{
	InvalidCharacter: "invalid_character",
	InvalidMinAbove:  "invalid_min_above",
	InvalidMaxAbove:  "invalid_max_above",
	InvalidMinBelow:  "invalid_min_below",
	InvalidMaxBelow:  "invalid_max_below",
	InvalidStrict:    "invalid_strict",
	EmptyBallot:      "empty_ballot",
}

// String returns the snake_case name used in reports and storage.
func (reason InvalidReason) String() string {
	if name, ok := reasonNames[reason]; ok {
		return name
	}
	return fmt.Sprintf("invalid_reason(%d)", int(reason))
}

// AllReasons lists every reason in declaration order.
func AllReasons() []InvalidReason {
	return []InvalidReason{
		InvalidCharacter,
		InvalidMinAbove,
		InvalidMaxAbove,
		InvalidMinBelow,
		InvalidMaxBelow,
		InvalidStrict,
		EmptyBallot,
	}
}

// InvalidBallotError reports an informal ballot. It is recoverable: the
// ballot is excluded and the batch continues.
type InvalidBallotError struct {
	Reason InvalidReason
	// Count is the observed number of valid marks for count violations.
	Count int
}

func (e *InvalidBallotError) Error() string {
	switch e.Reason {
	case InvalidMinAbove, InvalidMaxAbove, InvalidMinBelow, InvalidMaxBelow:
		return fmt.Sprintf("invalid ballot: %s (%d marks)", e.Reason, e.Count)
	default:
		return fmt.Sprintf("invalid ballot: %s", e.Reason)
	}
}

// Is matches any InvalidBallotError with the same reason, ignoring Count.
func (e *InvalidBallotError) Is(target error) bool {
	var other *InvalidBallotError
	if !errors.As(target, &other) {
		return false
	}
	return other.Reason == e.Reason
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidCharacter = &InvalidBallotError{Reason: InvalidCharacter}
	ErrInvalidMinAbove  = &InvalidBallotError{Reason: InvalidMinAbove}
	ErrInvalidMaxAbove  = &InvalidBallotError{Reason: InvalidMaxAbove}
	ErrInvalidMinBelow  = &InvalidBallotError{Reason: InvalidMinBelow}
	ErrInvalidMaxBelow  = &InvalidBallotError{Reason: InvalidMaxBelow}
	ErrInvalidStrict    = &InvalidBallotError{Reason: InvalidStrict}
	ErrEmptyBallot      = &InvalidBallotError{Reason: EmptyBallot}
)

func invalid(reason InvalidReason, count int) error {
	return &InvalidBallotError{Reason: reason, Count: count}
}

// InputError is a failure that cannot be attributed to the voter, such as
// a malformed record or an I/O failure. It must abort the batch.
type InputError struct {
	Record string
	Err    error
}

func (e *InputError) Error() string {
	if e.Record == "" {
		return fmt.Sprintf("input error: %v", e.Err)
	}
	return fmt.Sprintf("input error in record %s: %v", e.Record, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether err only invalidates the current ballot.
func IsRecoverable(err error) bool {
	var invalidErr *InvalidBallotError
	return errors.As(err, &invalidErr)
}

// ReasonOf extracts the invalid reason from err, if any.
func ReasonOf(err error) (InvalidReason, bool) {
	var invalidErr *InvalidBallotError
	if errors.As(err, &invalidErr) {
		return invalidErr.Reason, true
	}
	return 0, false
}
