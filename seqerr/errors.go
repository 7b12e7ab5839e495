// Package seqerr holds the error kinds shared by the sequence and model
// packages.
package seqerr

import (
	"errors"
	"fmt"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// Kinds attached with ftag.
const (
	KindContractViolation   ftag.Kind = "contract_violation"
	KindTypeMismatch        ftag.Kind = "type_mismatch"
	KindInvalidCommandState ftag.Kind = "invalid_command_state"
)

var (
	// ErrContractViolation marks programmer errors: bad channels, lock misuse,
	// appending outside write mode.
	ErrContractViolation = errors.New("contract violation")
	// ErrTypeMismatch is returned when a Variant is read as the wrong type.
	ErrTypeMismatch = errors.New("variant type mismatch")
	// ErrInvalidCommandState is returned for double apply or undo before apply.
	ErrInvalidCommandState = errors.New("invalid command state")
	// ErrUnknownEvent is returned when replayed state names an id the model
	// does not hold.
	ErrUnknownEvent = errors.New("unknown event id")
	// ErrMalformedState is returned for state nodes missing required fields.
	ErrMalformedState = errors.New("malformed state")
)

// ContractViolation wraps ErrContractViolation with a formatted detail.
func ContractViolation(format string, args ...any) error {
	return fault.Wrap(ErrContractViolation,
		ftag.With(KindContractViolation),
		fmsg.With(fmt.Sprintf(format, args...)))
}

// TypeMismatch wraps ErrTypeMismatch.
func TypeMismatch(format string, args ...any) error {
	return fault.Wrap(ErrTypeMismatch,
		ftag.With(KindTypeMismatch),
		fmsg.With(fmt.Sprintf(format, args...)))
}

// InvalidCommandState wraps ErrInvalidCommandState.
func InvalidCommandState(format string, args ...any) error {
	return fault.Wrap(ErrInvalidCommandState,
		ftag.With(KindInvalidCommandState),
		fmsg.With(fmt.Sprintf(format, args...)))
}

// UnknownEvent wraps ErrUnknownEvent and tags it as not found.
func UnknownEvent(kind string, id int64) error {
	return fault.Wrap(ErrUnknownEvent,
		ftag.With(ftag.NotFound),
		fmsg.With(fmt.Sprintf("%s %d", kind, id)))
}

// MalformedState wraps ErrMalformedState and tags it as an invalid argument.
func MalformedState(format string, args ...any) error {
	return fault.Wrap(ErrMalformedState,
		ftag.With(ftag.InvalidArgument),
		fmsg.With(fmt.Sprintf(format, args...)))
}

// Wrap attaches context to an I/O or decode error.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fault.Wrap(err, fmsg.With(msg))
}

// Kind returns the tag attached to err, if any.
func Kind(err error) ftag.Kind {
	return ftag.Get(err)
}
