// Package pkgerr defines the error kinds shared across the storage engine
// and the helpers used to attach and recover one from a wrapped error.
package pkgerr

import (
	"github.com/pkg/errors"
)

// Kind is one of the error kinds named in the storage engine's error
// handling design. It never changes meaning across packages: a CORRUPT
// error from the pager means the same thing as a CORRUPT error from the
// rptree cursor.
type Kind int

const (
	// Success is never wrapped into an error; it exists so Kind's zero
	// value is distinguishable from "no kind attached".
	Success Kind = iota
	IO
	NoMem
	Corrupt
	InvalidArgument
	PageOutOfRange
	VariableNotExist
	DuplicateVariable
	RPTreeInvalid
	Interp
	TypeDeser
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "SUCCESS"
	case IO:
		return "IO"
	case NoMem:
		return "NOMEM"
	case Corrupt:
		return "CORRUPT"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case PageOutOfRange:
		return "PG_OUT_OF_RANGE"
	case VariableNotExist:
		return "VARIABLE_NE"
	case DuplicateVariable:
		return "DUPLICATE_VARIABLE"
	case RPTreeInvalid:
		return "RPTREE_INVALID"
	case Interp:
		return "INTERP"
	case TypeDeser:
		return "TYPE_DESER"
	default:
		return "UNKNOWN"
	}
}

// kinded is the sentinel type wrapped around an underlying cause so Cause
// can recover the Kind without the caller needing to compare against a
// fixed set of sentinel error values.
type kinded struct {
	kind  Kind
	cause error
}

func (e *kinded) Error() string {
	if e.cause == nil {
		return e.kind.String()
	}
	return e.kind.String() + ": " + e.cause.Error()
}

func (e *kinded) Unwrap() error { return e.cause }

// New creates an error of the given kind with a message, carrying a stack
// trace via github.com/pkg/errors the way the rest of the retrieval pack
// wraps errors at package boundaries.
func New(kind Kind, msg string) error {
	return &kinded{kind: kind, cause: errors.New(msg)}
}

// Wrap attaches a Kind to an existing error, preserving it as the cause.
// A nil err returns nil, matching errors.Wrap's convention.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &kinded{kind: kind, cause: errors.Wrap(err, msg)}
}

// CauseKind walks the error chain and returns the first attached Kind, or
// (Success, false) if none of the wrapped errors carry one.
func CauseKind(err error) (Kind, bool) {
	for err != nil {
		if k, ok := err.(*kinded); ok {
			return k.kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return Success, false
		}
		err = u.Unwrap()
	}
	return Success, false
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := CauseKind(err)
	return ok && k == kind
}
