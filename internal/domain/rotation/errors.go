package rotation

import (
	"errors"
	"fmt"
)

// Kind classifies scheduling failures. Handlers map kinds to status codes.
type Kind string

const (
	KindEntityNotFound       Kind = "EntityNotFound"
	KindInactiveStudent      Kind = "InactiveStudent"
	KindInvalidDateRange     Kind = "InvalidDateRange"
	KindStudentOverlap       Kind = "StudentOverlap"
	KindReceptorOverlap      Kind = "ReceptorOverlap"
	KindMissingJustification Kind = "MissingJustification"
	KindCapacityExceeded     Kind = "CapacityExceeded"
	KindValidation           Kind = "Validation"
	KindInternal             Kind = "Internal"
)

// Error is a scheduling failure. Conflicts lists the assignments behind an
// overlap rejection. OverrideAllowed is true when resubmitting the request as
// exceptional with a justification would be accepted.
type Error struct {
	Kind            Kind
	Message         string
	Conflicts       []Conflict
	OverrideAllowed bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrStudentOverlap)
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrEntityNotFound       = &Error{Kind: KindEntityNotFound, Message: "entity not found"}
	ErrInactiveStudent      = &Error{Kind: KindInactiveStudent, Message: "student is inactive"}
	ErrInvalidDateRange     = &Error{Kind: KindInvalidDateRange, Message: "start date must be before end date"}
	ErrStudentOverlap       = &Error{Kind: KindStudentOverlap, Message: "student already has an assignment in that period"}
	ErrReceptorOverlap      = &Error{Kind: KindReceptorOverlap, Message: "receptor is already assigned in that period"}
	ErrMissingJustification = &Error{Kind: KindMissingJustification, Message: "exceptional assignments require a justification"}
	ErrCapacityExceeded     = &Error{Kind: KindCapacityExceeded, Message: "institution has no available slots in that period"}
	ErrValidation           = &Error{Kind: KindValidation, Message: "invalid request"}
)

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func notFound(entity string) *Error {
	return newError(KindEntityNotFound, entity+" not found")
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
