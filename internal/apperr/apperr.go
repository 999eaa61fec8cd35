package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can tell infrastructure problems apart
// from bad input and from capacity pressure.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindThrottled
	KindDependencyFailure
	KindOperationTimeout
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindThrottled:
		return "throttled"
	case KindDependencyFailure:
		return "dependency_failure"
	case KindOperationTimeout:
		return "operation_timeout"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func BadRequest(format string, args ...any) *Error {
	return New(KindBadRequest, fmt.Sprintf(format, args...))
}

func Throttled(message string) *Error {
	return New(KindThrottled, message)
}

func DependencyFailure(message string, err error) *Error {
	return Wrap(KindDependencyFailure, message, err)
}

func OperationTimeout(message string, err error) *Error {
	return Wrap(KindOperationTimeout, message, err)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
