package gatt

import (
	"errors"
	"fmt"
)

// Kind classifies a handler failure.
type Kind string

const (
	KindUnsupported Kind = "unsupported"
	KindOutOfRange  Kind = "out_of_range"
	KindNotAllowed  Kind = "not_allowed"
	KindInternal    Kind = "internal"
)

// Error is a handler failure that maps onto a protocol status.
type Error struct {
	Kind Kind
	Msg  string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors, one per kind
var (
	ErrUnsupported = &Error{Kind: KindUnsupported}
	ErrOutOfRange  = &Error{Kind: KindOutOfRange}
	ErrNotAllowed  = &Error{Kind: KindNotAllowed}
	ErrInternal    = &Error{Kind: KindInternal}
)

// ErrNotSubscribed is returned by platforms that cannot deliver to a client because the
// client has no live subscription on the current link.
var ErrNotSubscribed = errors.New("client is not subscribed")

// Errorf creates an Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// StatusOf maps a handler result onto the status reported to the client.
// Errors outside the taxonomy are reported as StatusUnlikely.
func StatusOf(err error) Status {
	var e *Error
	switch {
	case err == nil:
		return StatusSuccess
	case !errors.As(err, &e):
		return StatusUnlikely
	}

	switch e.Kind {
	case KindUnsupported:
		return StatusRequestNotSupported
	case KindOutOfRange:
		return StatusOutOfRange
	case KindNotAllowed:
		return StatusValueNotAllowed
	default:
		return StatusUnlikely
	}
}
