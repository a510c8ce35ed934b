// Package apperr is the error vocabulary shared by the stores, the
// appointment engine and the transports.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindRead
	KindWrite
	KindForbidden
	KindNotFound
	KindUnauthenticated
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindBusy:
		return "busy"
	}
	return "unknown"
}

// ValidationDismiss is how long a validation banner stays up.
const ValidationDismiss = 2 * time.Second

type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
	// DismissAfter is set on validation errors so a UI can clear the banner.
	DismissAfter time.Duration
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, apperr.ErrNotFound) works
// through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// kind-only sentinels for errors.Is
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrRead            = &Error{Kind: KindRead}
	ErrWrite           = &Error{Kind: KindWrite}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrBusy            = &Error{Kind: KindBusy}
)

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...), DismissAfter: ValidationDismiss}
}

func Read(op string, err error) error {
	return &Error{Kind: KindRead, Op: op, Err: err}
}

func Write(op string, err error) error {
	return &Error{Kind: KindWrite, Op: op, Err: err}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(op string) error {
	return &Error{Kind: KindNotFound, Op: op}
}

func Unauthenticated(msg string) error {
	return &Error{Kind: KindUnauthenticated, Msg: msg}
}

func Busy(id string) error {
	return &Error{Kind: KindBusy, Msg: "action already in flight for " + id}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message is the text shown to an end user. Store failures are generic.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	switch e.Kind {
	case KindValidation, KindForbidden:
		return e.Msg
	case KindRead:
		return "could not load data, please try again"
	case KindWrite:
		return "could not save changes, please try again"
	case KindNotFound:
		return "not found"
	case KindUnauthenticated:
		if e.Msg != "" {
			return e.Msg
		}
		return "not signed in"
	case KindBusy:
		return "action already in progress"
	}
	return "internal error"
}

// DismissAfter returns the banner lifetime for err, zero if it should stay.
func DismissAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.DismissAfter
	}
	return 0
}
