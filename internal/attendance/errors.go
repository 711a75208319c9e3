package attendance

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures.
type Kind string

const (
	KindInvalidSelection  Kind = "invalid_selection"
	KindPrecondition      Kind = "precondition"
	KindRemoteUnavailable Kind = "remote_unavailable"
	KindUnknownStudent    Kind = "unknown_student"
	KindState             Kind = "state"
)

const (
	msgBusy  = "busy"
	msgStale = "stale"
)

var (
	ErrInvalidSelection  = &Error{Kind: KindInvalidSelection}
	ErrPrecondition      = &Error{Kind: KindPrecondition}
	ErrRemoteUnavailable = &Error{Kind: KindRemoteUnavailable}
	ErrUnknownStudent    = &Error{Kind: KindUnknownStudent}
	ErrState             = &Error{Kind: KindState}

	// ErrBusy is returned when an operation for the same criteria is already in flight.
	ErrBusy = &Error{Kind: KindState, Msg: msgBusy}
	// ErrStale is returned when a response arrives after the criteria it was issued for changed.
	ErrStale = &Error{Kind: KindState, Msg: msgStale}
)

// Error is the engine's error type. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind, and on Msg when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Msg == "" || t.Msg == e.Msg
}

// KindOf returns the Kind of err, or "" when err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func invalidSelection(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidSelection, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func precondition(op, format string, args ...any) error {
	return &Error{Kind: KindPrecondition, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func stateError(op, msg string) error {
	return &Error{Kind: KindState, Op: op, Msg: msg}
}

func remoteUnavailable(op string, err error) error {
	return &Error{Kind: KindRemoteUnavailable, Op: op, Err: err}
}

func unknownStudent(op, id string) error {
	return &Error{Kind: KindUnknownStudent, Op: op, Msg: fmt.Sprintf("student %q not in roster", id)}
}
