// Package domain defines the thread and process records of the LibOS
// termination path.
package domain

import (
	"errors"
	"strings"
)

// Error is a LibOS failure carrying a stable code of the form
// LX-<AREA>-<NNNN>. Two Errors match under errors.Is when their codes do.
type Error struct {
	Code   string
	Msg    string
	Detail string
	Err    error
}

func newError(code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(e.Code)
	b.WriteString("] ")
	b.WriteString(e.Msg)
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Area is the middle part of the code, such as EXIT or IPC.
func (e *Error) Area() string {
	parts := strings.SplitN(e.Code, "-", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

// WithDetails returns a copy of e with detail appended to the message.
func (e *Error) WithDetails(detail string) *Error {
	c := *e
	c.Detail = detail
	return &c
}

// WithCause returns a copy of e that unwraps to cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

// HasCode reports whether err wraps an *Error with the given code. An empty
// code matches any *Error.
func HasCode(err error, code string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return code == "" || e.Code == code
}

// CodeOf returns the code of the *Error wrapped by err, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Codes are grouped by area: EXIT for the termination path, IPC for child
// exit messages, HELPER and THREAD for the helper threads and thread table.
var (
	// ErrResourceRelease is a failed release of a resource the exiting
	// thread owned. It is fatal to the whole process.
	ErrResourceRelease = newError("LX-EXIT-5001", "resource release failed")
	// ErrLockOrder is a parent lock taken outside the self-then-parent order.
	ErrLockOrder = newError("LX-EXIT-5002", "lock order violation")
	// ErrInternalThreadExit is exit or exit_group invoked on a helper thread.
	ErrInternalThreadExit = newError("LX-EXIT-5003", "exit called on internal thread")

	ErrUnknownMessage   = newError("LX-IPC-4001", "unknown message type")
	ErrMalformedMessage = newError("LX-IPC-4002", "malformed message")
	// ErrUnknownPeer means no member of the cluster owns the destination PID.
	ErrUnknownPeer = newError("LX-IPC-4040", "unknown peer process")

	// ErrHelperStopped is work submitted to a helper thread after Stop.
	ErrHelperStopped = newError("LX-HELPER-4090", "helper thread stopped")
	ErrThreadExists  = newError("LX-THREAD-4091", "thread already exists")
)
