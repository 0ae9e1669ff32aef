// Package errs defines the error classes surfaced by agentkit and the exit
// code each class maps to.
package errs

import (
	"errors"
	"fmt"
)

// Class groups errors by how the operator should react to them.
type Class int

const (
	// ClassUser is bad input: invalid name, missing description, unknown flag,
	// duplicate agent without --force. Never retried.
	ClassUser Class = iota + 1
	// ClassSystem is a broken environment: missing or broken template,
	// unwritable launcher, lock corrupted beyond recovery.
	ClassSystem
	// ClassLock means another live process holds the creation lock.
	ClassLock
)

// Exit codes. Stable contract for scripts driving the CLI.
const (
	ExitOK     = 0
	ExitUser   = 1
	ExitSystem = 2
	ExitLock   = 3
)

func (c Class) String() string {
	switch c {
	case ClassUser:
		return "user_error"
	case ClassSystem:
		return "system_error"
	case ClassLock:
		return "lock_error"
	default:
		return "unknown"
	}
}

// Error is a classified error with an optional actionable hint.
type Error struct {
	Class Class
	Msg   string
	Hint  string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithHint returns a copy of e carrying hint.
func (e *Error) WithHint(hint string) *Error {
	cp := *e
	cp.Hint = hint
	return &cp
}

// User returns a user error.
func User(format string, args ...any) *Error {
	return &Error{Class: ClassUser, Msg: fmt.Sprintf(format, args...)}
}

// System returns a system error.
func System(format string, args ...any) *Error {
	return &Error{Class: ClassSystem, Msg: fmt.Sprintf(format, args...)}
}

// WrapSystem wraps cause as a system error.
func WrapSystem(cause error, format string, args ...any) *Error {
	return &Error{Class: ClassSystem, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// WrapLock wraps cause as a lock error.
func WrapLock(cause error, format string, args ...any) *Error {
	return &Error{Class: ClassLock, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// ClassOf returns the class of err. Unclassified errors count as system
// errors so that nothing unexpected ever exits 0 or looks like user error.
func ClassOf(err error) Class {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassSystem
}

// HintOf returns the first hint found in err's chain, or "".
func HintOf(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Hint != "" {
			return e.Hint
		}
		err = e.Cause
	}
	return ""
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	switch ClassOf(err) {
	case 0:
		return ExitOK
	case ClassUser:
		return ExitUser
	case ClassLock:
		return ExitLock
	default:
		return ExitSystem
	}
}
