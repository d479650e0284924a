// Package kernelerr provides the structured error type shared by every
// kernel subsystem. It lives under internal/ purely so that
// internal/heap, internal/fsys, internal/procsched, internal/ipc, and
// internal/klog can construct and inspect these errors without importing
// the root package and creating an import cycle; the root package
// re-exports everything here under the same names.
package kernelerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a kernel error.
type Code string

const (
	// CodeInvalidArgument covers null pointers, out-of-range sizes, and
	// unknown ids passed to a kernel operation.
	CodeInvalidArgument Code = "invalid argument"
	// CodeResourceExhausted covers out-of-memory, full tables, full queues.
	CodeResourceExhausted Code = "resource exhausted"
	// CodeNotFound covers unknown files, processes, threads, mailboxes.
	CodeNotFound Code = "not found"
	// CodeIntegrity covers guard corruption and bounds/consistency failures.
	CodeIntegrity Code = "integrity violation"
)

// Error is the structured error returned by every kernel subsystem. Op
// names the failing operation (e.g. "heap.Alloc", "fs.Open",
// "process.Create"); PID and FD are populated when the operation was
// scoped to a process or descriptor, and are zero/-1 otherwise.
type Error struct {
	Op    string
	Code  Code
	PID   uint32
	FD    int32
	Msg   string
	Inner error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.PID != 0 {
		parts = append(parts, fmt.Sprintf("pid=%d", e.PID))
	}
	if e.FD >= 0 {
		parts = append(parts, fmt.Sprintf("fd=%d", e.FD))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("prokernel: %s (%s)", msg, strings.Join(parts, " "))
	}
	return fmt.Sprintf("prokernel: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support, comparing by error code so callers can
// write errors.Is(err, kernelerr.ErrNotFound) regardless of Op/PID/FD.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// New creates a new structured error with no process/descriptor scope.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, FD: -1, Msg: msg}
}

// NewPID creates a structured error scoped to a process ID.
func NewPID(op string, pid uint32, code Code, msg string) *Error {
	return &Error{Op: op, PID: pid, FD: -1, Code: code, Msg: msg}
}

// NewFD creates a structured error scoped to a file or mailbox descriptor.
func NewFD(op string, fd int32, code Code, msg string) *Error {
	return &Error{Op: op, FD: fd, Code: code, Msg: msg}
}

// Wrap attaches kernel operation context to an existing error.
func Wrap(op string, code Code, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ke, ok := inner.(*Error); ok {
		return &Error{Op: op, PID: ke.PID, FD: ke.FD, Code: ke.Code, Msg: ke.Msg, Inner: ke.Inner}
	}
	return &Error{Op: op, FD: -1, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a structured kernel error with the given
// code.
func IsCode(err error, code Code) bool {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Code == code
	}
	return false
}

// Sentinel errors for errors.Is-style comparisons against a bare code.
var (
	ErrInvalidArgument   = &Error{Code: CodeInvalidArgument, FD: -1}
	ErrResourceExhausted = &Error{Code: CodeResourceExhausted, FD: -1}
	ErrNotFound          = &Error{Code: CodeNotFound, FD: -1}
	ErrIntegrity         = &Error{Code: CodeIntegrity, FD: -1}
)
