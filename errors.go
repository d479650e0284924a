package prokernel

import "github.com/kernellabs/prokernel/internal/kernelerr"

// Re-export the kernel's structured error type for the public API. See
// internal/kernelerr for the implementation; it lives under internal/ so
// every subsystem package can construct these errors without an import
// cycle back through the root package.
type (
	Error     = kernelerr.Error
	ErrorCode = kernelerr.Code
)

const (
	CodeInvalidArgument   = kernelerr.CodeInvalidArgument
	CodeResourceExhausted = kernelerr.CodeResourceExhausted
	CodeNotFound          = kernelerr.CodeNotFound
	CodeIntegrity         = kernelerr.CodeIntegrity
)

var (
	NewError    = kernelerr.New
	NewPIDError = kernelerr.NewPID
	NewFDError  = kernelerr.NewFD
	WrapError   = kernelerr.Wrap
	IsCode      = kernelerr.IsCode
)

var (
	ErrInvalidArgument   = kernelerr.ErrInvalidArgument
	ErrResourceExhausted = kernelerr.ErrResourceExhausted
	ErrNotFound          = kernelerr.ErrNotFound
	ErrIntegrity         = kernelerr.ErrIntegrity
)
