// Package process holds the address, value and region model shared by the
// platform collaborators and the reader, writer and scanner facades.
package process

import (
	"errors"
	"fmt"
)

var (
	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	ErrInvalidAddress         = errors.New("invalid address")
	ErrProcessNotFound        = errors.New("process not found")
	ErrModuleNotFound         = errors.New("module not found")
	ErrSessionNotFound        = errors.New("session not found")
	ErrAccessDenied           = errors.New("access denied")
	ErrReadFailed             = errors.New("read failed")
	ErrWriteFailed            = errors.New("write failed")
	ErrInvalidPattern         = errors.New("invalid pattern")
	ErrPatternNotFound        = errors.New("pattern not found")
	ErrInvalidValueType       = errors.New("invalid value type")
	ErrBufferTooSmall         = errors.New("buffer too small")
	ErrProtection             = errors.New("protection change failed")
	ErrInsufficientPrivileges = errors.New("insufficient privileges")
	ErrUnsupported            = errors.New("unsupported operation")
	ErrPointerChainBroken     = errors.New("pointer chain broken")
	ErrNoBackups              = errors.New("no backups available")
)

// AddressError describes a failure tied to a single address.
type AddressError struct {
	Op      string
	Address ProcessMemoryAddress
	Reason  string
	Err     error
}

func (e *AddressError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Address, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %s", e.Op, e.Address, e.Err, e.Reason)
}

func (e *AddressError) Unwrap() error { return e.Err }

// ProcessError describes a failure tied to a process as a whole.
type ProcessError struct {
	PID    ProcessID
	Reason string
	Err    error
}

func (e *ProcessError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("process %d: %v", e.PID, e.Err)
	}
	return fmt.Sprintf("process %d: %v: %s", e.PID, e.Err, e.Reason)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// ReadError wraps a failed read at addr.
func ReadError(addr ProcessMemoryAddress, reason string) error {
	return &AddressError{Op: "read", Address: addr, Reason: reason, Err: ErrReadFailed}
}

// WriteError wraps a failed write at addr.
func WriteError(addr ProcessMemoryAddress, reason string) error {
	return &AddressError{Op: "write", Address: addr, Reason: reason, Err: ErrWriteFailed}
}

// InvalidAddressError reports an address rejected before any access was attempted.
func InvalidAddressError(addr ProcessMemoryAddress, reason string) error {
	return &AddressError{Op: "validate", Address: addr, Reason: reason, Err: ErrInvalidAddress}
}

// BufferTooSmallError reports a decode that needed more bytes than it was given.
func BufferTooSmallError(expected, actual int) error {
	return fmt.Errorf("%w: expected %d bytes, got %d", ErrBufferTooSmall, expected, actual)
}

// PointerChainError reports the level at which a pointer walk failed.
func PointerChainError(level int, reason string) error {
	return fmt.Errorf("%w at level %d: %s", ErrPointerChainBroken, level, reason)
}
