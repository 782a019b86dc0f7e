package writer

import (
	"errors"
	"fmt"

	"memprobe/process"
)

// WithWritable makes [addr, addr+size) writable, runs fn, and puts the previous
// protection back. Regions that are already writable are left alone.
func WithWritable(h process.Handle, addr process.ProcessMemoryAddress, size int, fn func() error) error {
	region, err := h.QueryRegion(addr)
	if err != nil {
		return fmt.Errorf("query %s: %w", addr, err)
	}
	if region.IsWritable() {
		return fn()
	}

	want := process.PageReadWrite
	if region.IsExecutable() {
		want = process.PageExecuteReadWrite
	}

	old, err := h.ChangeProtection(addr, process.ProcessMemorySize(size), want)
	if err != nil {
		return fmt.Errorf("%w: make %s writable: %w", process.ErrProtection, addr, err)
	}

	fnErr := fn()
	if _, err := h.ChangeProtection(addr, process.ProcessMemorySize(size), old); err != nil {
		return errors.Join(fnErr, fmt.Errorf("%w: restore %s to %s: %w", process.ErrProtection, addr, old, err))
	}
	return fnErr
}
