package process

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/constraints"
)

// PageSize is the granularity used when stepping over addresses that cannot be queried.
const PageSize = 4096

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

// String renders the address as 0x followed by 16 upper-case hex digits.
func (pma ProcessMemoryAddress) String() string {
	return fmt.Sprintf("0x%016X", uint64(pma))
}

// Offset adds a signed displacement, wrapping modulo 2^64.
func (pma ProcessMemoryAddress) Offset(delta int64) ProcessMemoryAddress {
	return pma + ProcessMemoryAddress(uint64(delta))
}

// Add advances the address by size bytes, wrapping modulo 2^64.
func (pma ProcessMemoryAddress) Add(size ProcessMemorySize) ProcessMemoryAddress {
	return pma + ProcessMemoryAddress(size)
}

// AddChecked advances the address and reports whether the result wrapped.
func (pma ProcessMemoryAddress) AddChecked(size ProcessMemorySize) (ProcessMemoryAddress, bool) {
	end := pma + ProcessMemoryAddress(size)
	return end, end < pma
}

func (pma ProcessMemoryAddress) AlignUp(alignment uint64) ProcessMemoryAddress {
	return ProcessMemoryAddress(AlignUp(uint64(pma), alignment))
}

func (pma ProcessMemoryAddress) AlignDown(alignment uint64) ProcessMemoryAddress {
	return ProcessMemoryAddress(AlignDown(uint64(pma), alignment))
}

func (pma ProcessMemoryAddress) IsAligned(alignment uint64) bool {
	return alignment == 0 || uint64(pma)%alignment == 0
}

func (pma ProcessMemoryAddress) IsNull() bool {
	return pma == 0
}

// AlignUp rounds v up to a multiple of alignment. An alignment of 0 leaves v unchanged.
func AlignUp[I constraints.Unsigned](v, alignment I) I {
	if alignment == 0 {
		return v
	}
	r := v % alignment
	if r == 0 {
		return v
	}
	return v + (alignment - r)
}

// AlignDown rounds v down to a multiple of alignment. An alignment of 0 leaves v unchanged.
func AlignDown[I constraints.Unsigned](v, alignment I) I {
	if alignment == 0 {
		return v
	}
	return v - v%alignment
}

// ParseAddress accepts 0x/0X or $ prefixed hex, bare hex containing a-f,
// and plain decimal.
func ParseAddress(s string) (ProcessMemoryAddress, error) {
	s = strings.TrimSpace(s)
	base := 10
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		s, base = s[2:], 16
	case strings.HasPrefix(s, "$"):
		s, base = s[1:], 16
	case strings.ContainsAny(s, "abcdefABCDEF"):
		base = 16
	}
	if s == "" {
		return 0, fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	return ProcessMemoryAddress(v), nil
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint64

func (pms ProcessMemorySize) String() string {
	return fmt.Sprintf("%d bytes", uint64(pms))
}
