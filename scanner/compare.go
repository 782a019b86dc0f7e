package scanner

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"memprobe/process"
)

// Comparison is the predicate a compare scan applies to (previous, current).
type Comparison int

const (
	Equal Comparison = iota
	NotEqual
	Greater
	Less
	GreaterOrEqual
	LessOrEqual
)

func (c Comparison) String() string {
	switch c {
	case Equal:
		return "eq"
	case NotEqual:
		return "ne"
	case Greater:
		return "gt"
	case Less:
		return "lt"
	case GreaterOrEqual:
		return "ge"
	case LessOrEqual:
		return "le"
	}
	return fmt.Sprintf("comparison(%d)", int(c))
}

// ParseComparison accepts eq/ne/gt/lt/ge/le, the operator forms, and
// changed/unchanged/increased/decreased.
func ParseComparison(s string) (Comparison, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eq", "==", "=", "unchanged", "same":
		return Equal, nil
	case "ne", "!=", "changed":
		return NotEqual, nil
	case "gt", ">", "increased", "inc":
		return Greater, nil
	case "lt", "<", "decreased", "dec":
		return Less, nil
	case "ge", ">=":
		return GreaterOrEqual, nil
	case "le", "<=":
		return LessOrEqual, nil
	}
	return 0, fmt.Errorf("unknown comparison %q", s)
}

// holds evaluates the predicate for current compared to previous, given
// order = compare(current, previous).
func (c Comparison) holds(order int) bool {
	switch c {
	case Equal:
		return order == 0
	case NotEqual:
		return order != 0
	case Greater:
		return order > 0
	case Less:
		return order < 0
	case GreaterOrEqual:
		return order >= 0
	case LessOrEqual:
		return order <= 0
	}
	return false
}

// Snapshot maps addresses to the bytes captured there.
type Snapshot map[process.ProcessMemoryAddress][]byte

// Addresses returns the snapshot's keys in ascending order.
func (s Snapshot) Addresses() []process.ProcessMemoryAddress {
	out := make([]process.ProcessMemoryAddress, 0, len(s))
	for addr := range s {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TakeSnapshot captures size bytes at every address. Addresses that cannot be
// read are left out.
func (s *Scanner) TakeSnapshot(addrs []process.ProcessMemoryAddress, size int) Snapshot {
	snap := make(Snapshot, len(addrs))
	for _, addr := range addrs {
		if data, err := s.readExact(addr, size); err == nil {
			snap[addr] = data
		}
	}
	return snap
}

// CompareScan re-reads every snapshot address and keeps those where cmp holds
// between the previous and current bytes, ordered as byte sequences. Failed
// reads drop the address. The result is sorted.
func (s *Scanner) CompareScan(prev Snapshot, cmp Comparison) []process.ProcessMemoryAddress {
	next := s.refresh(prev, func(old, cur []byte) bool {
		return cmp.holds(bytes.Compare(cur, old))
	})
	return next.Addresses()
}

// CompareScanValues is CompareScan with the bytes decoded as kind and compared
// numerically. kind must be a fixed-size numeric kind.
func (s *Scanner) CompareScanValues(prev Snapshot, cmp Comparison, kind process.ValueKind) ([]process.ProcessMemoryAddress, error) {
	next, err := s.refreshValues(prev, cmp, kind)
	if err != nil {
		return nil, err
	}
	return next.Addresses(), nil
}

func (s *Scanner) refreshValues(prev Snapshot, cmp Comparison, kind process.ValueKind) (Snapshot, error) {
	if _, fixed := kind.Size(); !fixed {
		return nil, fmt.Errorf("%w: numeric comparison needs a fixed-size kind, got %v", process.ErrInvalidValueType, kind)
	}
	return s.refresh(prev, func(old, cur []byte) bool {
		ov, err := process.ValueFromBytes(old, kind)
		if err != nil {
			return false
		}
		cv, err := process.ValueFromBytes(cur, kind)
		if err != nil {
			return false
		}
		order, ok := cv.Compare(ov)
		if !ok {
			return cmp == NotEqual
		}
		return cmp.holds(order)
	}), nil
}

// refresh re-reads prev and returns the retained addresses with their current bytes.
func (s *Scanner) refresh(prev Snapshot, keep func(old, cur []byte) bool) Snapshot {
	next := make(Snapshot)
	for addr, old := range prev {
		cur, err := s.readExact(addr, len(old))
		if err != nil {
			continue
		}
		if keep(old, cur) {
			next[addr] = cur
		}
	}
	return next
}

func (s *Scanner) readExact(addr process.ProcessMemoryAddress, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := s.h.ReadMemory(addr, buf)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, process.ReadError(addr, fmt.Sprintf("partial read: %d of %d bytes", n, size))
	}
	return buf, nil
}
