package process

import (
	"fmt"
	"strings"
)

// Protection is a page-protection bitmask using the Windows PAGE_* values.
type Protection uint32

const (
	PageNoAccess         Protection = 0x01
	PageReadOnly         Protection = 0x02
	PageReadWrite        Protection = 0x04
	PageWriteCopy        Protection = 0x08
	PageExecute          Protection = 0x10
	PageExecuteRead      Protection = 0x20
	PageExecuteReadWrite Protection = 0x40
	PageExecuteWriteCopy Protection = 0x80
	PageGuard            Protection = 0x100
	PageNoCache          Protection = 0x200
	PageWriteCombine     Protection = 0x400
)

const protectionModifiers = PageGuard | PageNoCache | PageWriteCombine

// IsReadable is the flag-level check: anything except exactly NOACCESS or
// exactly EXECUTE. Region.IsReadable differs for execute-only pages.
func (p Protection) IsReadable() bool {
	return p != PageNoAccess && p != PageExecute
}

func (p Protection) IsWritable() bool {
	return p&(PageReadWrite|PageWriteCopy|PageExecuteReadWrite|PageExecuteWriteCopy) != 0
}

func (p Protection) IsExecutable() bool {
	return p&(PageExecute|PageExecuteRead|PageExecuteReadWrite|PageExecuteWriteCopy) != 0
}

func (p Protection) IsGuard() bool   { return p&PageGuard != 0 }
func (p Protection) IsNoCache() bool { return p&PageNoCache != 0 }

func (p Protection) WithGuard() Protection    { return p | PageGuard }
func (p Protection) WithoutGuard() Protection { return p &^ PageGuard }

// Base drops the guard, no-cache and write-combine modifiers.
func (p Protection) Base() Protection { return p &^ protectionModifiers }

func (p Protection) String() string {
	var sb strings.Builder
	switch p.Base() {
	case 0:
		sb.WriteString("?")
	case PageNoAccess:
		sb.WriteString("--")
	case PageReadOnly:
		sb.WriteString("R")
	case PageReadWrite:
		sb.WriteString("RW")
	case PageWriteCopy:
		sb.WriteString("WC")
	case PageExecute:
		sb.WriteString("X")
	case PageExecuteRead:
		sb.WriteString("RX")
	case PageExecuteReadWrite:
		sb.WriteString("RWX")
	case PageExecuteWriteCopy:
		sb.WriteString("WCX")
	default:
		fmt.Fprintf(&sb, "0x%X", uint32(p.Base()))
	}
	if p.IsGuard() {
		sb.WriteString("+G")
	}
	if p.IsNoCache() {
		sb.WriteString("+NC")
	}
	if p&PageWriteCombine != 0 {
		sb.WriteString("+WC")
	}
	return sb.String()
}

// ProtectionFromPerms maps a /proc/<pid>/maps permission field such as
// "r-xp" onto the closest page protection. Private writable file mappings
// are copy-on-write.
func ProtectionFromPerms(perms string, fileBacked bool) Protection {
	has := func(i int, c byte) bool { return len(perms) > i && perms[i] == c }
	r, w, x := has(0, 'r'), has(1, 'w'), has(2, 'x')
	cow := w && fileBacked && has(3, 'p')

	switch {
	case x && w && cow:
		return PageExecuteWriteCopy
	case x && w:
		return PageExecuteReadWrite
	case x && r:
		return PageExecuteRead
	case x:
		return PageExecute
	case w && cow:
		return PageWriteCopy
	case w:
		return PageReadWrite
	case r:
		return PageReadOnly
	}
	return PageNoAccess
}

// RegionState is the allocation state of a region.
type RegionState uint32

const (
	StateCommitted RegionState = 0x1000
	StateReserved  RegionState = 0x2000
	StateFree      RegionState = 0x10000
)

func (s RegionState) String() string {
	switch s {
	case StateCommitted:
		return "commit"
	case StateReserved:
		return "reserve"
	case StateFree:
		return "free"
	}
	return fmt.Sprintf("state(0x%X)", uint32(s))
}

// RegionKind describes what backs a region.
type RegionKind uint32

const (
	KindPrivate RegionKind = 0x20000
	KindMapped  RegionKind = 0x40000
	KindImage   RegionKind = 0x1000000
)

func (k RegionKind) String() string {
	switch k {
	case KindPrivate:
		return "private"
	case KindMapped:
		return "mapped"
	case KindImage:
		return "image"
	case 0:
		return "-"
	}
	return fmt.Sprintf("kind(0x%X)", uint32(k))
}

// Region is one contiguous span of the target's address space with uniform attributes.
type Region struct {
	Base              ProcessMemoryAddress
	Size              ProcessMemorySize
	State             RegionState
	Kind              RegionKind
	Protect           Protection
	AllocationBase    ProcessMemoryAddress
	AllocationProtect Protection
	Path              string // backing file, when the platform reports one
}

// End is the first address past the region. It wraps to 0 for a region
// touching the top of the address space.
func (r Region) End() ProcessMemoryAddress {
	return r.Base.Add(r.Size)
}

// Contains reports whether addr lies in [Base, Base+Size).
func (r Region) Contains(addr ProcessMemoryAddress) bool {
	return addr >= r.Base && uint64(addr-r.Base) < uint64(r.Size)
}

// Remaining is the number of bytes from addr to the end of the region, or 0
// when addr is outside it.
func (r Region) Remaining(addr ProcessMemoryAddress) ProcessMemorySize {
	if !r.Contains(addr) {
		return 0
	}
	return r.Size - ProcessMemorySize(addr-r.Base)
}

func (r Region) IsCommitted() bool { return r.State == StateCommitted }

// IsReadable is the region-level check: not NOACCESS and not guarded.
// Execute-only regions count as readable here.
func (r Region) IsReadable() bool {
	return r.Protect != PageNoAccess && !r.Protect.IsGuard()
}

func (r Region) IsWritable() bool   { return r.Protect.IsWritable() }
func (r Region) IsExecutable() bool { return r.Protect.IsExecutable() }
func (r Region) IsGuarded() bool    { return r.Protect.IsGuard() }

func (r Region) String() string {
	s := fmt.Sprintf("%s-%s %-7s %-7s %-6s %s", r.Base, r.End(), r.State, r.Kind, r.Protect, r.Size)
	if r.Path != "" {
		s += " " + r.Path
	}
	return s
}
