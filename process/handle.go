package process

import "strings"

// Access is the set of rights a handle was opened with.
type Access uint32

const (
	AccessQuery Access = 1 << iota
	AccessRead
	AccessWrite
	AccessOperation

	AccessReadOnly  = AccessQuery | AccessRead
	AccessReadWrite = AccessQuery | AccessRead | AccessWrite | AccessOperation
)

func (a Access) Has(want Access) bool { return a&want == want }

func (a Access) String() string {
	var parts []string
	for _, f := range []struct {
		bit  Access
		name string
	}{{AccessQuery, "query"}, {AccessRead, "read"}, {AccessWrite, "write"}, {AccessOperation, "operation"}} {
		if a&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Handle is an open process as seen through the operating system.
// ReadMemory and WriteMemory report how many bytes were transferred; a short
// count with a nil error is a partial transfer the caller must treat as failure.
type Handle interface {
	PID() ProcessID
	Access() Access

	ReadMemory(addr ProcessMemoryAddress, buf []byte) (int, error)
	WriteMemory(addr ProcessMemoryAddress, data []byte) (int, error)

	// QueryRegion describes the region containing addr.
	QueryRegion(addr ProcessMemoryAddress) (Region, error)

	// ChangeProtection applies prot to [addr, addr+size) and returns the previous protection.
	ChangeProtection(addr ProcessMemoryAddress, size ProcessMemorySize, prot Protection) (Protection, error)

	Close() error
}

// Shareable is implemented by handles that may be used from several
// goroutines at once.
type Shareable interface {
	Shareable() bool
}

// IsShareable reports whether h can serve concurrent readers.
func IsShareable(h Handle) bool {
	s, ok := h.(Shareable)
	return ok && s.Shareable()
}

// Privilege is proof that the caller holds the debug capability of the
// platform (SeDebugPrivilege, root or CAP_SYS_PTRACE).
type Privilege struct {
	Name string
}

// OpenFunc opens pid with the requested rights. priv may be nil.
type OpenFunc func(pid ProcessID, access Access, priv *Privilege) (Handle, error)
