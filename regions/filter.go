package regions

import "memprobe/process"

// FilterCriteria is a conjunction of optional constraints. The zero value
// matches every region.
type FilterCriteria struct {
	minSize        *process.ProcessMemorySize
	maxSize        *process.ProcessMemorySize
	state          *process.RegionState
	kind           *process.RegionKind
	readable       *bool
	writable       *bool
	executable     *bool
	rangeStart     *process.ProcessMemoryAddress
	rangeEnd       *process.ProcessMemoryAddress
	excludeGuarded bool
}

func NewFilter() *FilterCriteria { return &FilterCriteria{} }

func (f *FilterCriteria) WithMinSize(size process.ProcessMemorySize) *FilterCriteria {
	f.minSize = &size
	return f
}

func (f *FilterCriteria) WithMaxSize(size process.ProcessMemorySize) *FilterCriteria {
	f.maxSize = &size
	return f
}

func (f *FilterCriteria) WithState(state process.RegionState) *FilterCriteria {
	f.state = &state
	return f
}

func (f *FilterCriteria) WithKind(kind process.RegionKind) *FilterCriteria {
	f.kind = &kind
	return f
}

// CommittedOnly is shorthand for WithState(StateCommitted).
func (f *FilterCriteria) CommittedOnly() *FilterCriteria {
	return f.WithState(process.StateCommitted)
}

// Readable(true) keeps readable regions; Readable(false) keeps only regions that are not readable.
func (f *FilterCriteria) Readable(want bool) *FilterCriteria {
	f.readable = &want
	return f
}

// Writable(true) keeps writable regions; Writable(false) keeps only regions that are not writable.
func (f *FilterCriteria) Writable(want bool) *FilterCriteria {
	f.writable = &want
	return f
}

// Executable(true) keeps executable regions; Executable(false) keeps only regions that are not executable.
func (f *FilterCriteria) Executable(want bool) *FilterCriteria {
	f.executable = &want
	return f
}

// WithAddressRange keeps regions lying entirely inside [start, end].
func (f *FilterCriteria) WithAddressRange(start, end process.ProcessMemoryAddress) *FilterCriteria {
	f.rangeStart = &start
	f.rangeEnd = &end
	return f
}

func (f *FilterCriteria) ExcludeGuarded() *FilterCriteria {
	f.excludeGuarded = true
	return f
}

func (f *FilterCriteria) Matches(r process.Region) bool {
	switch {
	case f.minSize != nil && r.Size < *f.minSize:
		return false
	case f.maxSize != nil && r.Size > *f.maxSize:
		return false
	case f.state != nil && r.State != *f.state:
		return false
	case f.kind != nil && r.Kind != *f.kind:
		return false
	case f.readable != nil && r.IsReadable() != *f.readable:
		return false
	case f.writable != nil && r.IsWritable() != *f.writable:
		return false
	case f.executable != nil && r.IsExecutable() != *f.executable:
		return false
	case f.excludeGuarded && r.IsGuarded():
		return false
	case f.rangeStart != nil && r.Base < *f.rangeStart:
		return false
	case f.rangeEnd != nil && r.End() > *f.rangeEnd:
		return false
	}
	return true
}

// Apply returns the matching regions in their original order.
func (f *FilterCriteria) Apply(in []process.Region) []process.Region {
	var out []process.Region
	for _, r := range in {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func (f *FilterCriteria) Count(in []process.Region) int {
	n := 0
	for _, r := range in {
		if f.Matches(r) {
			n++
		}
	}
	return n
}

// TotalSize sums the sizes of the matching regions.
func (f *FilterCriteria) TotalSize(in []process.Region) process.ProcessMemorySize {
	var total process.ProcessMemorySize
	for _, r := range in {
		if f.Matches(r) {
			total += r.Size
		}
	}
	return total
}

// ExecutableCode matches committed executable regions without guard pages.
func ExecutableCode() *FilterCriteria {
	return NewFilter().Executable(true).CommittedOnly().ExcludeGuarded()
}

// HeapRegions matches committed, private, writable regions without guard pages.
func HeapRegions() *FilterCriteria {
	return NewFilter().WithKind(process.KindPrivate).Writable(true).CommittedOnly().ExcludeGuarded()
}

// StackRegions matches committed, private, readable and writable regions.
// Guard pages at the stack limit are not readable and so never match.
func StackRegions() *FilterCriteria {
	return NewFilter().WithKind(process.KindPrivate).Readable(true).Writable(true).CommittedOnly()
}

// ImageRegions matches committed regions backed by an executable image.
func ImageRegions() *FilterCriteria {
	return NewFilter().WithKind(process.KindImage).CommittedOnly()
}

// LargeRegions matches committed regions of at least 1 MiB.
func LargeRegions() *FilterCriteria {
	return NewFilter().WithMinSize(1 << 20).CommittedOnly()
}
