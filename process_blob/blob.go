// Package process_blob implements process.Handle over in-memory regions. It
// stands in for a live target in tests and when analysing captured memory.
package process_blob

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"memprobe/process"
)

type segment struct {
	region process.Region
	data   []byte
}

type span struct {
	start, end process.ProcessMemoryAddress
}

func (s span) overlaps(addr process.ProcessMemoryAddress, size int) bool {
	return addr < s.end && addr.Add(process.ProcessMemorySize(size)) > s.start
}

// ProcessBlob is a synthetic address space.
type ProcessBlob struct {
	pid    process.ProcessID
	access process.Access

	mu          sync.Mutex
	closed      bool
	segments    []*segment
	failQueries []span
	failReads   []span
	shortWrite  int
	reads       int
	writes      int
	queries     int
}

var _ process.Handle = (*ProcessBlob)(nil)

func NewProcessBlob(pid process.ProcessID) *ProcessBlob {
	return &ProcessBlob{pid: pid, access: process.AccessReadWrite, shortWrite: -1}
}

// Map adds a committed region backed by data.
func (p *ProcessBlob) Map(base process.ProcessMemoryAddress, data []byte, prot process.Protection, kind process.RegionKind) *ProcessBlob {
	return p.add(process.Region{
		Base:              base,
		Size:              process.ProcessMemorySize(len(data)),
		State:             process.StateCommitted,
		Kind:              kind,
		Protect:           prot,
		AllocationBase:    base,
		AllocationProtect: prot,
	}, data)
}

// Reserve adds a reserved, uncommitted region.
func (p *ProcessBlob) Reserve(base process.ProcessMemoryAddress, size process.ProcessMemorySize) *ProcessBlob {
	return p.add(process.Region{
		Base:           base,
		Size:           size,
		State:          process.StateReserved,
		Kind:           process.KindPrivate,
		Protect:        process.PageNoAccess,
		AllocationBase: base,
	}, nil)
}

func (p *ProcessBlob) add(region process.Region, data []byte) *ProcessBlob {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.segments = append(p.segments, &segment{region: region, data: data})
	sort.Slice(p.segments, func(i, j int) bool {
		return p.segments[i].region.Base < p.segments[j].region.Base
	})
	return p
}

// FailQueries makes QueryRegion fail for every address in [start, end).
func (p *ProcessBlob) FailQueries(start, end process.ProcessMemoryAddress) *ProcessBlob {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failQueries = append(p.failQueries, span{start, end})
	return p
}

// FailReads makes every read touching [start, end) fail.
func (p *ProcessBlob) FailReads(start, end process.ProcessMemoryAddress) *ProcessBlob {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failReads = append(p.failReads, span{start, end})
	return p
}

// ShortWrites limits every write to n bytes. A negative n disables the limit.
func (p *ProcessBlob) ShortWrites(n int) *ProcessBlob {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shortWrite = n
	return p
}

// SetAccess changes the rights the blob reports.
func (p *ProcessBlob) SetAccess(access process.Access) *ProcessBlob {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.access = access
	return p
}

// Peek returns a copy of size bytes at addr without counting as a read.
func (p *ProcessBlob) Peek(addr process.ProcessMemoryAddress, size int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := make([]byte, size)
	if _, err := p.transfer(addr, buf, false, false); err != nil {
		return nil
	}
	return buf
}

// Poke overwrites target memory directly, bypassing write accounting and protections.
func (p *ProcessBlob) Poke(addr process.ProcessMemoryAddress, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transfer(addr, data, true, false)
}

// Reads returns how many ReadMemory calls reached the blob.
func (p *ProcessBlob) Reads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}

func (p *ProcessBlob) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

func (p *ProcessBlob) Queries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries
}

func (p *ProcessBlob) PID() process.ProcessID { return p.pid }

func (p *ProcessBlob) Access() process.Access {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.access
}

func (p *ProcessBlob) Shareable() bool { return true }

func (p *ProcessBlob) ReadMemory(addr process.ProcessMemoryAddress, buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, process.ErrProcessNotOpen
	}
	p.reads++
	for _, s := range p.failReads {
		if s.overlaps(addr, len(buf)) {
			return 0, process.ReadError(addr, "injected failure")
		}
	}
	return p.transfer(addr, buf, false, true)
}

func (p *ProcessBlob) WriteMemory(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, process.ErrProcessNotOpen
	}
	if !p.access.Has(process.AccessWrite) {
		return 0, &process.ProcessError{PID: p.pid, Reason: "handle lacks write access", Err: process.ErrAccessDenied}
	}
	p.writes++
	if p.shortWrite >= 0 && p.shortWrite < len(data) {
		data = data[:p.shortWrite]
	}
	return p.transfer(addr, data, true, true)
}

// transfer copies between buf and the segments covering [addr, addr+len(buf)).
// The span must be covered by contiguous committed segments. When checked,
// no-access and guarded segments refuse the transfer and writes need a
// writable protection.
func (p *ProcessBlob) transfer(addr process.ProcessMemoryAddress, buf []byte, write, checked bool) (int, error) {
	done := 0
	cur := addr
	for done < len(buf) {
		seg := p.find(cur)
		if seg == nil || !seg.region.IsCommitted() {
			if write {
				return done, process.WriteError(cur, "address not mapped")
			}
			return done, process.ReadError(cur, "address not mapped")
		}
		if checked && (seg.region.Protect.Base() == process.PageNoAccess || seg.region.IsGuarded()) {
			return done, &process.AddressError{Op: "access", Address: cur, Reason: seg.region.Protect.String(), Err: process.ErrAccessDenied}
		}
		if checked && write && !seg.region.IsWritable() {
			return done, &process.AddressError{Op: "write", Address: cur, Reason: "page is " + seg.region.Protect.String(), Err: process.ErrAccessDenied}
		}

		off := int(cur - seg.region.Base)
		var n int
		if write {
			n = copy(seg.data[off:], buf[done:])
		} else {
			n = copy(buf[done:], seg.data[off:])
		}
		done += n
		cur = cur.Add(process.ProcessMemorySize(n))
	}
	return done, nil
}

func (p *ProcessBlob) find(addr process.ProcessMemoryAddress) *segment {
	i := sort.Search(len(p.segments), func(i int) bool {
		return p.segments[i].region.End() > addr || p.segments[i].region.End() == 0
	})
	if i < len(p.segments) && p.segments[i].region.Contains(addr) {
		return p.segments[i]
	}
	return nil
}

func (p *ProcessBlob) QueryRegion(addr process.ProcessMemoryAddress) (process.Region, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return process.Region{}, process.ErrProcessNotOpen
	}
	p.queries++
	for _, s := range p.failQueries {
		if addr >= s.start && addr < s.end {
			return process.Region{}, &process.AddressError{Op: "query", Address: addr, Err: process.ErrAddressNotMapped}
		}
	}

	if seg := p.find(addr); seg != nil {
		return seg.region, nil
	}

	// Free gap between the previous segment and the next one.
	var gapStart process.ProcessMemoryAddress
	gapEnd := process.ProcessMemoryAddress(0)
	for _, seg := range p.segments {
		if seg.region.Base > addr {
			gapEnd = seg.region.Base
			break
		}
		gapStart = seg.region.End()
	}

	size := process.ProcessMemorySize(gapEnd - gapStart)
	if gapEnd == 0 {
		size = process.ProcessMemorySize(math.MaxUint64 - uint64(gapStart) + 1)
		if gapStart == 0 {
			size = math.MaxUint64
		}
	}
	return process.Region{
		Base:    gapStart,
		Size:    size,
		State:   process.StateFree,
		Protect: process.PageNoAccess,
	}, nil
}

func (p *ProcessBlob) ChangeProtection(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, prot process.Protection) (process.Protection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, process.ErrProcessNotOpen
	}
	seg := p.find(addr)
	if seg == nil || seg.region.Remaining(addr) < size {
		return 0, &process.AddressError{Op: "protect", Address: addr, Reason: fmt.Sprintf("%d bytes not within one region", size), Err: process.ErrProtection}
	}
	old := seg.region.Protect
	seg.region.Protect = prot
	return old, nil
}

func (p *ProcessBlob) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (p *ProcessBlob) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
