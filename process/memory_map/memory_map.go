// Package memory_map parses /proc/<pid>/maps and answers region queries from it.
package memory_map

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"memprobe/process"
)

// MemoryMapItem represents a memory region in a process's address space
type MemoryMapItem struct {
	Address uint64 // The starting address of the memory region
	Size    uint64 // The size of the memory region in bytes
	Perms   string // Permissions (e.g., "r-xp" for read, execute, private)
	Offset  uint64 // Offset into the backing file
	Inode   uint64
	Path    string // Backing file or pseudo name such as [heap]
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s %s", mmItem.Address, mmItem.Size, mmItem.Perms, mmItem.Path)
}

func (mmItem MemoryMapItem) End() uint64 {
	return mmItem.Address + mmItem.Size
}

func (mmItem MemoryMapItem) IsReadable() bool {
	return len(mmItem.Perms) > 0 && mmItem.Perms[0] == 'r'
}

func (mmItem MemoryMapItem) IsWritable() bool {
	return len(mmItem.Perms) > 1 && mmItem.Perms[1] == 'w'
}

func (mmItem MemoryMapItem) IsExecutable() bool {
	return len(mmItem.Perms) > 2 && mmItem.Perms[2] == 'x'
}

func (mmItem MemoryMapItem) IsShared() bool {
	return len(mmItem.Perms) > 3 && mmItem.Perms[3] == 's'
}

// IsFileBacked is true for mappings of a real file, not [heap], [stack] or anonymous memory.
func (mmItem MemoryMapItem) IsFileBacked() bool {
	return mmItem.Path != "" && !strings.HasPrefix(mmItem.Path, "[")
}

// Region converts the item into the platform-neutral region model. exe is the
// target's executable path and may be empty.
func (mmItem MemoryMapItem) Region(exe string) process.Region {
	kind := process.KindPrivate
	switch {
	case mmItem.Path == "[vdso]" || mmItem.Path == "[vsyscall]":
		kind = process.KindImage
	case mmItem.IsFileBacked() && (mmItem.Path == exe || strings.Contains(mmItem.Path, ".so")):
		kind = process.KindImage
	case mmItem.IsFileBacked() || mmItem.IsShared():
		kind = process.KindMapped
	}

	prot := process.ProtectionFromPerms(mmItem.Perms, mmItem.IsFileBacked())
	return process.Region{
		Base:              process.ProcessMemoryAddress(mmItem.Address),
		Size:              process.ProcessMemorySize(mmItem.Size),
		State:             process.StateCommitted,
		Kind:              kind,
		Protect:           prot,
		AllocationBase:    process.ProcessMemoryAddress(mmItem.Address),
		AllocationProtect: prot,
		Path:              mmItem.Path,
	}
}

// ParseLine parses one line of /proc/<pid>/maps, e.g.
// "00400000-0040b000 r-xp 00000000 08:02 173521 /usr/bin/dbus-daemon".
func ParseLine(line string) (MemoryMapItem, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return MemoryMapItem{}, fmt.Errorf("short maps line %q", line)
	}

	addrRange := strings.SplitN(fields[0], "-", 2)
	if len(addrRange) != 2 {
		return MemoryMapItem{}, fmt.Errorf("bad address range %q", fields[0])
	}

	startAddr, err := strconv.ParseUint(addrRange[0], 16, 64)
	if err != nil {
		return MemoryMapItem{}, fmt.Errorf("bad start address %q: %w", addrRange[0], err)
	}

	endAddr, err := strconv.ParseUint(addrRange[1], 16, 64)
	if err != nil {
		return MemoryMapItem{}, fmt.Errorf("bad end address %q: %w", addrRange[1], err)
	}
	if endAddr < startAddr {
		return MemoryMapItem{}, fmt.Errorf("inverted address range %q", fields[0])
	}

	item := MemoryMapItem{
		Address: startAddr,
		Size:    endAddr - startAddr,
		Perms:   fields[1],
	}
	if len(fields) > 2 {
		item.Offset, _ = strconv.ParseUint(fields[2], 16, 64)
	}
	if len(fields) > 4 {
		item.Inode, _ = strconv.ParseUint(fields[4], 10, 64)
	}
	if len(fields) > 5 {
		item.Path = strings.Join(fields[5:], " ")
	}
	return item, nil
}

// Parse reads a whole maps file. Malformed lines are skipped. The result is
// sorted by address.
func Parse(r io.Reader) ([]MemoryMapItem, error) {
	var memoryMap []MemoryMapItem
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		item, err := ParseLine(scanner.Text())
		if err != nil {
			continue
		}
		memoryMap = append(memoryMap, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Lookup requires the memory map to be sorted by address
	sort.Slice(memoryMap, func(i, j int) bool {
		return memoryMap[i].Address < memoryMap[j].Address
	})
	return memoryMap, nil
}

// Lookup returns the item containing addr, or nil. memoryMap must be sorted.
func Lookup(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].End() > addr
	})
	if i < len(memoryMap) && memoryMap[i].Address <= addr {
		return &memoryMap[i]
	}

	return nil
}

// Query describes the region containing addr. Addresses between mappings
// yield a Free region spanning the gap; the gap after the last mapping runs
// to the top of the address space.
func Query(addr uint64, memoryMap []MemoryMapItem, exe string) process.Region {
	if item := Lookup(addr, memoryMap); item != nil {
		return item.Region(exe)
	}

	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].Address > addr
	})

	var gapStart uint64
	if i > 0 {
		gapStart = memoryMap[i-1].End()
	}

	size := math.MaxUint64 - gapStart + 1
	if i < len(memoryMap) {
		size = memoryMap[i].Address - gapStart
	} else if gapStart == 0 {
		size = math.MaxUint64
	}

	return process.Region{
		Base:    process.ProcessMemoryAddress(gapStart),
		Size:    process.ProcessMemorySize(size),
		State:   process.StateFree,
		Protect: process.PageNoAccess,
	}
}
