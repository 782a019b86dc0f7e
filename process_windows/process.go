//go:build windows

// Package process_windows reads, writes and queries another process on
// Windows through the kernel32 memory APIs.
package process_windows

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"unsafe"

	"memprobe/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

// WindowsProcess implements process.Handle for Windows systems
type WindowsProcess struct {
	pid    process.ProcessID
	access process.Access
	log    *logger.Logger

	mu     sync.RWMutex
	handle windows.Handle
}

var _ process.Handle = (*WindowsProcess)(nil)

// desiredAccess maps Access onto OpenProcess rights.
func desiredAccess(a process.Access) uint32 {
	var rights uint32
	if a.Has(process.AccessQuery) {
		rights |= windows.PROCESS_QUERY_INFORMATION
	}
	if a.Has(process.AccessRead) {
		rights |= windows.PROCESS_VM_READ
	}
	if a.Has(process.AccessWrite) {
		rights |= windows.PROCESS_VM_WRITE
	}
	if a.Has(process.AccessOperation) {
		rights |= windows.PROCESS_VM_OPERATION
	}
	return rights
}

// Open opens pid with the rights access asks for. priv, when non-nil, names a
// privilege already enabled on the calling token (see EnableDebugPrivilege).
func Open(pid process.ProcessID, access process.Access, priv *process.Privilege) (process.Handle, error) {
	handle, err := windows.OpenProcess(desiredAccess(access), false, uint32(pid))
	if err != nil {
		switch {
		case errors.Is(err, windows.ERROR_ACCESS_DENIED):
			return nil, &process.ProcessError{PID: pid, Reason: "OpenProcess: " + err.Error(), Err: process.ErrAccessDenied}
		case errors.Is(err, windows.ERROR_INVALID_PARAMETER):
			return nil, &process.ProcessError{PID: pid, Reason: "OpenProcess: " + err.Error(), Err: process.ErrProcessNotFound}
		}
		return nil, &process.ProcessError{PID: pid, Reason: "OpenProcess: " + err.Error(), Err: process.ErrProcessNotOpen}
	}

	p := &WindowsProcess{
		pid:    pid,
		access: access,
		handle: handle,
		log:    logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid))),
	}
	if priv != nil {
		p.log.Infoln("Process opened with", access, "access, privilege", priv.Name)
	} else {
		p.log.Infoln("Process opened with", access, "access")
	}
	return p, nil
}

func (p *WindowsProcess) PID() process.ProcessID { return p.pid }

func (p *WindowsProcess) Access() process.Access { return p.access }

// Shareable reports true: kernel32 memory calls are safe on one handle from
// many goroutines.
func (p *WindowsProcess) Shareable() bool { return true }

func (p *WindowsProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(p.handle)
	p.handle = 0
	if err != nil {
		return fmt.Errorf("CloseHandle failed: %w", err)
	}
	p.log.Infoln("Process closed")
	return nil
}

// acquire holds the read lock for the duration of one call so Close cannot
// release the handle underneath it.
func (p *WindowsProcess) acquire() (windows.Handle, func(), error) {
	p.mu.RLock()
	if p.handle == 0 {
		p.mu.RUnlock()
		return 0, nil, process.ErrProcessNotOpen
	}
	return p.handle, p.mu.RUnlock, nil
}

// ReadMemory reads len(buf) bytes at addr. ERROR_PARTIAL_COPY is reported as
// a short count.
func (p *WindowsProcess) ReadMemory(addr process.ProcessMemoryAddress, buf []byte) (int, error) {
	handle, release, err := p.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	if len(buf) == 0 {
		return 0, nil
	}

	var n uintptr
	err = windows.ReadProcessMemory(handle, uintptr(addr), &buf[0], uintptr(len(buf)), &n)
	if err != nil && !(errors.Is(err, windows.ERROR_PARTIAL_COPY) && n > 0) {
		return int(n), memError("read", addr, err)
	}
	return int(n), nil
}

func (p *WindowsProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	handle, release, err := p.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	if len(data) == 0 {
		return 0, nil
	}

	var n uintptr
	err = windows.WriteProcessMemory(handle, uintptr(addr), &data[0], uintptr(len(data)), &n)
	if err != nil && !(errors.Is(err, windows.ERROR_PARTIAL_COPY) && n > 0) {
		return int(n), memError("write", addr, err)
	}
	return int(n), nil
}

// QueryRegion describes the region containing addr. Addresses above the user
// address space come back as one free region reaching the top of memory.
func (p *WindowsProcess) QueryRegion(addr process.ProcessMemoryAddress) (process.Region, error) {
	handle, release, err := p.acquire()
	if err != nil {
		return process.Region{}, err
	}
	defer release()

	var mbi windows.MemoryBasicInformation
	err = windows.VirtualQueryEx(handle, uintptr(addr), &mbi, unsafe.Sizeof(mbi))
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) && addr != 0 {
			return process.Region{
				Base:  addr,
				Size:  process.ProcessMemorySize(math.MaxUint64 - uint64(addr) + 1),
				State: process.StateFree,
			}, nil
		}
		return process.Region{}, memError("query", addr, err)
	}
	return regionFromMBI(&mbi), nil
}

func regionFromMBI(mbi *windows.MemoryBasicInformation) process.Region {
	return process.Region{
		Base:              process.ProcessMemoryAddress(mbi.BaseAddress),
		Size:              process.ProcessMemorySize(mbi.RegionSize),
		State:             process.RegionState(mbi.State),
		Kind:              process.RegionKind(mbi.Type),
		Protect:           process.Protection(mbi.Protect),
		AllocationBase:    process.ProcessMemoryAddress(mbi.AllocationBase),
		AllocationProtect: process.Protection(mbi.AllocationProtect),
	}
}

// ChangeProtection applies prot to [addr, addr+size) and returns the
// protection the first page had before.
func (p *WindowsProcess) ChangeProtection(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, prot process.Protection) (process.Protection, error) {
	handle, release, err := p.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	var old uint32
	if err := windows.VirtualProtectEx(handle, uintptr(addr), uintptr(size), uint32(prot), &old); err != nil {
		return 0, &process.AddressError{Op: "protect", Address: addr, Reason: "VirtualProtectEx: " + err.Error(), Err: process.ErrProtection}
	}
	return process.Protection(old), nil
}

func memError(op string, addr process.ProcessMemoryAddress, err error) error {
	var sentinel error
	switch {
	case errors.Is(err, windows.ERROR_ACCESS_DENIED):
		sentinel = process.ErrAccessDenied
	case errors.Is(err, windows.ERROR_PARTIAL_COPY), errors.Is(err, windows.ERROR_NOACCESS):
		sentinel = process.ErrAddressNotMapped
	case op == "write":
		sentinel = process.ErrWriteFailed
	case op == "query":
		sentinel = process.ErrInvalidAddress
	default:
		sentinel = process.ErrReadFailed
	}
	return &process.AddressError{Op: op, Address: addr, Reason: err.Error(), Err: sentinel}
}
