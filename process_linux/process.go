//go:build linux

// Package process_linux reads and writes another process on Linux with
// process_vm_readv/process_vm_writev and answers region queries from
// /proc/<pid>/maps.
package process_linux

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"memprobe/process"
	"memprobe/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// mapTTL bounds how long a parsed maps file is trusted before QueryRegion re-reads it.
const mapTTL = 250 * time.Millisecond

// LinuxProcess implements process.Handle for Linux systems
type LinuxProcess struct {
	pid    process.ProcessID
	access process.Access
	exe    string
	log    *logger.Logger

	mu       sync.Mutex
	mm       []memory_map.MemoryMapItem
	mmLoaded time.Time
	closed   bool
}

var _ process.Handle = (*LinuxProcess)(nil)

// Open opens pid. priv is informational on Linux; the kernel decides on every
// access through ptrace access mode checks.
func Open(pid process.ProcessID, access process.Access, priv *process.Privilege) (process.Handle, error) {
	procPath := fmt.Sprintf("/proc/%d", pid)
	if _, err := os.Stat(procPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &process.ProcessError{PID: pid, Reason: "no such process", Err: process.ErrProcessNotFound}
		}
		return nil, &process.ProcessError{PID: pid, Reason: err.Error(), Err: process.ErrAccessDenied}
	}

	p := &LinuxProcess{
		pid:    pid,
		access: access,
		log:    logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid))),
	}
	p.exe, _ = os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))

	if err := p.UpdateMemoryMap(); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, &process.ProcessError{PID: pid, Reason: "cannot read memory map", Err: process.ErrAccessDenied}
		}
		return nil, fmt.Errorf("failed to initialize memory map: %w", err)
	}

	if priv != nil {
		p.log.Infoln("Process opened with", access, "access, privilege", priv.Name)
	} else {
		p.log.Infoln("Process opened with", access, "access")
	}
	return p, nil
}

func (p *LinuxProcess) PID() process.ProcessID { return p.pid }

func (p *LinuxProcess) Access() process.Access { return p.access }

// Shareable reports true: the syscalls carry no per-handle state.
func (p *LinuxProcess) Shareable() bool { return true }

// Exe returns the resolved executable path, or "" when it was not readable.
func (p *LinuxProcess) Exe() string { return p.exe }

func (p *LinuxProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.mm = nil
	p.log.Infoln("Process closed")
	return nil
}

// UpdateMemoryMap re-reads /proc/<pid>/maps.
func (p *LinuxProcess) UpdateMemoryMap() error {
	mm, err := memory_map.ReadMemoryMap(int(p.pid))
	if err != nil {
		return fmt.Errorf("failed to read memory map: %w", err)
	}

	p.mu.Lock()
	p.mm = mm
	p.mmLoaded = time.Now()
	p.mu.Unlock()
	return nil
}

// QueryRegion answers from the cached memory map, refreshing it when stale.
func (p *LinuxProcess) QueryRegion(addr process.ProcessMemoryAddress) (process.Region, error) {
	p.mu.Lock()
	closed, stale := p.closed, time.Since(p.mmLoaded) > mapTTL
	p.mu.Unlock()

	if closed {
		return process.Region{}, process.ErrProcessNotOpen
	}
	if stale {
		if err := p.UpdateMemoryMap(); err != nil {
			if !Exists(p.pid) {
				return process.Region{}, &process.ProcessError{PID: p.pid, Reason: "process exited", Err: process.ErrProcessNotFound}
			}
			return process.Region{}, &process.AddressError{Op: "query", Address: addr, Reason: err.Error(), Err: process.ErrAddressNotMapped}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return memory_map.Query(uint64(addr), p.mm, p.exe), nil
}

// ChangeProtection is not available: changing another process's page
// protection on Linux requires injecting an mprotect call into it.
func (p *LinuxProcess) ChangeProtection(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, prot process.Protection) (process.Protection, error) {
	return 0, &process.AddressError{Op: "protect", Address: addr, Reason: "mprotect in a foreign process is not supported", Err: process.ErrUnsupported}
}

func (p *LinuxProcess) isOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}
