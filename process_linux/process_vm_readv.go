//go:build linux

package process_linux

import (
	"errors"
	"unsafe"

	"memprobe/process"

	"golang.org/x/sys/unix"
)

// process_vm_readv uses the process_vm_readv syscall to read memory from another process
func process_vm_readv(pid process.ProcessID, localBuf []byte, remoteAddr process.ProcessMemoryAddress) (int, error) {
	localIov := unix.Iovec{
		Base: &localBuf[0],
		Len:  uint64(len(localBuf)),
	}

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags
	)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

// ReadMemory reads len(buf) bytes at addr. A short count with a nil error
// means the range crossed into unmapped memory.
func (p *LinuxProcess) ReadMemory(addr process.ProcessMemoryAddress, buf []byte) (int, error) {
	if !p.isOpen() {
		return 0, process.ErrProcessNotOpen
	}
	if !p.access.Has(process.AccessRead) {
		return 0, &process.AddressError{Op: "read", Address: addr, Reason: "handle lacks read access", Err: process.ErrAccessDenied}
	}
	if len(buf) == 0 {
		return 0, nil
	}

	n, err := process_vm_readv(p.pid, buf, addr)
	if err != nil {
		return 0, vmError("read", addr, err)
	}
	return n, nil
}

// vmError maps a process_vm_* errno onto the shared sentinels.
func vmError(op string, addr process.ProcessMemoryAddress, err error) error {
	var sentinel error
	switch {
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		sentinel = process.ErrAccessDenied
	case errors.Is(err, unix.ESRCH):
		sentinel = process.ErrProcessNotFound
	case errors.Is(err, unix.EFAULT):
		sentinel = process.ErrAddressNotMapped
	case op == "write":
		sentinel = process.ErrWriteFailed
	default:
		sentinel = process.ErrReadFailed
	}
	return &process.AddressError{Op: op, Address: addr, Reason: "process_vm_" + op + "v: " + err.Error(), Err: sentinel}
}
