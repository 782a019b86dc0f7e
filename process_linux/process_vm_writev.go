//go:build linux

package process_linux

import (
	"unsafe"

	"memprobe/process"

	"golang.org/x/sys/unix"
)

// process_vm_writev uses the process_vm_writev syscall to write memory to another process
func process_vm_writev(pid process.ProcessID, localBuf []byte, remoteAddr process.ProcessMemoryAddress) (int, error) {
	localIov := unix.Iovec{
		Base: &localBuf[0],
		Len:  uint64(len(localBuf)),
	}

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_WRITEV,
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

// WriteMemory writes data at addr. process_vm_writev honours page
// protection, so read-only targets fail with ErrAddressNotMapped (EFAULT).
func (p *LinuxProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	if !p.isOpen() {
		return 0, process.ErrProcessNotOpen
	}
	if !p.access.Has(process.AccessWrite) {
		return 0, &process.AddressError{Op: "write", Address: addr, Reason: "handle lacks write access", Err: process.ErrAccessDenied}
	}
	if len(data) == 0 {
		return 0, nil
	}

	// The kernel reads from our buffer while the call is in flight.
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	n, err := process_vm_writev(p.pid, dataCopy, addr)
	if err != nil {
		return 0, vmError("write", addr, err)
	}
	return n, nil
}
