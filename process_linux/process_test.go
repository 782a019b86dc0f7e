//go:build linux

package process_linux

import (
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"
	"unsafe"

	"memprobe/process"

	"github.com/google/go-cmp/cmp"
)

// pinned keeps test buffers on the heap so their addresses stay put.
var pinned [][]byte

func heapBuf(b []byte) []byte {
	pinned = append(pinned, b)
	return b
}

func openSelf(t *testing.T, access process.Access) *LinuxProcess {
	t.Helper()
	h, err := Open(process.ProcessID(os.Getpid()), access, nil)
	if err != nil {
		t.Fatalf("Open(self): %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h.(*LinuxProcess)
}

func TestReadWriteSelf(t *testing.T) {
	p := openSelf(t, process.AccessReadWrite)

	local := heapBuf([]byte("memprobe self test"))
	addr := process.ProcessMemoryAddress(uintptr(unsafe.Pointer(&local[0])))

	got := make([]byte, len(local))
	n, err := p.ReadMemory(addr, got)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if n != len(local) {
		t.Fatalf("ReadMemory n = %d, want %d", n, len(local))
	}
	if diff := cmp.Diff(local, got); diff != "" {
		t.Errorf("ReadMemory mismatch (-want +got):\n%s", diff)
	}

	if _, err := p.WriteMemory(addr, []byte("MEMPROBE")); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}
	if diff := cmp.Diff("MEMPROBE self test", string(local)); diff != "" {
		t.Errorf("after write (-want +got):\n%s", diff)
	}
}

func TestQueryRegionSelf(t *testing.T) {
	p := openSelf(t, process.AccessReadOnly)

	local := heapBuf(make([]byte, 64))
	addr := process.ProcessMemoryAddress(uintptr(unsafe.Pointer(&local[0])))

	r, err := p.QueryRegion(addr)
	if err != nil {
		t.Fatalf("QueryRegion: %v", err)
	}
	if !r.Contains(addr) || !r.IsCommitted() || !r.IsWritable() {
		t.Errorf("QueryRegion(%s) = %s, want committed writable region containing it", addr, r)
	}

	free, err := p.QueryRegion(0)
	if err != nil {
		t.Fatalf("QueryRegion(0): %v", err)
	}
	if free.State != process.StateFree {
		t.Errorf("QueryRegion(0).State = %s, want free", free.State)
	}
}

func TestAccessAndClose(t *testing.T) {
	p := openSelf(t, process.AccessReadOnly)

	local := heapBuf(make([]byte, 8))
	addr := process.ProcessMemoryAddress(uintptr(unsafe.Pointer(&local[0])))

	if _, err := p.WriteMemory(addr, []byte{1}); !errors.Is(err, process.ErrAccessDenied) {
		t.Errorf("WriteMemory on read-only handle: got %v, want ErrAccessDenied", err)
	}
	if _, err := p.ChangeProtection(addr, 8, process.PageReadOnly); !errors.Is(err, process.ErrUnsupported) {
		t.Errorf("ChangeProtection: got %v, want ErrUnsupported", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := p.ReadMemory(addr, local); !errors.Is(err, process.ErrProcessNotOpen) {
		t.Errorf("ReadMemory after Close: got %v, want ErrProcessNotOpen", err)
	}
	if _, err := p.QueryRegion(addr); !errors.Is(err, process.ErrProcessNotOpen) {
		t.Errorf("QueryRegion after Close: got %v, want ErrProcessNotOpen", err)
	}
}

func TestOpenMissingProcess(t *testing.T) {
	// pid_max never exceeds 2^22.
	_, err := Open(1<<23, process.AccessReadOnly, nil)
	if !errors.Is(err, process.ErrProcessNotFound) {
		t.Errorf("Open(missing): got %v, want ErrProcessNotFound", err)
	}
}

func TestListByNameEmpty(t *testing.T) {
	if _, err := ListByName(""); err == nil {
		t.Error("ListByName(\"\") returned nil error")
	}
	if _, err := OneByName("memprobe-no-such-process"); !errors.Is(err, process.ErrProcessNotFound) {
		t.Errorf("OneByName(missing): got %v, want ErrProcessNotFound", err)
	}
}

func TestQueryRegionAfterExit(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	cmd := exec.Command(sleep, "30")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	pid := process.ProcessID(cmd.Process.Pid)

	h, err := Open(pid, process.AccessReadOnly, nil)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		t.Skipf("cannot open child: %v", err)
	}
	defer h.Close()
	if !Exists(pid) {
		t.Fatal("Exists() = false for a running child")
	}

	cmd.Process.Kill()
	cmd.Wait()
	if Exists(pid) {
		t.Fatal("Exists() = true after the child was reaped")
	}

	p := h.(*LinuxProcess)
	p.mu.Lock()
	p.mmLoaded = time.Time{}
	p.mu.Unlock()

	if _, err := p.QueryRegion(0x10000); !errors.Is(err, process.ErrProcessNotFound) {
		t.Errorf("QueryRegion after exit: got %v, want ErrProcessNotFound", err)
	}
}
