//go:build windows

package process_windows

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unsafe"

	"memprobe/process"

	"golang.org/x/sys/windows"
)

// ListByName returns processes whose image name equals name, ordered by PID.
// Matching ignores case and an optional ".exe" suffix.
func ListByName(name string) ([]process.ProcessInfo, error) {
	if name == "" {
		return nil, errors.New("empty name")
	}
	want := strings.TrimSuffix(strings.ToLower(name), ".exe")

	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var out []process.ProcessInfo
	for err = windows.Process32First(snap, &entry); err == nil; err = windows.Process32Next(snap, &entry) {
		exe := windows.UTF16ToString(entry.ExeFile[:])
		if strings.TrimSuffix(strings.ToLower(exe), ".exe") == want {
			out = append(out, process.ProcessInfo{PID: process.ProcessID(entry.ProcessID), Name: exe})
		}
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("Process32Next: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// OneByName returns the lowest-PID match for name, or ErrProcessNotFound.
func OneByName(name string) (process.ProcessInfo, error) {
	ps, err := ListByName(name)
	if err != nil {
		return process.ProcessInfo{}, err
	}
	if len(ps) == 0 {
		return process.ProcessInfo{}, fmt.Errorf("%w: %q", process.ErrProcessNotFound, name)
	}
	return ps[0], nil
}
