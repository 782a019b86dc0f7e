//go:build linux

package process_linux

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"memprobe/process"
)

// capSysPtrace is CAP_SYS_PTRACE's bit in the effective capability set.
const capSysPtrace = 19

// CheckPrivileges reports whether the caller may attach to processes it does
// not own. It returns ErrInsufficientPrivileges when neither root nor
// CAP_SYS_PTRACE is held.
func CheckPrivileges() (*process.Privilege, error) {
	if os.Geteuid() == 0 {
		return &process.Privilege{Name: "root"}, nil
	}

	capEff, err := effectiveCaps()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", process.ErrInsufficientPrivileges, err)
	}
	if capEff&(1<<capSysPtrace) != 0 {
		return &process.Privilege{Name: "CAP_SYS_PTRACE"}, nil
	}
	return nil, process.ErrInsufficientPrivileges
}

func effectiveCaps() (uint64, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if v, ok := strings.CutPrefix(line, "CapEff:"); ok {
			return strconv.ParseUint(strings.TrimSpace(v), 16, 64)
		}
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("CapEff not found in /proc/self/status")
}
