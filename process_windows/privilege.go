//go:build windows

package process_windows

import (
	"fmt"

	"memprobe/process"

	"golang.org/x/sys/windows"
)

const debugPrivilege = "SeDebugPrivilege"

// EnableDebugPrivilege enables SeDebugPrivilege on the calling process token
// so that processes owned by other users can be opened.
func EnableDebugPrivilege() (*process.Privilege, error) {
	var token windows.Token
	err := windows.OpenProcessToken(windows.CurrentProcess(), windows.TOKEN_ADJUST_PRIVILEGES|windows.TOKEN_QUERY, &token)
	if err != nil {
		return nil, fmt.Errorf("%w: OpenProcessToken: %w", process.ErrInsufficientPrivileges, err)
	}
	defer token.Close()

	var luid windows.LUID
	if err := windows.LookupPrivilegeValue(nil, windows.StringToUTF16Ptr(debugPrivilege), &luid); err != nil {
		return nil, fmt.Errorf("%w: LookupPrivilegeValue: %w", process.ErrInsufficientPrivileges, err)
	}

	tp := windows.Tokenprivileges{
		PrivilegeCount: 1,
		Privileges: [1]windows.LUIDAndAttributes{
			{Luid: luid, Attributes: windows.SE_PRIVILEGE_ENABLED},
		},
	}
	if err := windows.AdjustTokenPrivileges(token, false, &tp, 0, nil, nil); err != nil {
		return nil, fmt.Errorf("%w: AdjustTokenPrivileges: %w", process.ErrInsufficientPrivileges, err)
	}
	// AdjustTokenPrivileges succeeds without assigning when the token lacks the privilege.
	if err := windows.GetLastError(); err == windows.ERROR_NOT_ALL_ASSIGNED {
		return nil, fmt.Errorf("%w: %s not held", process.ErrInsufficientPrivileges, debugPrivilege)
	}
	return &process.Privilege{Name: debugPrivilege}, nil
}

// CheckPrivileges is EnableDebugPrivilege under the name the other platforms use.
func CheckPrivileges() (*process.Privilege, error) {
	return EnableDebugPrivilege()
}
