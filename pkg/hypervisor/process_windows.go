//go:build windows

package hypervisor

import (
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// stillActive is the exit code Windows reports for running processes.
const stillActive = 259

func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

func pidAlive(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}

// signalTerm kills outright: Windows has no SIGTERM for console-less
// processes.
func signalTerm(pid int) error {
	return signalKill(pid)
}

func signalKill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	defer p.Release()
	return p.Kill()
}

func processArgs(int) ([]string, error) {
	return nil, ErrUnsupportedPlatform
}
