//go:build !windows

package hypervisor

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func pidAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	if err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	return !isZombie(pid)
}

func signalTerm(pid int) error {
	return ignoreGone(unix.Kill(pid, unix.SIGTERM))
}

func signalKill(pid int) error {
	return ignoreGone(unix.Kill(pid, unix.SIGKILL))
}

func ignoreGone(err error) error {
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
