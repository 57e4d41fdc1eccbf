package hypervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// pollInterval is how often attached processes are checked while waiting.
const pollInterval = 50 * time.Millisecond

type execDriver struct{}

func (d *execDriver) Spawn(ctx context.Context, argv []string, opts SpawnOptions) (Handle, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	cmd.Stdout = opts.Output
	cmd.Stderr = opts.Output
	cmd.SysProcAttr = detachAttr()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	h := &childHandle{
		cmd:  cmd,
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}
	go h.reap()

	return h, nil
}

func (d *execDriver) Attach(pid int) (Handle, error) {
	if pid <= 0 {
		return nil, ErrInvalidPID
	}
	if !pidAlive(pid) {
		return nil, fmt.Errorf("%w: %d", ErrProcessNotFound, pid)
	}
	return &pidHandle{pid: pid}, nil
}

func (d *execDriver) Alive(pid int) bool {
	return pid > 0 && pidAlive(pid)
}

func (d *execDriver) Args(pid int) ([]string, error) {
	if pid <= 0 {
		return nil, ErrInvalidPID
	}
	return processArgs(pid)
}

// childHandle is a process started by this manager.
type childHandle struct {
	cmd     *exec.Cmd
	pid     int
	done    chan struct{}
	waitErr error
}

func (h *childHandle) reap() {
	h.waitErr = h.cmd.Wait()
	close(h.done)
}

func (h *childHandle) PID() int {
	return h.pid
}

func (h *childHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *childHandle) Terminate() error {
	if !h.Alive() {
		return nil
	}
	return signalTerm(h.pid)
}

func (h *childHandle) Kill() error {
	if !h.Alive() {
		return nil
	}
	return signalKill(h.pid)
}

func (h *childHandle) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

// ExitErr returns the result of waiting on the child, nil while it runs.
func (h *childHandle) ExitErr() error {
	if h.Alive() {
		return nil
	}
	return h.waitErr
}

// pidHandle is an adopted process from an earlier run.
type pidHandle struct {
	pid int
}

func (h *pidHandle) PID() int {
	return h.pid
}

func (h *pidHandle) Alive() bool {
	return pidAlive(h.pid)
}

func (h *pidHandle) Terminate() error {
	if !h.Alive() {
		return nil
	}
	return signalTerm(h.pid)
}

func (h *pidHandle) Kill() error {
	if !h.Alive() {
		return nil
	}
	return signalKill(h.pid)
}

func (h *pidHandle) Wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !h.Alive() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}
