// Package hypervisor starts and supervises QEMU emulator processes.
//
// A Handle wraps one OS process. Processes spawned by this package are
// reaped by a background goroutine; processes from an earlier run of the
// manager can be attached by pid and are observed by polling.
package hypervisor

import (
	"context"
	"io"
	"time"
)

// Handle is one live (or recently live) emulator process.
type Handle interface {
	// PID returns the operating system process id.
	PID() int

	// Alive reports whether the process is still running. It never blocks.
	Alive() bool

	// Terminate asks the process to exit. On unix this sends SIGTERM, which
	// QEMU treats as a request to quit.
	Terminate() error

	// Kill forcefully ends the process.
	Kill() error

	// Wait blocks until the process exits or timeout elapses. It reports
	// whether the process exited.
	Wait(timeout time.Duration) bool
}

// Exiter is implemented by handles that observed how their process ended.
type Exiter interface {
	// ExitErr returns the wait result once the process has exited.
	ExitErr() error
}

// SpawnOptions control how a process is started.
type SpawnOptions struct {
	// Dir is the working directory (empty = current).
	Dir string

	// Env is appended to the parent environment.
	Env []string

	// Output receives stdout and stderr. An *os.File is handed to the child
	// directly so it keeps writing after the manager exits.
	Output io.Writer
}

// Driver creates and attaches process handles.
type Driver interface {
	// Spawn starts argv[0] with argv[1:] directly, without a shell. The
	// process is placed in its own process group so it outlives the caller.
	// ctx only guards the start itself; it does not bound the process.
	Spawn(ctx context.Context, argv []string, opts SpawnOptions) (Handle, error)

	// Attach wraps an existing process that is not a child of this one.
	Attach(pid int) (Handle, error)

	// Alive reports whether pid refers to a running process.
	Alive(pid int) bool

	// Args returns the command line of pid where the platform exposes it.
	Args(pid int) ([]string, error)
}

// Info describes the process driver.
type Info struct {
	Name string // "exec"
	OS   string
	Arch string
}
