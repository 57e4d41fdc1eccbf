package testutil

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/javanstorm/qemumgr/pkg/hypervisor"
)

// FakeHandle is a scripted process handle. It starts alive.
type FakeHandle struct {
	mu sync.Mutex

	pid  int
	dead bool
	done chan struct{}

	// IgnoreTerm keeps the process alive after Terminate.
	IgnoreTerm bool
	// IgnoreKill keeps the process alive after Kill.
	IgnoreKill bool

	ExitCode   error
	Terminated int
	Killed     int
}

// NewFakeHandle returns a live handle for pid.
func NewFakeHandle(pid int) *FakeHandle {
	return &FakeHandle{pid: pid, done: make(chan struct{})}
}

var (
	_ hypervisor.Handle = (*FakeHandle)(nil)
	_ hypervisor.Exiter = (*FakeHandle)(nil)
)

func (h *FakeHandle) PID() int { return h.pid }

func (h *FakeHandle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.dead
}

// Exit marks the process as ended with err.
func (h *FakeHandle) Exit(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dead {
		return
	}
	h.dead = true
	h.ExitCode = err
	close(h.done)
}

func (h *FakeHandle) Terminate() error {
	h.mu.Lock()
	h.Terminated++
	ignore := h.IgnoreTerm
	h.mu.Unlock()
	if !ignore {
		h.Exit(nil)
	}
	return nil
}

func (h *FakeHandle) Kill() error {
	h.mu.Lock()
	h.Killed++
	ignore := h.IgnoreKill
	h.mu.Unlock()
	if !ignore {
		h.Exit(errors.New("signal: killed"))
	}
	return nil
}

func (h *FakeHandle) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-h.done:
		return true
	case <-t.C:
		return false
	}
}

func (h *FakeHandle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ExitCode
}

// Counts returns how often Terminate and Kill were called.
func (h *FakeHandle) Counts() (terminated, killed int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Terminated, h.Killed
}

// FakeDriver records spawns and serves handles from memory. Processes it
// "attaches" are the ones registered with AddProcess.
type FakeDriver struct {
	mu sync.Mutex

	nextPID int
	procs   map[int]*FakeHandle
	args    map[int][]string

	// SpawnErr, when set, fails every Spawn.
	SpawnErr error
	// Configure is applied to each spawned handle.
	Configure func(*FakeHandle)

	Spawned [][]string
}

// NewFakeDriver returns an empty driver whose pids start at 1000.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		nextPID: 1000,
		procs:   make(map[int]*FakeHandle),
		args:    make(map[int][]string),
	}
}

var _ hypervisor.Driver = (*FakeDriver)(nil)

func (d *FakeDriver) Spawn(ctx context.Context, argv []string, _ hypervisor.SpawnOptions) (hypervisor.Handle, error) {
	if len(argv) == 0 {
		return nil, hypervisor.ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.Spawned = append(d.Spawned, slices.Clone(argv))
	if d.SpawnErr != nil {
		return nil, d.SpawnErr
	}
	d.nextPID++
	h := NewFakeHandle(d.nextPID)
	if d.Configure != nil {
		d.Configure(h)
	}
	d.procs[h.pid] = h
	d.args[h.pid] = slices.Clone(argv)
	return h, nil
}

// AddProcess makes a live process with argv visible to Attach and Alive.
func (d *FakeDriver) AddProcess(pid int, argv ...string) *FakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := NewFakeHandle(pid)
	d.procs[pid] = h
	d.args[pid] = argv
	return h
}

// Process returns the handle for pid.
func (d *FakeDriver) Process(pid int) *FakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.procs[pid]
}

// SpawnCount returns the number of Spawn calls.
func (d *FakeDriver) SpawnCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Spawned)
}

func (d *FakeDriver) Attach(pid int) (hypervisor.Handle, error) {
	if pid <= 0 {
		return nil, hypervisor.ErrInvalidPID
	}
	d.mu.Lock()
	h, ok := d.procs[pid]
	d.mu.Unlock()
	if !ok || !h.Alive() {
		return nil, hypervisor.ErrProcessNotFound
	}
	return h, nil
}

func (d *FakeDriver) Alive(pid int) bool {
	d.mu.Lock()
	h, ok := d.procs[pid]
	d.mu.Unlock()
	return ok && h.Alive()
}

func (d *FakeDriver) Args(pid int) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	args, ok := d.args[pid]
	if !ok {
		return nil, hypervisor.ErrProcessNotFound
	}
	return args, nil
}
