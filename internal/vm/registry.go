package vm

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/javanstorm/qemumgr/pkg/hypervisor"
)

// RunningVM is the runtime record of a live VM process. It is never
// persisted.
type RunningVM struct {
	Name      string
	Handle    hypervisor.Handle
	StartedAt time.Time

	// LaunchID ties the entry to its launch marker.
	LaunchID string

	// Adopted is true for processes started by an earlier manager.
	Adopted bool
}

// ProcessRegistry maps VM names to their live processes. It holds at most
// one entry per name.
type ProcessRegistry struct {
	mu      sync.RWMutex
	entries map[string]RunningVM
}

// NewProcessRegistry returns an empty registry.
func NewProcessRegistry() *ProcessRegistry {
	return &ProcessRegistry{entries: make(map[string]RunningVM)}
}

// Register records handle as the process of name.
func (r *ProcessRegistry) Register(name string, handle hypervisor.Handle) error {
	return r.Add(RunningVM{Name: name, Handle: handle, StartedAt: time.Now()})
}

// Add records a fully described entry. It fails with ErrAlreadyRunning if
// the name is taken.
func (r *ProcessRegistry) Add(vm RunningVM) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[vm.Name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, vm.Name)
	}
	if vm.StartedAt.IsZero() {
		vm.StartedAt = time.Now()
	}
	r.entries[vm.Name] = vm
	return nil
}

// Unregister removes name. Removing an absent name is a no-op.
func (r *ProcessRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, name)
}

// Get returns the entry for name.
func (r *ProcessRegistry) Get(name string) (RunningVM, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vm, ok := r.entries[name]
	return vm, ok
}

// IsRunning reports whether name has an entry.
func (r *ProcessRegistry) IsRunning(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[name]
	return ok
}

// Len returns the number of entries.
func (r *ProcessRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// AllRunning returns the entries as they are at call time, ordered by name.
// The sequence can be ranged over repeatedly and does not observe later
// changes.
func (r *ProcessRegistry) AllRunning() iter.Seq2[string, RunningVM] {
	r.mu.RLock()
	snapshot := make([]RunningVM, 0, len(r.entries))
	for _, vm := range r.entries {
		snapshot = append(snapshot, vm)
	}
	r.mu.RUnlock()

	slices.SortFunc(snapshot, func(a, b RunningVM) int { return strings.Compare(a.Name, b.Name) })

	return func(yield func(string, RunningVM) bool) {
		for _, vm := range snapshot {
			if !yield(vm.Name, vm) {
				return
			}
		}
	}
}

// Names returns the registered names in order.
func (r *ProcessRegistry) Names() []string {
	var names []string
	for name := range r.AllRunning() {
		names = append(names, name)
	}
	return names
}
