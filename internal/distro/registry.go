package distro

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

var (
	registry     = make(map[ID]Distro)
	registryLock sync.RWMutex
)

// Register adds a distro to the registry, replacing one with the same ID.
func Register(d Distro) {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry[d.ID] = d
}

// Get returns a distro by ID.
func Get(id ID) (Distro, error) {
	registryLock.RLock()
	defer registryLock.RUnlock()

	d, ok := registry[id]
	if !ok {
		return Distro{}, &ErrUnknownDistro{ID: id}
	}
	return d, nil
}

// List returns all registered IDs in sorted order.
func List() []ID {
	registryLock.RLock()
	defer registryLock.RUnlock()

	ids := make([]ID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ListDistros returns all registered distros sorted by ID.
func ListDistros() []Distro {
	registryLock.RLock()
	defer registryLock.RUnlock()

	out := make([]Distro, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Distro) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// ErrUnknownDistro is returned when a distribution ID is not found.
type ErrUnknownDistro struct {
	ID ID
}

func (e *ErrUnknownDistro) Error() string {
	return fmt.Sprintf("unknown distribution %q, available: %v", e.ID, List())
}
