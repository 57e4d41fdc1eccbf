package vm

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/copier"

	"github.com/javanstorm/qemumgr/pkg/qemu"
)

// SchemaVersion is the metadata layout written by this version.
// Version 0 is the unversioned object keyed by VM name.
const SchemaVersion = 1

// MetadataStore is the VM metadata the lifecycle service reads.
type MetadataStore interface {
	Get(name string) (*VMSpec, error)
	GetAll() ([]VMSpec, error)
	Put(spec VMSpec) error
	Delete(name string) error
}

// vmsFile is the on-disk layout of the VM store.
type vmsFile struct {
	SchemaVersion int               `json:"schema_version"`
	VMs           map[string]VMSpec `json:"vms"`
}

// legacyVM is a record from the unversioned layout.
type legacyVM struct {
	Name         string `json:"name"`
	Disk         string `json:"disk"`
	ISO          string `json:"iso"`
	CPUs         int    `json:"cpus"`
	RAM          int    `json:"ram"`
	OS           string `json:"os"`
	AutoDetected bool   `json:"auto_detected"`
}

// Store is a JSON file of VM specs keyed by name.
type Store struct {
	mu     sync.Mutex
	path   string
	limits Limits
	now    func() time.Time
}

var _ MetadataStore = (*Store)(nil)

// NewStore returns a store backed by path. Specs are validated against
// limits on Put.
func NewStore(path string, limits Limits) *Store {
	return &Store{path: path, limits: limits, now: time.Now}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() (*vmsFile, error) {
	var raw map[string]json.RawMessage
	ok, err := readJSON(s.path, &raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &vmsFile{SchemaVersion: SchemaVersion, VMs: map[string]VMSpec{}}, nil
	}

	if _, versioned := raw["schema_version"]; !versioned {
		f, err := migrateLegacy(raw)
		if err != nil {
			return nil, err
		}
		if err := s.save(f); err != nil {
			return nil, fmt.Errorf("write migrated store: %w", err)
		}
		return f, nil
	}

	var f vmsFile
	if _, err := readJSON(s.path, &f); err != nil {
		return nil, err
	}
	if f.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: %s has version %d, newest supported is %d",
			ErrUnsupportedSchema, s.path, f.SchemaVersion, SchemaVersion)
	}
	if f.VMs == nil {
		f.VMs = map[string]VMSpec{}
	}
	f.SchemaVersion = SchemaVersion
	return &f, nil
}

// migrateLegacy converts the unversioned layout into the current one.
func migrateLegacy(raw map[string]json.RawMessage) (*vmsFile, error) {
	f := &vmsFile{SchemaVersion: SchemaVersion, VMs: make(map[string]VMSpec, len(raw))}
	defaults := DefaultDefaults()

	for key, data := range raw {
		var old legacyVM
		if err := json.Unmarshal(data, &old); err != nil {
			return nil, fmt.Errorf("parse legacy VM %q: %w", key, err)
		}
		if old.Name == "" {
			old.Name = key
		}

		spec := VMSpec{
			Name:         old.Name,
			DiskPath:     old.Disk,
			ISOPath:      old.ISO,
			CPUCores:     old.CPUs,
			RAMMegabytes: old.RAM,
			OSHint:       old.OS,
			VideoAdapter: defaults.VGA,
			BootOrder:    qemu.BootDiskFirst,
			AutoDetected: old.AutoDetected,
		}
		if spec.CPUCores == 0 {
			spec.CPUCores = defaults.CPUs
		}
		if spec.RAMMegabytes == 0 {
			spec.RAMMegabytes = defaults.MemoryMB
		}
		f.VMs[spec.Name] = spec
	}

	return f, nil
}

func (s *Store) save(f *vmsFile) error {
	f.SchemaVersion = SchemaVersion
	return writeJSON(s.path, f)
}

// clone deep-copies a spec so callers never share pointers with the store.
func clone(spec VMSpec) (*VMSpec, error) {
	out := &VMSpec{}
	if err := copier.CopyWithOption(out, &spec, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("copy spec: %w", err)
	}
	return out, nil
}

// Get returns the spec for name, or ErrNotFound.
func (s *Store) Get(name string) (*VMSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	spec, ok := f.VMs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return clone(spec)
}

// GetAll returns every spec ordered by name.
func (s *Store) GetAll() ([]VMSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}

	specs := make([]VMSpec, 0, len(f.VMs))
	for _, spec := range f.VMs {
		c, err := clone(spec)
		if err != nil {
			return nil, err
		}
		specs = append(specs, *c)
	}
	slices.SortFunc(specs, func(a, b VMSpec) int { return strings.Compare(a.Name, b.Name) })
	return specs, nil
}

// Put validates and stores spec, replacing any spec with the same name.
func (s *Store) Put(spec VMSpec) error {
	return s.put(spec, false)
}

// Create stores spec only if no spec with its name exists.
func (s *Store) Create(spec VMSpec) error {
	return s.put(spec, true)
}

func (s *Store) put(spec VMSpec, create bool) error {
	if err := spec.Validate(s.limits); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}

	now := s.now()
	old, exists := f.VMs[spec.Name]
	if exists && create {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, spec.Name)
	}
	if exists && !old.CreatedAt.IsZero() {
		spec.CreatedAt = old.CreatedAt
	} else if spec.CreatedAt.IsZero() {
		spec.CreatedAt = now
	}
	spec.UpdatedAt = now

	f.VMs[spec.Name] = spec
	return s.save(f)
}

// Delete removes the spec for name. The disk image is left alone.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := f.VMs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(f.VMs, name)
	return s.save(f)
}
