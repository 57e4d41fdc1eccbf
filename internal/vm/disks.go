package vm

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// DiskFormat is a disk image format understood by qemu-img.
type DiskFormat string

const (
	DiskQCOW2 DiskFormat = "qcow2"
	DiskRaw   DiskFormat = "raw"
	DiskVDI   DiskFormat = "vdi"
	DiskVMDK  DiskFormat = "vmdk"
)

// DiskFormats lists the accepted formats.
var DiskFormats = []DiskFormat{DiskQCOW2, DiskRaw, DiskVDI, DiskVMDK}

// Valid reports whether f is one of DiskFormats.
func (f DiskFormat) Valid() bool {
	return slices.Contains(DiskFormats, f)
}

// VirtualDisk is a disk image known to the manager.
type VirtualDisk struct {
	Name      string     `json:"name" yaml:"name"`
	Path      string     `json:"path" yaml:"path"`
	SizeGB    int        `json:"size_gb" yaml:"size_gb"`
	Format    DiskFormat `json:"format" yaml:"format"`
	Location  string     `json:"location" yaml:"location"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
}

type disksFile struct {
	SchemaVersion int                    `json:"schema_version"`
	Disks         map[string]VirtualDisk `json:"disks"`
}

// DiskStore is a JSON file of disk records keyed by absolute path.
type DiskStore struct {
	mu   sync.Mutex
	path string
}

// NewDiskStore returns a disk store backed by path.
func NewDiskStore(path string) *DiskStore {
	return &DiskStore{path: path}
}

func (s *DiskStore) load() (*disksFile, error) {
	var f disksFile
	ok, err := readJSON(s.path, &f)
	if err != nil {
		return nil, err
	}
	if ok && f.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: %s has version %d, newest supported is %d",
			ErrUnsupportedSchema, s.path, f.SchemaVersion, SchemaVersion)
	}
	if f.Disks == nil {
		f.Disks = map[string]VirtualDisk{}
	}
	f.SchemaVersion = SchemaVersion
	return &f, nil
}

// Get returns the record for path, or ErrDiskNotFound.
func (s *DiskStore) Get(path string) (*VirtualDisk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	d, ok := f.Disks[filepath.Clean(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDiskNotFound, path)
	}
	return &d, nil
}

// GetAll returns every record ordered by path.
func (s *DiskStore) GetAll() ([]VirtualDisk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	disks := make([]VirtualDisk, 0, len(f.Disks))
	for _, d := range f.Disks {
		disks = append(disks, d)
	}
	slices.SortFunc(disks, func(a, b VirtualDisk) int { return strings.Compare(a.Path, b.Path) })
	return disks, nil
}

// Put stores d, filling in derived fields.
func (s *DiskStore) Put(d VirtualDisk) error {
	if d.Path == "" {
		return &ValidationError{Field: "path", Message: "must not be empty"}
	}
	d.Path = filepath.Clean(d.Path)
	if d.Name == "" {
		d.Name = filepath.Base(d.Path)
	}
	if d.Location == "" {
		d.Location = filepath.Dir(d.Path)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	f.Disks[d.Path] = d
	return writeJSON(s.path, f)
}

// Delete removes the record for path. It never touches the image.
func (s *DiskStore) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	key := filepath.Clean(path)
	if _, ok := f.Disks[key]; !ok {
		return fmt.Errorf("%w: %s", ErrDiskNotFound, path)
	}
	delete(f.Disks, key)
	return writeJSON(s.path, f)
}
