package vm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Marker records a launched VM on disk so that a later manager can find it
// without guessing from process command lines.
type Marker struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	LaunchID  string    `json:"launch_id"`
	Binary    string    `json:"binary"`
	StartedAt time.Time `json:"started_at"`
}

// NewLaunchID returns a unique id for one launch.
func NewLaunchID() string {
	return uuid.NewString()
}

// MarkerStore keeps one marker file per running VM in a directory.
type MarkerStore struct {
	dir    string
	logger zerolog.Logger
}

// NewMarkerStore returns a store rooted at dir.
func NewMarkerStore(dir string, logger zerolog.Logger) *MarkerStore {
	return &MarkerStore{dir: dir, logger: logger}
}

// Dir returns the marker directory.
func (m *MarkerStore) Dir() string {
	return m.dir
}

func (m *MarkerStore) markerPath(name string) string {
	return filepath.Join(m.dir, name+".json")
}

// PIDFile is where QEMU writes its own pid for name.
func (m *MarkerStore) PIDFile(name string) string {
	return filepath.Join(m.dir, name+".pid")
}

// QMPSocket is the QMP socket path for name.
func (m *MarkerStore) QMPSocket(name string) string {
	return filepath.Join(m.dir, name+".qmp")
}

// Write stores mk, replacing any previous marker for the same name.
func (m *MarkerStore) Write(mk Marker) error {
	if err := ValidateName(mk.Name); err != nil {
		return err
	}
	if err := writeJSON(m.markerPath(mk.Name), mk); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

// Read returns the marker for name, or ErrNotFound.
func (m *MarkerStore) Read(name string) (*Marker, error) {
	var mk Marker
	ok, err := readJSON(m.markerPath(name), &mk)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: marker %s", ErrNotFound, name)
	}
	return &mk, nil
}

// Remove deletes every runtime file of name. Missing files are ignored.
func (m *MarkerStore) Remove(name string) error {
	var errs []error
	for _, path := range []string{m.markerPath(name), m.PIDFile(name), m.QMPSocket(name)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// List returns all readable markers ordered by name. Corrupt markers are
// logged and skipped.
func (m *MarkerStore) List() ([]Marker, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read marker dir: %w", err)
	}

	var markers []Marker
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		mk, err := m.Read(name)
		if err != nil {
			m.logger.Warn().Err(err).Str("file", e.Name()).Msg("skipping unreadable launch marker")
			continue
		}
		if mk.Name != name || mk.PID <= 0 {
			m.logger.Warn().Str("file", e.Name()).Msg("skipping inconsistent launch marker")
			continue
		}
		markers = append(markers, *mk)
	}

	slices.SortFunc(markers, func(a, b Marker) int { return strings.Compare(a.Name, b.Name) })
	return markers, nil
}
