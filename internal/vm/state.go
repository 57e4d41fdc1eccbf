package vm

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the observed lifecycle state of a VM.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateAdopted
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateAdopted:
		return "adopted"
	default:
		return "unknown"
	}
}

// History is the launch record of one VM. It survives manager restarts.
type History struct {
	// LastBoot is when the VM was last started.
	LastBoot time.Time `json:"last_boot,omitempty"`

	// LastShutdown is when the VM was last seen stopping.
	LastShutdown time.Time `json:"last_shutdown,omitempty"`

	BootCount int `json:"boot_count"`

	// CleanShutdown is false when the last exit was forced or unobserved.
	CleanShutdown bool `json:"clean_shutdown"`

	// ForcedStops counts stops that needed a kill after the grace period.
	ForcedStops int `json:"forced_stops"`

	// LastPID is the pid of the most recent launch.
	LastPID int `json:"last_pid,omitempty"`
}

// HistoryStore keeps one history file per VM under a directory.
type HistoryStore struct {
	dir string
	now func() time.Time
}

// NewHistoryStore creates a history store rooted at dir.
func NewHistoryStore(dir string) *HistoryStore {
	return &HistoryStore{dir: dir, now: time.Now}
}

func (s *HistoryStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Load returns the history of name. A VM that never booted has a zero
// history.
func (s *HistoryStore) Load(name string) (*History, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	var h History
	if _, err := readJSON(s.path(name), &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *HistoryStore) update(name string, fn func(*History)) error {
	h, err := s.Load(name)
	if err != nil {
		return err
	}
	fn(h)
	return writeJSON(s.path(name), h)
}

// RecordBoot notes a new launch with the given pid.
func (s *HistoryStore) RecordBoot(name string, pid int) error {
	return s.update(name, func(h *History) {
		h.LastBoot = s.now()
		h.BootCount++
		h.CleanShutdown = false
		h.LastPID = pid
	})
}

// RecordShutdown notes an exit. forced marks a stop that escalated to a
// kill; clean is false for exits the manager did not initiate.
func (s *HistoryStore) RecordShutdown(name string, clean, forced bool) error {
	return s.update(name, func(h *History) {
		h.LastShutdown = s.now()
		h.CleanShutdown = clean && !forced
		if forced {
			h.ForcedStops++
		}
	})
}

// Remove deletes the history of name.
func (s *HistoryStore) Remove(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove history: %w", err)
	}
	return nil
}

// Dir returns the directory holding history files.
func (s *HistoryStore) Dir() string {
	return s.dir
}
