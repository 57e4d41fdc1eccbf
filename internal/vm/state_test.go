package vm

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  string
	}{
		{"stopped", StateStopped, "stopped"},
		{"running", StateRunning, "running"},
		{"adopted", StateAdopted, "adopted"},
		{"unknown/invalid", State(99), "unknown"},
		{"negative", State(-1), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.state.String()
			if got != tt.want {
				t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
			}
		})
	}
}

func TestHistoryLoadNeverBooted(t *testing.T) {
	hs := NewHistoryStore(t.TempDir())

	h, err := hs.Load("fresh")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if h.BootCount != 0 {
		t.Errorf("initial boot count = %d, want 0", h.BootCount)
	}
	if !h.LastBoot.IsZero() {
		t.Error("initial LastBoot should be zero")
	}
}

func TestHistoryBootAndShutdown(t *testing.T) {
	hs := NewHistoryStore(t.TempDir())

	if err := hs.RecordBoot("debian-test", 4242); err != nil {
		t.Fatalf("RecordBoot failed: %v", err)
	}
	h, err := hs.Load("debian-test")
	if err != nil {
		t.Fatalf("Load after boot failed: %v", err)
	}
	if h.BootCount != 1 || h.LastPID != 4242 {
		t.Errorf("after boot: count=%d pid=%d, want 1 and 4242", h.BootCount, h.LastPID)
	}
	if h.CleanShutdown {
		t.Error("CleanShutdown should be false after boot")
	}

	if err := hs.RecordShutdown("debian-test", true, false); err != nil {
		t.Fatalf("RecordShutdown failed: %v", err)
	}
	h, err = hs.Load("debian-test")
	if err != nil {
		t.Fatalf("Load after shutdown failed: %v", err)
	}
	if !h.CleanShutdown {
		t.Error("shutdown should be marked clean")
	}
	if h.LastShutdown.IsZero() {
		t.Error("LastShutdown should be set")
	}
}

func TestHistoryForcedShutdown(t *testing.T) {
	hs := NewHistoryStore(t.TempDir())

	for range 2 {
		if err := hs.RecordBoot("stubborn", 1); err != nil {
			t.Fatalf("RecordBoot failed: %v", err)
		}
		if err := hs.RecordShutdown("stubborn", true, true); err != nil {
			t.Fatalf("RecordShutdown failed: %v", err)
		}
	}

	h, err := hs.Load("stubborn")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if h.CleanShutdown {
		t.Error("forced stop must not count as clean")
	}
	if h.ForcedStops != 2 {
		t.Errorf("ForcedStops = %d, want 2", h.ForcedStops)
	}
	if h.BootCount != 2 {
		t.Errorf("BootCount = %d, want 2", h.BootCount)
	}
}

func TestHistoryTimestamps(t *testing.T) {
	hs := NewHistoryStore(t.TempDir())
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	hs.now = func() time.Time { return fixed }

	if err := hs.RecordBoot("clock", 7); err != nil {
		t.Fatalf("RecordBoot failed: %v", err)
	}
	h, err := hs.Load("clock")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !h.LastBoot.Equal(fixed) {
		t.Errorf("LastBoot = %v, want %v", h.LastBoot, fixed)
	}
}

func TestHistoryAtomicWriteAndRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	hs := NewHistoryStore(dir)

	if err := hs.RecordBoot("atomic", 1); err != nil {
		t.Fatalf("RecordBoot failed: %v", err)
	}

	path := filepath.Join(dir, "atomic.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("history file should exist: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not exist after successful write")
	}

	if err := hs.Remove("atomic"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("history file should be gone")
	}
	if err := hs.Remove("atomic"); err != nil {
		t.Errorf("second Remove should be a no-op, got %v", err)
	}
}

func TestHistoryRejectsBadName(t *testing.T) {
	hs := NewHistoryStore(t.TempDir())

	_, err := hs.Load("../escape")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Load(../escape) error = %v, want ErrValidation", err)
	}
}
