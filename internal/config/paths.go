// Package config provides configuration management for qemumgr.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds platform-specific directory paths for qemumgr.
type Paths struct {
	// ConfigDir is the directory for configuration files.
	// macOS: ~/Library/Application Support/qemumgr
	// Linux: ~/.config/qemumgr (or XDG_CONFIG_HOME)
	ConfigDir string

	// DataDir holds VM and disk metadata.
	// All platforms: ~/.qemumgr, or QEMUMGR_DATA_DIR when set.
	DataDir string

	// RunDir holds launch markers, pid files and QMP sockets of live VMs.
	RunDir string

	// LogDir holds per-VM emulator output.
	LogDir string

	// StateDir holds per-VM launch history.
	StateDir string

	// BackupDir holds compressed disk backups, one subdirectory per VM.
	BackupDir string

	// ConfigFile is the path to the main config file.
	ConfigFile string

	// VMsFile is the VM metadata store.
	VMsFile string

	// DisksFile is the disk metadata store.
	DisksFile string
}

// GetPaths returns platform-aware paths for qemumgr.
func GetPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	p := &Paths{}

	if dir := os.Getenv("QEMUMGR_DATA_DIR"); dir != "" {
		p.DataDir = dir
	} else {
		p.DataDir = filepath.Join(home, ".qemumgr")
	}

	switch runtime.GOOS {
	case "darwin":
		p.ConfigDir = filepath.Join(home, "Library", "Application Support", "qemumgr")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			p.ConfigDir = filepath.Join(xdgConfig, "qemumgr")
		} else {
			p.ConfigDir = filepath.Join(home, ".config", "qemumgr")
		}
	}

	p.ConfigFile = filepath.Join(p.DataDir, "config.yaml")
	p.RunDir = filepath.Join(p.DataDir, "run")
	p.LogDir = filepath.Join(p.DataDir, "logs")
	p.StateDir = filepath.Join(p.DataDir, "state")
	p.BackupDir = filepath.Join(p.DataDir, "backups")
	p.VMsFile = filepath.Join(p.DataDir, "vms.json")
	p.DisksFile = filepath.Join(p.DataDir, "disks.json")

	return p, nil
}

// EnsureDirectories creates the directories qemumgr writes to.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.ConfigDir, p.DataDir, p.RunDir, p.LogDir, p.StateDir, p.BackupDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
