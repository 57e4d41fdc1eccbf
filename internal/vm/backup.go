package vm

import (
	"compress/gzip"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"
)

var (
	ErrBackupExists   = errors.New("vm: backup already exists")
	ErrBackupNotFound = errors.New("vm: backup not found")
	ErrBackupCorrupt  = errors.New("vm: backup checksum mismatch")
)

// Backup is one compressed copy of a VM disk.
type Backup struct {
	Label       string    `json:"label"`
	VMName      string    `json:"vm_name"`
	Description string    `json:"description,omitempty"`
	SourcePath  string    `json:"source_path"`
	CreatedAt   time.Time `json:"created_at"`

	// DiskSize is the uncompressed size in bytes.
	DiskSize int64 `json:"disk_size"`

	// Checksum is the SHA256 of the compressed file.
	Checksum string `json:"checksum"`
}

type backupIndex struct {
	SchemaVersion int      `json:"schema_version"`
	Backups       []Backup `json:"backups"`
}

// BackupManager keeps gzip copies of VM disks under
// <dir>/<vm>/<label>.img.gz with a backups.json index per VM.
type BackupManager struct {
	dir string
	now func() time.Time
}

// NewBackupManager creates a backup manager rooted at dir.
func NewBackupManager(dir string) *BackupManager {
	return &BackupManager{dir: dir, now: time.Now}
}

func (m *BackupManager) vmDir(vmName string) string {
	return filepath.Join(m.dir, vmName)
}

func (m *BackupManager) indexPath(vmName string) string {
	return filepath.Join(m.vmDir(vmName), "backups.json")
}

func (m *BackupManager) backupPath(vmName, label string) string {
	return filepath.Join(m.vmDir(vmName), label+".img.gz")
}

func (m *BackupManager) load(vmName string) (*backupIndex, error) {
	var idx backupIndex
	if _, err := readJSON(m.indexPath(vmName), &idx); err != nil {
		return nil, err
	}
	if idx.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: backup index of %s", ErrUnsupportedSchema, vmName)
	}
	idx.SchemaVersion = SchemaVersion
	return &idx, nil
}

func (m *BackupManager) save(vmName string, idx *backupIndex) error {
	return writeJSON(m.indexPath(vmName), idx)
}

// Create compresses the disk at diskPath into a new backup of vmName. The VM
// must not be running.
func (m *BackupManager) Create(vmName, diskPath, label, description string) (*Backup, error) {
	if err := ValidateName(vmName); err != nil {
		return nil, err
	}
	if ValidateName(label) != nil {
		return nil, &ValidationError{Field: "label", Message: fmt.Sprintf("%q: use letters, digits, '-' and '_'", label)}
	}
	m.CleanupPartial(vmName)

	diskInfo, err := os.Stat(diskPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDiskNotFound, diskPath)
		}
		return nil, fmt.Errorf("stat disk: %w", err)
	}

	idx, err := m.load(vmName)
	if err != nil {
		return nil, err
	}
	if slices.ContainsFunc(idx.Backups, func(b Backup) bool { return b.Label == label }) {
		return nil, fmt.Errorf("%w: %s/%s", ErrBackupExists, vmName, label)
	}

	if err := os.MkdirAll(m.vmDir(vmName), 0755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	path := m.backupPath(vmName, label)
	if err := compressFile(diskPath, path); err != nil {
		return nil, err
	}

	checksum, err := fileChecksum(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("compute checksum: %w", err)
	}

	b := Backup{
		Label:       label,
		VMName:      vmName,
		Description: description,
		SourcePath:  diskPath,
		CreatedAt:   m.now(),
		DiskSize:    diskInfo.Size(),
		Checksum:    checksum,
	}
	idx.Backups = append(idx.Backups, b)
	if err := m.save(vmName, idx); err != nil {
		os.Remove(path)
		return nil, err
	}
	return &b, nil
}

// compressFile gzips src into dst through a temp file.
func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open disk: %w", err)
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("compress disk: %w", err)
	}
	if err := gz.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize compression: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close backup file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize backup: %w", err)
	}
	return nil
}

// List returns the backups of vmName, oldest first.
func (m *BackupManager) List(vmName string) ([]Backup, error) {
	idx, err := m.load(vmName)
	if err != nil {
		return nil, err
	}
	return idx.Backups, nil
}

// Get returns one backup.
func (m *BackupManager) Get(vmName, label string) (*Backup, error) {
	idx, err := m.load(vmName)
	if err != nil {
		return nil, err
	}
	i := slices.IndexFunc(idx.Backups, func(b Backup) bool { return b.Label == label })
	if i < 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrBackupNotFound, vmName, label)
	}
	return &idx.Backups[i], nil
}

// Restore overwrites the backed-up disk with the backup contents after
// verifying its checksum. The VM must not be running.
func (m *BackupManager) Restore(vmName, label string) error {
	m.CleanupPartial(vmName)

	b, err := m.Get(vmName, label)
	if err != nil {
		return err
	}
	if err := m.Verify(vmName, label); err != nil {
		return err
	}

	in, err := os.Open(m.backupPath(vmName, label))
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	tmp := b.SourcePath + ".restoring"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp disk: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, gz); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("decompress backup: %w", err)
	}
	out.Close()

	if err := os.Rename(tmp, b.SourcePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace disk: %w", err)
	}
	return nil
}

// Delete removes a backup and its index entry.
func (m *BackupManager) Delete(vmName, label string) error {
	idx, err := m.load(vmName)
	if err != nil {
		return err
	}
	n := len(idx.Backups)
	idx.Backups = slices.DeleteFunc(idx.Backups, func(b Backup) bool { return b.Label == label })
	if len(idx.Backups) == n {
		return fmt.Errorf("%w: %s/%s", ErrBackupNotFound, vmName, label)
	}

	if err := os.Remove(m.backupPath(vmName, label)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete backup file: %w", err)
	}
	return m.save(vmName, idx)
}

// Verify checks the backup file against its recorded checksum.
func (m *BackupManager) Verify(vmName, label string) error {
	b, err := m.Get(vmName, label)
	if err != nil {
		return err
	}
	sum, err := fileChecksum(m.backupPath(vmName, label))
	if err != nil {
		return fmt.Errorf("compute checksum: %w", err)
	}
	if sum != b.Checksum {
		return fmt.Errorf("%w: %s/%s", ErrBackupCorrupt, vmName, label)
	}
	return nil
}

// Prune deletes backups of vmName created before cutoff and returns how
// many were removed.
func (m *BackupManager) Prune(vmName string, cutoff time.Time) (int, error) {
	backups, err := m.List(vmName)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, b := range backups {
		if !b.CreatedAt.Before(cutoff) {
			continue
		}
		if err := m.Delete(vmName, b.Label); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// CleanupPartial removes leftovers of interrupted creates and restores.
func (m *BackupManager) CleanupPartial(vmName string) {
	tmps, _ := filepath.Glob(filepath.Join(m.vmDir(vmName), "*.tmp"))
	for _, f := range tmps {
		os.Remove(f)
	}

	idx, err := m.load(vmName)
	if err != nil {
		return
	}
	for _, b := range idx.Backups {
		os.Remove(b.SourcePath + ".restoring")
	}
}

// fileChecksum returns the hex SHA256 of the file at path.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
