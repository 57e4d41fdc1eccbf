package vm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/qemumgr/internal/testutil"
	"github.com/javanstorm/qemumgr/pkg/qemu"
)

func TestScanForImages(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	testutil.CreateTestDisk(t, filepath.Join(root, "debian 12.qcow2"), 1)
	testutil.CreateTestDisk(t, filepath.Join(root, "nested", "deep", "arch.qcow2"), 1)
	testutil.CreateTestDisk(t, filepath.Join(root, "ignored.raw"), 1)
	testutil.CreateTestDisk(t, filepath.Join(other, "arch.qcow2"), 1)
	testutil.CreateTestDisk(t, filepath.Join(other, "Win10_x64.qcow2"), 1)
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir.qcow2"), 0755))

	specs := ScanForImages([]string{root, other, filepath.Join(root, "missing")}, DefaultDefaults())
	require.Len(t, specs, 4)

	byName := map[string]VMSpec{}
	for _, s := range specs {
		byName[s.Name] = s
		assert.True(t, s.AutoDetected)
		assert.Equal(t, 2, s.CPUCores)
		assert.Equal(t, 1024, s.RAMMegabytes)
		assert.Equal(t, qemu.VideoQXL, s.VideoAdapter)
		assert.Equal(t, qemu.BootDiskFirst, s.BootOrder)
		assert.NoError(t, s.Validate(DefaultLimits()))
	}

	assert.Equal(t, filepath.Join(root, "debian 12.qcow2"), byName["debian-12"].DiskPath)
	assert.Equal(t, filepath.Join(root, "nested", "deep", "arch.qcow2"), byName["arch"].DiskPath)
	assert.Equal(t, filepath.Join(other, "arch.qcow2"), byName["arch-2"].DiskPath)

	assert.Equal(t, "Linux", byName["debian-12"].OSHint)
	assert.Equal(t, "Windows", byName["Win10_x64"].OSHint)
}

func TestScanOverlappingRoots(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTestDisk(t, filepath.Join(root, "sub", "once.qcow2"), 1)

	specs := ScanForImages([]string{root, filepath.Join(root, "sub")}, DefaultDefaults())
	assert.Len(t, specs, 1)
}

func TestFindFilesPatterns(t *testing.T) {
	root := t.TempDir()
	testutil.CreateTestDisk(t, filepath.Join(root, "a.iso"), 1)
	testutil.CreateTestDisk(t, filepath.Join(root, "b.img"), 1)
	testutil.CreateTestDisk(t, filepath.Join(root, "c.txt"), 1)

	found := FindFiles([]string{root}, "*.iso", "*.img")
	assert.ElementsMatch(t, []string{filepath.Join(root, "a.iso"), filepath.Join(root, "b.img")}, found)
}

func TestNewImports(t *testing.T) {
	existing := []VMSpec{
		{Name: "debian", DiskPath: "/vms/debian.qcow2"},
		{Name: "renamed", DiskPath: "/vms/arch.qcow2"},
	}
	scanned := []VMSpec{
		{Name: "debian", DiskPath: "/other/debian.qcow2"},
		{Name: "arch", DiskPath: "/vms/arch.qcow2"},
		{Name: "fresh", DiskPath: "/vms/fresh.qcow2"},
	}

	got := NewImports(scanned, existing)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].Name)
}
