package vm

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/qemumgr/internal/testutil"
	"github.com/javanstorm/qemumgr/pkg/qemu"
)

func TestStoreCRUD(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "vms.json"), DefaultLimits())

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	spec := NewSpec("debian-test", DefaultDefaults())
	spec.DiskPath = "/vms/debian.qcow2"
	require.NoError(t, s.Create(spec))
	assert.ErrorIs(t, s.Create(spec), ErrAlreadyExists)

	got, err := s.Get("debian-test")
	require.NoError(t, err)
	assert.Equal(t, "/vms/debian.qcow2", got.DiskPath)
	assert.False(t, got.CreatedAt.IsZero())
	created := got.CreatedAt

	got.RAMMegabytes = 4096
	require.NoError(t, s.Put(*got))
	got, err = s.Get("debian-test")
	require.NoError(t, err)
	assert.Equal(t, 4096, got.RAMMegabytes)
	assert.True(t, got.CreatedAt.Equal(created), "CreatedAt must survive updates")

	require.NoError(t, s.Delete("debian-test"))
	assert.ErrorIs(t, s.Delete("debian-test"), ErrNotFound)
}

func TestStorePutValidates(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "vms.json"), DefaultLimits())

	spec := NewSpec("vm; rm -rf /", DefaultDefaults())
	assert.ErrorIs(t, s.Put(spec), ErrValidation)

	all, err := s.GetAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStoreGetAllSorted(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "vms.json"), DefaultLimits())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, s.Put(NewSpec(name, DefaultDefaults())))
	}

	all, err := s.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "mid", all[1].Name)
	assert.Equal(t, "zeta", all[2].Name)
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "vms.json"), DefaultLimits())
	spec := NewSpec("copied", DefaultDefaults())
	spec.USB = &qemu.USBConfig{Ports: 4}
	require.NoError(t, s.Put(spec))

	a, err := s.Get("copied")
	require.NoError(t, err)
	a.USB.Ports = 16

	b, err := s.Get("copied")
	require.NoError(t, err)
	assert.Equal(t, 4, b.USB.Ports)
}

func TestStoreWritesSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vms.json")
	s := NewStore(path, DefaultLimits())
	require.NoError(t, s.Put(NewSpec("versioned", DefaultDefaults())))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw struct {
		SchemaVersion int                        `json:"schema_version"`
		VMs           map[string]json.RawMessage `json:"vms"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, SchemaVersion, raw.SchemaVersion)
	assert.Contains(t, raw.VMs, "versioned")
}

func TestStoreMigratesLegacy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vms.json")
	testutil.WriteJSON(t, path, map[string]any{
		"debian-test": map[string]any{
			"name": "debian-test", "disk": "/vms/debian.qcow2", "iso": "",
			"cpus": 4, "ram": 2048, "os": "Linux", "status": "stopped",
		},
		"found": map[string]any{
			"name": "found", "disk": "/vms/found.qcow2", "auto_detected": true,
		},
	})

	s := NewStore(path, DefaultLimits())
	got, err := s.Get("debian-test")
	require.NoError(t, err)
	assert.Equal(t, "/vms/debian.qcow2", got.DiskPath)

	// The first read already rewrites the file as the current schema.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"schema_version": 1`)
	assert.Contains(t, string(data), `"vms"`)

	assert.Equal(t, 4, got.CPUCores)
	assert.Equal(t, 2048, got.RAMMegabytes)
	assert.Equal(t, "Linux", got.OSHint)
	assert.Equal(t, qemu.VideoQXL, got.VideoAdapter)
	assert.Equal(t, qemu.BootDiskFirst, got.BootOrder)

	found, err := s.Get("found")
	require.NoError(t, err)
	assert.True(t, found.AutoDetected)
	assert.Equal(t, 2, found.CPUCores)
	assert.Equal(t, 1024, found.RAMMegabytes)

	require.NoError(t, s.Put(*found))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"schema_version": 1`)
}

func TestStoreRefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vms.json")
	testutil.WriteJSON(t, path, map[string]any{"schema_version": SchemaVersion + 1, "vms": map[string]any{}})

	s := NewStore(path, DefaultLimits())
	_, err := s.GetAll()
	assert.ErrorIs(t, err, ErrUnsupportedSchema)
	assert.ErrorIs(t, s.Put(NewSpec("x", DefaultDefaults())), ErrUnsupportedSchema)
}

func TestStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vms.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewStore(path, DefaultLimits()).GetAll()
	assert.Error(t, err)
}

func TestStoreTimestamps(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "vms.json"), DefaultLimits())
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return t0 }
	require.NoError(t, s.Put(NewSpec("clock", DefaultDefaults())))

	t1 := t0.Add(time.Hour)
	s.now = func() time.Time { return t1 }
	require.NoError(t, s.Put(NewSpec("clock", DefaultDefaults())))

	got, err := s.Get("clock")
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(t0))
	assert.True(t, got.UpdatedAt.Equal(t1))
}

func TestDiskStore(t *testing.T) {
	ds := NewDiskStore(filepath.Join(t.TempDir(), "disks.json"))

	require.NoError(t, ds.Put(VirtualDisk{Path: "/vms/b.qcow2", SizeGB: 20, Format: DiskQCOW2}))
	require.NoError(t, ds.Put(VirtualDisk{Path: "/vms/a.raw", SizeGB: 5, Format: DiskRaw}))

	d, err := ds.Get("/vms/../vms/b.qcow2")
	require.NoError(t, err)
	assert.Equal(t, "b.qcow2", d.Name)
	assert.Equal(t, "/vms", d.Location)

	all, err := ds.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "/vms/a.raw", all[0].Path)

	require.NoError(t, ds.Delete("/vms/a.raw"))
	assert.ErrorIs(t, ds.Delete("/vms/a.raw"), ErrDiskNotFound)
	_, err = ds.Get("/vms/a.raw")
	assert.ErrorIs(t, err, ErrDiskNotFound)
}
