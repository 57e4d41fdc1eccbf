package qemu_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/qemumgr/pkg/qemu"
)

func lookPathFor(found ...string) func(string) (string, error) {
	return func(file string) (string, error) {
		for _, f := range found {
			if f == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name      string
		opts      qemu.ProbeOptions
		wantOS    qemu.OSFamily
		wantAccel qemu.Accel
		wantSys   bool
		wantImg   bool
	}{
		{
			name: "linux with kvm",
			opts: qemu.ProbeOptions{
				GOOS:         "linux",
				LookPath:     lookPathFor("qemu-system-x86_64", "qemu-img"),
				KVMAvailable: func() bool { return true },
			},
			wantOS: qemu.OSLinux, wantAccel: qemu.AccelKVM, wantSys: true, wantImg: true,
		},
		{
			name: "linux without kvm",
			opts: qemu.ProbeOptions{
				GOOS:         "linux",
				LookPath:     lookPathFor("qemu-system-x86_64"),
				KVMAvailable: func() bool { return false },
			},
			wantOS: qemu.OSLinux, wantAccel: qemu.AccelTCG, wantSys: true,
		},
		{
			name:   "darwin",
			opts:   qemu.ProbeOptions{GOOS: "darwin", LookPath: lookPathFor()},
			wantOS: qemu.OSDarwin, wantAccel: qemu.AccelHVF,
		},
		{
			name:   "windows",
			opts:   qemu.ProbeOptions{GOOS: "windows", LookPath: lookPathFor("qemu-img")},
			wantOS: qemu.OSWindows, wantAccel: qemu.AccelWHPX, wantImg: true,
		},
		{
			name: "configured accelerator wins",
			opts: qemu.ProbeOptions{
				GOOS:         "linux",
				Accel:        qemu.AccelNone,
				LookPath:     lookPathFor(),
				KVMAvailable: func() bool { return true },
			},
			wantOS: qemu.OSLinux, wantAccel: qemu.AccelNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := qemu.Probe(tt.opts)
			assert.Equal(t, tt.wantOS, info.OS)
			assert.Equal(t, tt.wantAccel, info.Accel)
			assert.Equal(t, tt.wantSys, info.SystemFound)
			assert.Equal(t, tt.wantImg, info.ImgFound)
		})
	}
}

func TestProbeResolvesPaths(t *testing.T) {
	info := qemu.Probe(qemu.ProbeOptions{
		GOOS:     "darwin",
		LookPath: lookPathFor("qemu-system-x86_64", "qemu-img"),
	})
	require.NoError(t, info.Check())
	assert.Equal(t, "/usr/bin/qemu-system-x86_64", info.Host().Binary)
	assert.Equal(t, "/usr/bin/qemu-img", info.ImgBinary)
}

func TestHostInfoCheck(t *testing.T) {
	info := qemu.Probe(qemu.ProbeOptions{GOOS: "darwin", LookPath: lookPathFor("qemu-img")})
	err := info.Check()
	require.ErrorIs(t, err, qemu.ErrBinaryNotFound)
	assert.Contains(t, err.Error(), "qemu-system-x86_64")
}

func TestParseAccel(t *testing.T) {
	a, err := qemu.ParseAccel("")
	require.NoError(t, err)
	assert.Equal(t, qemu.AccelAuto, a)

	a, err = qemu.ParseAccel("whpx")
	require.NoError(t, err)
	assert.Equal(t, qemu.AccelWHPX, a)

	_, err = qemu.ParseAccel("xen")
	assert.Error(t, err)
}
