package qemu_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/qemumgr/pkg/qemu"
)

var linuxHost = qemu.Host{
	OS:     qemu.OSLinux,
	Binary: "qemu-system-x86_64",
	Accel:  qemu.AccelKVM,
}

func debianConfig() qemu.MachineConfig {
	return qemu.MachineConfig{
		Name:      "debian-test",
		MemoryMB:  2048,
		CPUs:      2,
		DiskPath:  "/vm/debian.qcow2",
		VGA:       qemu.VideoVirtio,
		BootOrder: qemu.BootDiskFirst,
	}
}

// flagValue returns the token following flag in argv.
func flagValue(t *testing.T, argv []string, flag string) string {
	t.Helper()
	i := slices.Index(argv, flag)
	require.NotEqual(t, -1, i, "flag %s missing from %v", flag, argv)
	require.Less(t, i+1, len(argv), "flag %s has no value", flag)
	return argv[i+1]
}

func TestBuildCommandDebian(t *testing.T) {
	argv, err := qemu.BuildCommand(debianConfig(), linuxHost).Argv()
	require.NoError(t, err)

	assert.Equal(t, "qemu-system-x86_64", argv[0])
	assert.Equal(t, "debian-test", flagValue(t, argv, "-name"))
	assert.Equal(t, "2048", flagValue(t, argv, "-m"))
	assert.Equal(t, "cores=2", flagValue(t, argv, "-smp"))
	assert.Equal(t, "/vm/debian.qcow2", flagValue(t, argv, "-hda"))
	assert.Equal(t, "order=c,d,menu=on,splash-time=5000", flagValue(t, argv, "-boot"))
	assert.Equal(t, "virtio", flagValue(t, argv, "-vga"))
	assert.Equal(t, "kvm", flagValue(t, argv, "-accel"))
	assert.Equal(t, "gtk,grab-on-hover=on", flagValue(t, argv, "-display"))
	assert.NotContains(t, argv, "-cdrom")
}

func TestBuildCommandFullOrder(t *testing.T) {
	cfg := debianConfig()
	cfg.ISOPath = "/iso/debian 12.iso"
	cfg.BootOrder = qemu.BootOpticalFirst
	cfg.Video = &qemu.VideoConfig{GLAcceleration: true, VirGL: true}
	cfg.Audio = &qemu.AudioConfig{Enabled: true, Driver: "pulseaudio", Model: "hda"}
	cfg.USB = &qemu.USBConfig{Ports: 2}

	argv, err := qemu.BuildCommand(cfg, linuxHost).Argv()
	require.NoError(t, err)

	want := []string{
		"qemu-system-x86_64",
		"-name", "debian-test",
		"-m", "2048",
		"-smp", "cores=2",
		"-cdrom", "/iso/debian 12.iso",
		"-hda", "/vm/debian.qcow2",
		"-boot", "order=d,c,menu=on,splash-time=5000",
		"-usb",
		"-device", "usb-kbd",
		"-device", "usb-mouse",
		"-vga", "virtio",
		"-accel", "kvm",
		"-display", "gtk,grab-on-hover=on",
		"-enable-kvm",
		"-device", "virtio-gpu-gl",
		"-audiodev", "pulseaudio,id=audio0",
		"-device", "hda,audiodev=audio0",
		"-net", "nic,model=virtio",
		"-net", "user",
		"-device", "usb-ehci,id=ehci",
		"-device", "usb-port,bus=ehci.0,nr=1",
		"-device", "usb-port,bus=ehci.0,nr=2",
	}
	assert.Equal(t, want, argv)
}

func TestBuildCommandDeterministic(t *testing.T) {
	cfg := debianConfig()
	cfg.Audio = &qemu.AudioConfig{Enabled: true, Driver: "alsa", Model: "ac97"}

	first, err := qemu.BuildCommand(cfg, linuxHost).Argv()
	require.NoError(t, err)
	for range 10 {
		again, err := qemu.BuildCommand(cfg, linuxHost).Argv()
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestBuildCommandOptionalMedia(t *testing.T) {
	tests := []struct {
		name      string
		disk      string
		iso       string
		wantHDA   bool
		wantCDROM bool
	}{
		{name: "none"},
		{name: "disk only", disk: "/d.qcow2", wantHDA: true},
		{name: "iso only", iso: "/i.iso", wantCDROM: true},
		{name: "both", disk: "/d.qcow2", iso: "/i.iso", wantHDA: true, wantCDROM: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := debianConfig()
			cfg.DiskPath = tt.disk
			cfg.ISOPath = tt.iso

			argv, err := qemu.BuildCommand(cfg, linuxHost).Argv()
			require.NoError(t, err)
			assert.Equal(t, tt.wantHDA, slices.Contains(argv, "-hda"))
			assert.Equal(t, tt.wantCDROM, slices.Contains(argv, "-cdrom"))
		})
	}
}

func TestBuildCommandPlatforms(t *testing.T) {
	tests := []struct {
		host        qemu.Host
		wantAccel   string
		wantDisplay string
	}{
		{qemu.Host{OS: qemu.OSLinux, Accel: qemu.AccelKVM}, "kvm", "gtk,grab-on-hover=on"},
		{qemu.Host{OS: qemu.OSDarwin, Accel: qemu.AccelHVF}, "hvf", "cocoa"},
		{qemu.Host{OS: qemu.OSWindows, Accel: qemu.AccelWHPX}, "whpx", "sdl"},
		{qemu.Host{OS: qemu.OSLinux, Accel: qemu.AccelTCG, Display: "none"}, "tcg", "none"},
	}

	for _, tt := range tests {
		t.Run(string(tt.host.OS)+"/"+string(tt.host.Accel), func(t *testing.T) {
			argv, err := qemu.BuildCommand(debianConfig(), tt.host).Argv()
			require.NoError(t, err)
			assert.Equal(t, qemu.DefaultSystemBinary, argv[0])
			assert.Equal(t, tt.wantAccel, flagValue(t, argv, "-accel"))
			assert.Equal(t, tt.wantDisplay, flagValue(t, argv, "-display"))
		})
	}

	t.Run("no accelerator", func(t *testing.T) {
		argv, err := qemu.BuildCommand(debianConfig(), qemu.Host{OS: qemu.OSLinux, Accel: qemu.AccelNone}).Argv()
		require.NoError(t, err)
		assert.NotContains(t, argv, "-accel")
	})
}

func TestBuildCommandMonitorAndPIDFile(t *testing.T) {
	cfg := debianConfig()
	cfg.QMPSocket = "/run/qemumgr/debian-test.qmp"
	cfg.PIDFile = "/run/qemumgr/debian-test.pid"

	argv, err := qemu.BuildCommand(cfg, linuxHost).Argv()
	require.NoError(t, err)
	assert.Equal(t, "unix:/run/qemumgr/debian-test.qmp,server=on,wait=off", flagValue(t, argv, "-qmp"))
	assert.Equal(t, "/run/qemumgr/debian-test.pid", flagValue(t, argv, "-pidfile"))
}

func TestBuildCommandAudioDisabled(t *testing.T) {
	cfg := debianConfig()
	cfg.Audio = &qemu.AudioConfig{Enabled: false, Driver: "alsa", Model: "ac97"}

	argv, err := qemu.BuildCommand(cfg, linuxHost).Argv()
	require.NoError(t, err)
	assert.NotContains(t, argv, "-audiodev")
}

func TestCommandString(t *testing.T) {
	cmd := qemu.BuildCommand(debianConfig(), linuxHost)
	assert.Contains(t, cmd.String(), "qemu-system-x86_64 -name debian-test -m 2048 -smp cores=2")
}
