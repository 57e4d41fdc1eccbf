package qemu

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Default binary names looked up on PATH.
const (
	DefaultSystemBinary = "qemu-system-x86_64"
	DefaultImgBinary    = "qemu-img"
)

// OSFamily is the host operating system family.
type OSFamily string

const (
	OSLinux   OSFamily = "linux"
	OSDarwin  OSFamily = "darwin"
	OSWindows OSFamily = "windows"
	OSOther   OSFamily = "other"
)

// CurrentOS returns the family of the running host.
func CurrentOS() OSFamily {
	return osFamily(runtime.GOOS)
}

func osFamily(goos string) OSFamily {
	switch goos {
	case "linux":
		return OSLinux
	case "darwin":
		return OSDarwin
	case "windows":
		return OSWindows
	default:
		return OSOther
	}
}

// Accel is a QEMU accelerator name.
type Accel string

const (
	AccelAuto Accel = "auto"
	AccelNone Accel = "none"
	AccelKVM  Accel = "kvm"
	AccelHVF  Accel = "hvf"
	AccelWHPX Accel = "whpx"
	AccelHAX  Accel = "hax"
	AccelTCG  Accel = "tcg"
)

// ParseAccel validates an accelerator setting.
func ParseAccel(s string) (Accel, error) {
	switch a := Accel(s); a {
	case AccelAuto, AccelNone, AccelKVM, AccelHVF, AccelWHPX, AccelHAX, AccelTCG:
		return a, nil
	case "":
		return AccelAuto, nil
	default:
		return "", fmt.Errorf("qemu: unknown accelerator %q", s)
	}
}

// Host is the part of the host that shapes a command line.
type Host struct {
	OS      OSFamily
	Binary  string
	Accel   Accel
	Display string
}

// display returns the -display value, falling back to the platform default.
func (h Host) display() string {
	if h.Display != "" {
		return h.Display
	}
	switch h.OS {
	case OSLinux:
		return "gtk,grab-on-hover=on"
	case OSDarwin:
		return "cocoa"
	default:
		return "sdl"
	}
}

// HostInfo is the result of probing the host.
type HostInfo struct {
	OS OSFamily

	// SystemBinary is the resolved emulator path, or the configured name
	// when it was not found.
	SystemBinary string
	SystemFound  bool

	// ImgBinary is the resolved qemu-img path, or the configured name.
	ImgBinary string
	ImgFound  bool

	// KVM reports whether /dev/kvm is usable.
	KVM bool

	// Accel is the accelerator the builder will use.
	Accel Accel

	// Display overrides the platform default display when set.
	Display string

	// Distro is the package family of the host ("debian", "macos", ...).
	Distro string
}

// InstallHint returns how to install QEMU on this host, or "".
func (i HostInfo) InstallHint() string {
	return InstallHint(i.Distro)
}

// Host returns the builder view of the probe result.
func (i HostInfo) Host() Host {
	return Host{
		OS:      i.OS,
		Binary:  i.SystemBinary,
		Accel:   i.Accel,
		Display: i.Display,
	}
}

// Check returns an error wrapping ErrBinaryNotFound for each missing binary.
func (i HostInfo) Check() error {
	if !i.SystemFound {
		return fmt.Errorf("%w: %s", ErrBinaryNotFound, i.SystemBinary)
	}
	if !i.ImgFound {
		return fmt.Errorf("%w: %s", ErrBinaryNotFound, i.ImgBinary)
	}
	return nil
}

// ProbeOptions tune Probe. Zero values select defaults.
type ProbeOptions struct {
	SystemBinary string
	ImgBinary    string
	Accel        Accel
	Display      string

	// GOOS overrides runtime.GOOS.
	GOOS string

	// LookPath overrides exec.LookPath.
	LookPath func(file string) (string, error)

	// KVMAvailable overrides the /dev/kvm check.
	KVMAvailable func() bool

	// ReadOSRelease overrides reading /etc/os-release.
	ReadOSRelease func() ([]byte, error)
}

// Probe inspects the host: OS family, binaries on PATH and accelerator.
func Probe(opts ProbeOptions) HostInfo {
	if opts.SystemBinary == "" {
		opts.SystemBinary = DefaultSystemBinary
	}
	if opts.ImgBinary == "" {
		opts.ImgBinary = DefaultImgBinary
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if opts.KVMAvailable == nil {
		opts.KVMAvailable = kvmAvailable
	}
	if opts.ReadOSRelease == nil {
		opts.ReadOSRelease = readOSRelease
	}

	info := HostInfo{
		OS:           osFamily(opts.GOOS),
		SystemBinary: opts.SystemBinary,
		ImgBinary:    opts.ImgBinary,
		Display:      opts.Display,
	}
	info.Distro = detectDistro(info.OS, opts.ReadOSRelease)

	if p, err := opts.LookPath(opts.SystemBinary); err == nil {
		info.SystemBinary = p
		info.SystemFound = true
	}
	if p, err := opts.LookPath(opts.ImgBinary); err == nil {
		info.ImgBinary = p
		info.ImgFound = true
	}

	if info.OS == OSLinux {
		info.KVM = opts.KVMAvailable()
	}

	info.Accel = opts.Accel
	if info.Accel == "" || info.Accel == AccelAuto {
		info.Accel = defaultAccel(info.OS, info.KVM)
	}

	return info
}

func defaultAccel(os OSFamily, kvm bool) Accel {
	switch os {
	case OSLinux:
		if kvm {
			return AccelKVM
		}
		return AccelTCG
	case OSDarwin:
		return AccelHVF
	case OSWindows:
		return AccelWHPX
	default:
		return AccelTCG
	}
}

// kvmAvailable checks that /dev/kvm can be opened for writing.
func kvmAvailable() bool {
	f, err := os.OpenFile("/dev/kvm", os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
