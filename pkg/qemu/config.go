package qemu

import "slices"

// VideoAdapter is the emulated VGA card passed to -vga.
type VideoAdapter string

const (
	VideoQXL    VideoAdapter = "qxl"
	VideoVirtio VideoAdapter = "virtio"
	VideoVMware VideoAdapter = "vmware"
	VideoVGA    VideoAdapter = "vga"
	VideoCirrus VideoAdapter = "cirrus"
	VideoStd    VideoAdapter = "std"
	VideoNone   VideoAdapter = "none"
)

// VideoAdapters lists every supported adapter in display order.
var VideoAdapters = []VideoAdapter{
	VideoQXL, VideoVirtio, VideoVMware, VideoVGA, VideoCirrus, VideoStd, VideoNone,
}

// Valid reports whether v is a known adapter.
func (v VideoAdapter) Valid() bool {
	return slices.Contains(VideoAdapters, v)
}

// BootOrder selects which device the firmware tries first.
type BootOrder string

const (
	BootDiskFirst    BootOrder = "disk-first"
	BootOpticalFirst BootOrder = "optical-first"
)

// Valid reports whether b is a known boot order.
func (b BootOrder) Valid() bool {
	return b == BootDiskFirst || b == BootOpticalFirst
}

// drives returns the -boot order= value.
func (b BootOrder) drives() string {
	if b == BootOpticalFirst {
		return "order=d,c"
	}
	return "order=c,d"
}

// Audio backends and emulated sound cards accepted by the builder.
var (
	AudioDrivers = []string{"pulseaudio", "alsa", "oss", "coreaudio", "dsound", "sdl", "none"}
	AudioModels  = []string{"ac97", "es1370", "sb16", "hdmi", "ich6", "ich9", "hda"}
)

// Limits for the emulated USB controller.
const (
	MinUSBPorts     = 1
	MaxUSBPorts     = 16
	DefaultUSBPorts = 4
)

// VideoConfig holds optional graphics acceleration settings.
type VideoConfig struct {
	GLAcceleration bool `json:"gl_acceleration" yaml:"gl_acceleration"`
	VirGL          bool `json:"virgl" yaml:"virgl"`
}

// AudioConfig holds optional sound settings.
type AudioConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	Model   string `json:"model" yaml:"model"`
}

// USBConfig holds optional USB controller settings.
type USBConfig struct {
	Ports int `json:"ports" yaml:"ports"`
}

// MachineConfig is everything the builder needs to render one VM.
// Values are passed through as-is; validation happens before this stage.
type MachineConfig struct {
	// Name is the VM name, passed to -name.
	Name string

	// DiskPath is the primary disk image (optional).
	DiskPath string

	// ISOPath is the optical boot media (optional).
	ISOPath string

	// CPUs is the number of cores for -smp.
	CPUs int

	// MemoryMB is the guest RAM for -m.
	MemoryMB int

	// VGA is the emulated display adapter.
	VGA VideoAdapter

	// BootOrder selects the first boot device.
	BootOrder BootOrder

	Video *VideoConfig
	Audio *AudioConfig
	USB   *USBConfig

	// QMPSocket is a unix socket path for the QMP monitor (empty = none).
	QMPSocket string

	// PIDFile is where QEMU writes its own pid (empty = none).
	PIDFile string
}
