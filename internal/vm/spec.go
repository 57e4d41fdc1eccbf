package vm

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/javanstorm/qemumgr/pkg/qemu"
)

// MaxNameLength is the longest accepted VM name.
const MaxNameLength = 64

// VMSpec is the persisted launch configuration of one virtual machine.
type VMSpec struct {
	// Name identifies the VM and is passed to QEMU as -name.
	Name string `json:"name" yaml:"name"`

	// DiskPath is the primary disk image.
	DiskPath string `json:"disk_path,omitempty" yaml:"disk_path,omitempty"`

	// ISOPath is optional install or boot media.
	ISOPath string `json:"iso_path,omitempty" yaml:"iso_path,omitempty"`

	CPUCores     int `json:"cpu_cores" yaml:"cpu_cores"`
	RAMMegabytes int `json:"ram_mb" yaml:"ram_mb"`

	// OSHint is a free-form label. It does not affect emulation.
	OSHint string `json:"os_hint,omitempty" yaml:"os_hint,omitempty"`

	VideoAdapter qemu.VideoAdapter `json:"video_adapter" yaml:"video_adapter"`
	BootOrder    qemu.BootOrder    `json:"boot_order" yaml:"boot_order"`

	// AutoDetected is true for specs synthesized by scanning for images.
	AutoDetected bool `json:"auto_detected" yaml:"auto_detected"`

	Video *qemu.VideoConfig `json:"video,omitempty" yaml:"video,omitempty"`
	Audio *qemu.AudioConfig `json:"audio,omitempty" yaml:"audio,omitempty"`
	USB   *qemu.USBConfig   `json:"usb,omitempty" yaml:"usb,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Limits bound the resources a VM may request.
type Limits struct {
	MinCPUs     int
	MaxCPUs     int
	MinMemoryMB int
	MaxMemoryMB int
}

// DefaultLimits returns the stock bounds: 1-16 cores, 256MB-128GB RAM.
func DefaultLimits() Limits {
	return Limits{
		MinCPUs:     1,
		MaxCPUs:     16,
		MinMemoryMB: 256,
		MaxMemoryMB: 131072,
	}
}

// Defaults fill in new or detected specs.
type Defaults struct {
	CPUs     int
	MemoryMB int
	VGA      qemu.VideoAdapter
}

// DefaultDefaults returns the values used for new VMs when nothing is
// configured.
func DefaultDefaults() Defaults {
	return Defaults{CPUs: 2, MemoryMB: 1024, VGA: qemu.VideoQXL}
}

// NewSpec returns a disk-first spec named name with default resources.
func NewSpec(name string, d Defaults) VMSpec {
	return VMSpec{
		Name:         name,
		CPUCores:     d.CPUs,
		RAMMegabytes: d.MemoryMB,
		VideoAdapter: d.VGA,
		BootOrder:    qemu.BootDiskFirst,
	}
}

// validNameChar reports whether r may appear in a VM name.
func validNameChar(r rune) bool {
	return r >= 'a' && r <= 'z' ||
		r >= 'A' && r <= 'Z' ||
		r >= '0' && r <= '9' ||
		r == '-' || r == '_'
}

// ValidateName checks that name is non-empty, at most MaxNameLength long and
// made only of ASCII letters, digits, '-' and '_'. Names end up in file
// paths and process arguments, so anything else is rejected.
func ValidateName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if len(name) > MaxNameLength {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("must be at most %d characters", MaxNameLength)}
	}
	for _, r := range name {
		if !validNameChar(r) {
			return &ValidationError{Field: "name", Message: fmt.Sprintf("character %q not allowed (use letters, digits, '-' and '_')", r)}
		}
	}
	return nil
}

// Validate checks the spec against limits. The first problem is returned.
func (s *VMSpec) Validate(limits Limits) error {
	if err := ValidateName(s.Name); err != nil {
		return err
	}

	if s.CPUCores < limits.MinCPUs || s.CPUCores > limits.MaxCPUs {
		return &ValidationError{
			Field:   "cpu_cores",
			Message: fmt.Sprintf("%d is outside %d..%d", s.CPUCores, limits.MinCPUs, limits.MaxCPUs),
		}
	}
	if s.RAMMegabytes < limits.MinMemoryMB || s.RAMMegabytes > limits.MaxMemoryMB {
		return &ValidationError{
			Field:   "ram_mb",
			Message: fmt.Sprintf("%d is outside %d..%d", s.RAMMegabytes, limits.MinMemoryMB, limits.MaxMemoryMB),
		}
	}

	if !s.VideoAdapter.Valid() {
		return &ValidationError{Field: "video_adapter", Message: fmt.Sprintf("unknown adapter %q", s.VideoAdapter)}
	}
	if !s.BootOrder.Valid() {
		return &ValidationError{Field: "boot_order", Message: fmt.Sprintf("unknown boot order %q", s.BootOrder)}
	}

	if a := s.Audio; a != nil && a.Enabled {
		if !slices.Contains(qemu.AudioDrivers, a.Driver) {
			return &ValidationError{Field: "audio.driver", Message: fmt.Sprintf("unknown driver %q", a.Driver)}
		}
		if !slices.Contains(qemu.AudioModels, a.Model) {
			return &ValidationError{Field: "audio.model", Message: fmt.Sprintf("unknown model %q", a.Model)}
		}
	}

	if u := s.USB; u != nil && (u.Ports < qemu.MinUSBPorts || u.Ports > qemu.MaxUSBPorts) {
		return &ValidationError{
			Field:   "usb.ports",
			Message: fmt.Sprintf("%d is outside %d..%d", u.Ports, qemu.MinUSBPorts, qemu.MaxUSBPorts),
		}
	}

	return nil
}

// MachineConfig converts the spec into builder input.
func (s *VMSpec) MachineConfig() qemu.MachineConfig {
	return qemu.MachineConfig{
		Name:      s.Name,
		DiskPath:  s.DiskPath,
		ISOPath:   s.ISOPath,
		CPUs:      s.CPUCores,
		MemoryMB:  s.RAMMegabytes,
		VGA:       s.VideoAdapter,
		BootOrder: s.BootOrder,
		Video:     s.Video,
		Audio:     s.Audio,
		USB:       s.USB,
	}
}

// SanitizeName turns arbitrary text, such as an image file stem, into a
// valid VM name. It returns "" when nothing usable is left.
func SanitizeName(s string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case validNameChar(r):
			b.WriteRune(r)
			lastDash = r == '-'
		case !lastDash && b.Len() > 0:
			b.WriteByte('-')
			lastDash = true
		}
	}

	name := strings.Trim(b.String(), "-")
	if len(name) > MaxNameLength {
		name = strings.TrimRight(name[:MaxNameLength], "-")
	}
	return name
}
