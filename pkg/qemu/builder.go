package qemu

import (
	"strconv"
	"strings"
)

// Command is a rendered QEMU invocation.
type Command struct {
	Binary string
	Args   Args
}

// Argv returns the full argv including the binary.
func (c *Command) Argv() ([]string, error) {
	args, err := c.Args.Build()
	if err != nil {
		return nil, err
	}
	return append([]string{c.Binary}, args...), nil
}

// String renders the command for logs. It is not meant to be fed to a shell.
func (c *Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Binary)
	for _, arg := range c.Args {
		parts = append(parts, arg.String())
	}
	return strings.Join(parts, " ")
}

// BuildCommand translates cfg into a launch command for host.
// It is deterministic: the same inputs always give the same command.
func BuildCommand(cfg MachineConfig, host Host) *Command {
	binary := host.Binary
	if binary == "" {
		binary = DefaultSystemBinary
	}

	var args Args
	args.Add(
		Flag("name", cfg.Name),
		Flag("m", strconv.Itoa(cfg.MemoryMB)),
		Flag("smp", "cores="+strconv.Itoa(cfg.CPUs)),
	)

	if cfg.ISOPath != "" {
		args.Add(Flag("cdrom", cfg.ISOPath))
	}
	if cfg.DiskPath != "" {
		args.Add(Flag("hda", cfg.DiskPath))
	}

	args.Add(Flag("boot", cfg.BootOrder.drives(), "menu=on", "splash-time=5000"))

	// Input devices are always present so pointer grabbing works.
	args.Add(
		Flag("usb"),
		Repeat("device", "usb-kbd"),
		Repeat("device", "usb-mouse"),
	)

	args.Add(Flag("vga", string(cfg.VGA)))
	args.Add(platformArgs(host)...)

	if v := cfg.Video; v != nil {
		if v.GLAcceleration {
			args.Add(Flag("enable-kvm"))
		}
		if v.VirGL {
			args.Add(Repeat("device", "virtio-gpu-gl"))
		}
	}

	if a := cfg.Audio; a != nil && a.Enabled {
		args.Add(
			Repeat("audiodev", a.Driver, "id=audio0"),
			Repeat("device", a.Model, "audiodev=audio0"),
		)
	}

	args.Add(
		Repeat("net", "nic", "model=virtio"),
		Repeat("net", "user"),
	)

	if u := cfg.USB; u != nil && u.Ports > 0 {
		args.Add(Repeat("device", "usb-ehci", "id=ehci"))
		for i := 1; i <= u.Ports; i++ {
			args.Add(Repeat("device", "usb-port", "bus=ehci.0", "nr="+strconv.Itoa(i)))
		}
	}

	if cfg.QMPSocket != "" {
		args.Add(Flag("qmp", "unix:"+cfg.QMPSocket, "server=on", "wait=off"))
	}
	if cfg.PIDFile != "" {
		args.Add(Flag("pidfile", cfg.PIDFile))
	}

	return &Command{Binary: binary, Args: args}
}

// platformArgs returns the accelerator and display flags for host.
func platformArgs(host Host) []Arg {
	var args []Arg
	if host.Accel != "" && host.Accel != AccelNone {
		args = append(args, Flag("accel", string(host.Accel)))
	}
	if display := host.display(); display != "" {
		args = append(args, Flag("display", display))
	}
	return args
}
