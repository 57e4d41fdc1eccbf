package hypervisor

import "runtime"

// NewDriver returns the process driver for the current platform.
func NewDriver() Driver {
	return &execDriver{}
}

// DriverInfo describes the driver returned by NewDriver.
func DriverInfo() Info {
	return Info{
		Name: "exec",
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
}
