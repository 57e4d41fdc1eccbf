package hypervisor

import "errors"

var (
	// ErrEmptyCommand is returned when Spawn is given no argv.
	ErrEmptyCommand = errors.New("hypervisor: empty command")

	// ErrInvalidPID is returned when a pid is not positive.
	ErrInvalidPID = errors.New("hypervisor: invalid pid")

	// ErrProcessNotFound is returned when attaching to a pid that is not running.
	ErrProcessNotFound = errors.New("hypervisor: process not found")

	// ErrStillAlive is returned when a process survives a forced kill.
	ErrStillAlive = errors.New("hypervisor: process still alive after kill")

	// ErrUnsupportedPlatform is returned for features the platform lacks.
	ErrUnsupportedPlatform = errors.New("hypervisor: platform not supported")
)
