package vm

import "errors"

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("vm: invalid specification")

	ErrNotFound       = errors.New("vm: not found")
	ErrAlreadyExists  = errors.New("vm: already exists")
	ErrAlreadyRunning = errors.New("vm: already running")
	ErrNotRunning     = errors.New("vm: not running")

	// ErrSpawnFailed is returned when the emulator process could not be
	// started. The registry is unchanged when it is returned.
	ErrSpawnFailed = errors.New("vm: spawn failed")

	// ErrUnsupportedSchema is returned for metadata written by a newer
	// version.
	ErrUnsupportedSchema = errors.New("vm: unsupported metadata schema")

	// ErrNoMonitor is returned when a VM has no reachable QMP socket.
	ErrNoMonitor = errors.New("vm: no QMP monitor")

	ErrDiskNotFound = errors.New("vm: disk not found")
)

// ValidationError describes a rejected field. It is returned before any
// process or registry interaction.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}

// Is implements the errors.Is interface.
func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	_, ok := target.(*ValidationError)
	return ok
}
