package qemuimg

import (
	"errors"
	"strings"
)

var (
	// ErrExists is returned when creating over an existing file.
	ErrExists = errors.New("qemuimg: file already exists")

	// ErrNotExist is returned when a source or target file is missing.
	ErrNotExist = errors.New("qemuimg: file does not exist")

	// ErrNotCreated is returned when qemu-img succeeded but no file appeared.
	ErrNotCreated = errors.New("qemuimg: image was not created")
)

// ToolError is a failed qemu-img invocation. Stderr is kept as-is.
type ToolError struct {
	Op     string
	Path   string
	Stderr string
	Err    error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return "qemu-img " + e.Op + " " + e.Path + ": " + msg
}

// Unwrap implements the errors.Unwrap interface.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// Is implements the errors.Is interface.
func (e *ToolError) Is(other error) bool {
	_, ok := other.(*ToolError)
	return ok
}
