package qemu

import "errors"

var (
	// ErrArgumentCollision is returned when a unique flag appears twice, or a
	// repeatable flag appears twice with the same value.
	ErrArgumentCollision = errors.New("qemu: colliding arguments")

	// ErrBinaryNotFound is returned when a required binary is not on PATH.
	ErrBinaryNotFound = errors.New("qemu: binary not found")
)
