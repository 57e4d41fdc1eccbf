// Package qemu renders QEMU system emulator command lines.
//
// Commands are built as structured argument lists and turned into an argv
// slice for direct execution. Nothing in this package ever goes through a
// shell, so VM names and paths never need quoting.
package qemu
