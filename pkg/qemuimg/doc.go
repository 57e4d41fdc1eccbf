// Package qemuimg wraps the qemu-img command line tool.
//
// Every operation runs qemu-img directly and reports failures as a
// ToolError carrying the tool's stderr verbatim. Output is not classified
// beyond success or failure.
package qemuimg
