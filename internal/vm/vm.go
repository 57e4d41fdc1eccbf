// Package vm manages the lifecycle of QEMU virtual machines.
//
// It ties together the persisted VM and disk metadata, the in-memory
// registry of running emulator processes, launch markers that let a new
// manager find VMs started by an earlier one, and the periodic liveness
// reconciliation that keeps the registry truthful.
package vm
