package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/javanstorm/qemumgr/internal/vm"
	"github.com/javanstorm/qemumgr/pkg/qemu"
)

// enumFlag is a pflag.Value restricted to a fixed set of strings.
type enumFlag[T ~string] struct {
	target  *T
	choices []T
	name    string
}

var _ pflag.Value = (*enumFlag[qemu.BootOrder])(nil)

func newEnumFlag[T ~string](target *T, name string, choices ...T) *enumFlag[T] {
	return &enumFlag[T]{target: target, choices: choices, name: name}
}

func (f *enumFlag[T]) String() string {
	return string(*f.target)
}

func (f *enumFlag[T]) Set(s string) error {
	for _, c := range f.choices {
		if string(c) == s {
			*f.target = c
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", f.list())
}

func (f *enumFlag[T]) Type() string {
	return f.name
}

func (f *enumFlag[T]) list() string {
	names := make([]string, len(f.choices))
	for i, c := range f.choices {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func videoFlag(target *qemu.VideoAdapter) *enumFlag[qemu.VideoAdapter] {
	return newEnumFlag(target, "adapter", qemu.VideoAdapters...)
}

func bootFlag(target *qemu.BootOrder) *enumFlag[qemu.BootOrder] {
	return newEnumFlag(target, "order", qemu.BootDiskFirst, qemu.BootOpticalFirst)
}

func diskFormatFlag(target *vm.DiskFormat) *enumFlag[vm.DiskFormat] {
	return newEnumFlag(target, "format", vm.DiskQCOW2, vm.DiskRaw, vm.DiskVDI, vm.DiskVMDK)
}
