package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/javanstorm/qemumgr/internal/config"
	"github.com/javanstorm/qemumgr/internal/vm"
	"github.com/javanstorm/qemumgr/pkg/hypervisor"
	"github.com/javanstorm/qemumgr/pkg/qemu"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Show host capabilities",
	Long:  `Show the QEMU binaries, accelerator and storage available on this host.`,
	Args:  cobra.NoArgs,
	RunE:  runHost,
}

func runHost(cmd *cobra.Command, args []string) error {
	a, err := buildApp(nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	h := a.host
	info := hypervisor.DriverInfo()

	fmt.Fprintf(out, "Host: %s/%s", h.OS, info.Arch)
	if h.Distro != "" {
		fmt.Fprintf(out, " (%s)", h.Distro)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Process driver: %s\n", info.Name)
	fmt.Fprintln(out)

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	printBinary(ctx, out, "Emulator", h.SystemBinary, h.SystemFound)
	printBinary(ctx, out, "Disk tool", h.ImgBinary, h.ImgFound)
	if (!h.SystemFound || !h.ImgFound) && h.InstallHint() != "" {
		fmt.Fprintf(out, "  Install with: %s\n", h.InstallHint())
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Accelerator: %s\n", h.Accel)
	if h.OS == qemu.OSLinux {
		fmt.Fprintf(out, "  KVM: %s\n", availability(h.KVM))
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Data: %s\n", a.paths.DataDir)
	if free, err := vm.FreeSpace(a.paths.DataDir); err == nil {
		fmt.Fprintf(out, "  Free space: %s\n", formatSize(int64(free)))
	}

	if len(a.problems) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, config.FormatValidationErrors(a.problems))
	}
	return nil
}

func printBinary(ctx context.Context, out io.Writer, label, path string, found bool) {
	if !found {
		fmt.Fprintf(out, "%s: %s (not found)\n", label, path)
		return
	}
	fmt.Fprintf(out, "%s: %s\n", label, path)
	if v, err := qemu.Version(ctx, path); err == nil {
		fmt.Fprintf(out, "  %s\n", v)
	}
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}
