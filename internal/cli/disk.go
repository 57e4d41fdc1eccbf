package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/qemumgr/internal/terminal"
	"github.com/javanstorm/qemumgr/internal/vm"
)

var diskCmd = &cobra.Command{
	Use:   "disk",
	Short: "Manage disk images",
	Long:  `Create, convert, inspect and delete disk images with qemu-img.`,
}

var diskCreateCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create a disk image",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiskCreate,
}

var diskConvertCmd = &cobra.Command{
	Use:   "convert <src> <dst>",
	Short: "Convert a disk image to another format",
	Args:  cobra.ExactArgs(2),
	RunE:  runDiskConvert,
}

var diskDeleteCmd = &cobra.Command{
	Use:   "delete <path>",
	Short: "Delete a disk image",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiskDelete,
}

var diskInfoCmd = &cobra.Command{
	Use:   "info <path>",
	Short: "Show disk image details",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiskInfo,
}

var diskImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Record an existing disk image",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiskImport,
}

var diskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded disk images",
	Args:  cobra.NoArgs,
	RunE:  runDiskList,
}

var (
	diskCreateSize   int
	diskCreateFormat = vm.DiskQCOW2
	diskConvertTo    = vm.DiskQCOW2
	diskDeleteYes    bool
	diskInfoRaw      bool
)

func init() {
	diskCreateCmd.Flags().IntVarP(&diskCreateSize, "size", "s", 20, "Size in GB")
	diskCreateCmd.Flags().VarP(diskFormatFlag(&diskCreateFormat), "format", "f", "Image format (qcow2, raw, vdi, vmdk)")
	diskConvertCmd.Flags().VarP(diskFormatFlag(&diskConvertTo), "format", "f", "Target format (qcow2, raw, vdi, vmdk)")
	diskDeleteCmd.Flags().BoolVarP(&diskDeleteYes, "yes", "y", false, "Do not ask for confirmation")
	diskInfoCmd.Flags().BoolVar(&diskInfoRaw, "raw", false, "Print the qemu-img output unmodified")

	diskCmd.AddCommand(diskCreateCmd)
	diskCmd.AddCommand(diskConvertCmd)
	diskCmd.AddCommand(diskDeleteCmd)
	diskCmd.AddCommand(diskInfoCmd)
	diskCmd.AddCommand(diskImportCmd)
	diskCmd.AddCommand(diskListCmd)

	rootCmd.AddCommand(diskCmd)
}

func runDiskCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	d, err := a.disks.Create(cmd.Context(), args[0], diskCreateSize, diskCreateFormat)
	if err != nil {
		return fmt.Errorf("create disk: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%d GB, %s)\n", d.Path, d.SizeGB, d.Format)
	return nil
}

func runDiskConvert(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Converting %s to %s...\n", args[0], diskConvertTo)
	d, err := a.disks.Convert(cmd.Context(), args[0], args[1], diskConvertTo)
	if err != nil {
		return fmt.Errorf("convert disk: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", d.Path, d.Format)
	return nil
}

func runDiskDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	specs, err := a.store.GetAll()
	if err != nil {
		return err
	}
	var users []string
	for _, spec := range specs {
		if spec.DiskPath != "" && sameFile(spec.DiskPath, args[0]) {
			users = append(users, spec.Name)
		}
	}

	for _, name := range users {
		if a.svc.Registry().IsRunning(name) {
			return fmt.Errorf("%w: %s uses this disk", vm.ErrAlreadyRunning, name)
		}
	}

	if !diskDeleteYes {
		question := fmt.Sprintf("Delete %s?", args[0])
		if len(users) > 0 {
			question = fmt.Sprintf("Delete %s? It is the disk of %v.", args[0], users)
		}
		ok, err := terminal.Stdio().Confirm(question, false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
	}

	if err := a.disks.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete disk: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func runDiskInfo(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	info, err := a.disks.Info(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if diskInfoRaw {
		fmt.Fprintln(out, info.Raw)
		return nil
	}
	fmt.Fprintf(out, "File: %s\n", info.Filename)
	fmt.Fprintf(out, "  Format: %s\n", info.Format)
	fmt.Fprintf(out, "  Virtual size: %s\n", formatSize(info.VirtualSize))
	fmt.Fprintf(out, "  Allocated: %s\n", formatSize(info.ActualSize))
	if info.Dirty {
		fmt.Fprintln(out, "  Dirty: yes")
	}
	return nil
}

func runDiskImport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	d, err := a.disks.Import(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("import disk: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s (%d GB, %s)\n", d.Path, d.SizeGB, d.Format)
	return nil
}

func runDiskList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	disks, err := a.disks.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(disks) == 0 {
		fmt.Fprintln(out, "No disks recorded. Create one with: qemumgr disk create <path>")
		return nil
	}

	fmt.Fprintf(out, "%-24s %-6s %-8s %s\n", "NAME", "FORMAT", "SIZE", "PATH")
	for _, d := range disks {
		fmt.Fprintf(out, "%-24s %-6s %-8s %s\n", d.Name, d.Format, fmt.Sprintf("%dG", d.SizeGB), d.Path)
	}
	return nil
}

// sameFile reports whether a and b name the same path once made absolute.
func sameFile(a, b string) bool {
	pa, errA := absPath(a)
	pb, errB := absPath(b)
	return errA == nil && errB == nil && pa == pb
}
