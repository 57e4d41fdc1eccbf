package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/javanstorm/qemumgr/internal/distro"
	"github.com/javanstorm/qemumgr/internal/terminal"
	"github.com/javanstorm/qemumgr/internal/vm"
	"github.com/javanstorm/qemumgr/pkg/qemu"
)

var vmCmd = &cobra.Command{
	Use:   "vm",
	Short: "Manage VM definitions",
	Long:  `Create, list, edit, delete, export and import VM definitions.`,
}

var vmCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new VM",
	Long: `Create a new VM definition. Unset resources come from the configured
defaults. The disk image is not created; use 'qemumgr disk create' for that.`,
	Args: cobra.ExactArgs(1),
	RunE: runVMCreate,
}

var vmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all VMs",
	Long:  `List all VM definitions with their runtime state.`,
	Args:  cobra.NoArgs,
	RunE:  runVMList,
}

var vmShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show VM details",
	Args:  cobra.ExactArgs(1),
	RunE:  runVMShow,
}

var vmEditCmd = &cobra.Command{
	Use:   "edit <name>",
	Short: "Change a VM definition",
	Long: `Change the given settings of a VM. Settings of a running VM take
effect on its next start.`,
	Args: cobra.ExactArgs(1),
	RunE: runVMEdit,
}

var vmDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a VM",
	Long:  `Delete a stopped VM definition and its history. The disk image is kept unless --disk is given.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runVMDelete,
}

var vmExportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Export a VM definition as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runVMExport,
}

var vmImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a VM definition from YAML",
	Long:  `Import a VM definition written by 'qemumgr vm export'.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runVMImport,
}

// specFlags are the settings shared by vm create and vm edit.
type specFlags struct {
	cpus       int
	memory     int
	disk       string
	iso        string
	osHint     string
	vga        qemu.VideoAdapter
	boot       qemu.BootOrder
	gl         bool
	virgl      bool
	audio      string
	audioModel string
	usbPorts   int
}

func (f *specFlags) register(fs *pflag.FlagSet) {
	fs.IntVarP(&f.cpus, "cpus", "c", 0, "Number of virtual CPUs")
	fs.IntVarP(&f.memory, "memory", "m", 0, "Memory in MB")
	fs.StringVarP(&f.disk, "disk", "d", "", "Disk image path")
	fs.StringVar(&f.iso, "iso", "", "ISO image path (empty to remove)")
	fs.StringVar(&f.osHint, "os", "", fmt.Sprintf("Guest OS hint (%s, or a distro such as debian)", familyNames()))
	fs.Var(videoFlag(&f.vga), "vga", "Video adapter (qxl, virtio, vmware, vga, cirrus, std, none)")
	fs.Var(bootFlag(&f.boot), "boot", "Boot order (disk-first, optical-first)")
	fs.BoolVar(&f.gl, "gl", false, "Enable OpenGL acceleration")
	fs.BoolVar(&f.virgl, "virgl", false, "Use the virtio-gpu-gl device")
	fs.StringVar(&f.audio, "audio", "", "Audio driver, enables sound (none to disable)")
	fs.StringVar(&f.audioModel, "audio-model", "hda", "Emulated sound card")
	fs.IntVar(&f.usbPorts, "usb-ports", 0, "Ports on an EHCI USB controller (0 to disable)")
}

// apply copies the flags the user set into spec. Paths are made absolute.
func (f *specFlags) apply(fs *pflag.FlagSet, spec *vm.VMSpec) error {
	if fs.Changed("cpus") {
		spec.CPUCores = f.cpus
	}
	if fs.Changed("memory") {
		spec.RAMMegabytes = f.memory
	}
	if fs.Changed("disk") {
		p, err := absPath(f.disk)
		if err != nil {
			return err
		}
		spec.DiskPath = p
	}
	if fs.Changed("iso") {
		p, err := absPath(f.iso)
		if err != nil {
			return err
		}
		spec.ISOPath = p
	}
	if fs.Changed("os") {
		spec.OSHint = ""
		if f.osHint != "" {
			hint, err := distro.ParseHint(f.osHint)
			if err != nil {
				return err
			}
			spec.OSHint = string(hint)
		}
	}
	if fs.Changed("vga") {
		spec.VideoAdapter = f.vga
	}
	if fs.Changed("boot") {
		spec.BootOrder = f.boot
	}

	if fs.Changed("gl") || fs.Changed("virgl") {
		if spec.Video == nil {
			spec.Video = &qemu.VideoConfig{}
		}
		if fs.Changed("gl") {
			spec.Video.GLAcceleration = f.gl
		}
		if fs.Changed("virgl") {
			spec.Video.VirGL = f.virgl
		}
		if !spec.Video.GLAcceleration && !spec.Video.VirGL {
			spec.Video = nil
		}
	}

	switch {
	case fs.Changed("audio") && (f.audio == "" || f.audio == "none"):
		spec.Audio = nil
	case fs.Changed("audio"):
		spec.Audio = &qemu.AudioConfig{Enabled: true, Driver: f.audio, Model: f.audioModel}
	case fs.Changed("audio-model") && spec.Audio != nil:
		spec.Audio.Model = f.audioModel
	}

	if fs.Changed("usb-ports") {
		spec.USB = nil
		if f.usbPorts != 0 {
			spec.USB = &qemu.USBConfig{Ports: f.usbPorts}
		}
	}
	return nil
}

func familyNames() string {
	names := make([]string, len(distro.Families))
	for i, f := range distro.Families {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// absPath returns p as an absolute path, or "" for "".
func absPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	return filepath.Abs(p)
}

var (
	vmCreateFlags specFlags
	vmEditFlags   specFlags
)

// Flags for vm list, delete and export
var (
	vmListQuiet    bool
	vmDeleteDisk   bool
	vmDeleteYes    bool
	vmExportOutput string
)

func init() {
	vmCreateFlags.register(vmCreateCmd.Flags())
	vmEditFlags.register(vmEditCmd.Flags())

	vmListCmd.Flags().BoolVarP(&vmListQuiet, "quiet", "q", false, "Only print VM names")

	vmDeleteCmd.Flags().BoolVar(&vmDeleteDisk, "disk", false, "Also delete the disk image")
	vmDeleteCmd.Flags().BoolVarP(&vmDeleteYes, "yes", "y", false, "Do not ask for confirmation")

	vmExportCmd.Flags().StringVarP(&vmExportOutput, "output", "o", "", "Write to file instead of stdout")

	// Add subcommands
	vmCmd.AddCommand(vmCreateCmd)
	vmCmd.AddCommand(vmListCmd)
	vmCmd.AddCommand(vmShowCmd)
	vmCmd.AddCommand(vmEditCmd)
	vmCmd.AddCommand(vmDeleteCmd)
	vmCmd.AddCommand(vmExportCmd)
	vmCmd.AddCommand(vmImportCmd)
	vmCmd.AddCommand(backupCmd)

	// Register vm command
	rootCmd.AddCommand(vmCmd)
}

func runVMCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	spec := vm.NewSpec(args[0], a.defaults())
	if err := vmCreateFlags.apply(cmd.Flags(), &spec); err != nil {
		return err
	}
	if spec.OSHint == "" {
		spec.OSHint = string(distro.Hint(spec.Name))
	}
	if err := a.store.Create(spec); err != nil {
		return fmt.Errorf("create VM: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created VM '%s'\n", spec.Name)
	fmt.Fprintf(out, "  CPUs: %d\n", spec.CPUCores)
	fmt.Fprintf(out, "  Memory: %d MB\n", spec.RAMMegabytes)
	if spec.DiskPath != "" {
		fmt.Fprintf(out, "  Disk: %s\n", spec.DiskPath)
	}
	if spec.ISOPath != "" {
		fmt.Fprintf(out, "  ISO: %s\n", spec.ISOPath)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "To start it: qemumgr start %s\n", spec.Name)
	return nil
}

func runVMList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	statuses, err := a.svc.Statuses()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if vmListQuiet {
		for _, st := range statuses {
			fmt.Fprintln(out, st.Spec.Name)
		}
		return nil
	}

	if len(statuses) == 0 {
		fmt.Fprintln(out, "No VMs defined. Create one with: qemumgr vm create <name>")
		fmt.Fprintln(out, "Or detect existing images with: qemumgr scan --save")
		return nil
	}

	fmt.Fprintf(out, "%-24s %-8s %-8s %-5s %-8s %s\n", "NAME", "STATE", "PID", "CPUS", "MEMORY", "DISK")
	for _, st := range statuses {
		pid := "-"
		if st.PID > 0 {
			pid = fmt.Sprint(st.PID)
		}
		disk := st.Spec.DiskPath
		if disk == "" {
			disk = "-"
		}
		fmt.Fprintf(out, "%-24s %-8s %-8s %-5d %-8s %s\n",
			st.Spec.Name, st.State, pid, st.Spec.CPUCores, fmt.Sprintf("%dM", st.Spec.RAMMegabytes), disk)
	}
	return nil
}

func runVMShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	st, err := a.svc.Status(args[0])
	if err != nil {
		return err
	}
	printVMDetails(cmd.OutOrStdout(), st)
	return nil
}

func printVMDetails(out io.Writer, st *vm.VMStatus) {
	spec := st.Spec
	fmt.Fprintf(out, "VM: %s\n", spec.Name)
	fmt.Fprintf(out, "  State: %s\n", st.State)
	if st.PID > 0 {
		fmt.Fprintf(out, "  PID: %d\n", st.PID)
	}
	if !st.StartedAt.IsZero() {
		fmt.Fprintf(out, "  Started: %s\n", st.StartedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, "  CPUs: %d\n", spec.CPUCores)
	fmt.Fprintf(out, "  Memory: %d MB\n", spec.RAMMegabytes)
	fmt.Fprintf(out, "  Disk: %s\n", valueOr(spec.DiskPath, "none"))
	fmt.Fprintf(out, "  ISO: %s\n", valueOr(spec.ISOPath, "none"))
	fmt.Fprintf(out, "  Video: %s\n", spec.VideoAdapter)
	fmt.Fprintf(out, "  Boot: %s\n", spec.BootOrder)
	if spec.OSHint != "" {
		fmt.Fprintf(out, "  OS: %s\n", spec.OSHint)
	}
	if spec.Video != nil {
		fmt.Fprintf(out, "  OpenGL: %v (virgl: %v)\n", spec.Video.GLAcceleration, spec.Video.VirGL)
	}
	if spec.Audio != nil && spec.Audio.Enabled {
		fmt.Fprintf(out, "  Audio: %s (%s)\n", spec.Audio.Driver, spec.Audio.Model)
	}
	if spec.USB != nil {
		fmt.Fprintf(out, "  USB ports: %d\n", spec.USB.Ports)
	}
	if spec.AutoDetected {
		fmt.Fprintln(out, "  Auto-detected: yes")
	}
	if !spec.CreatedAt.IsZero() {
		fmt.Fprintf(out, "  Created: %s\n", spec.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func runVMEdit(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	spec, err := a.store.Get(args[0])
	if err != nil {
		return err
	}
	if err := vmEditFlags.apply(cmd.Flags(), spec); err != nil {
		return err
	}
	if err := a.store.Put(*spec); err != nil {
		return fmt.Errorf("update VM: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Updated VM '%s'\n", spec.Name)
	if a.svc.Registry().IsRunning(spec.Name) {
		fmt.Fprintln(cmd.OutOrStdout(), "Changes take effect on the next start.")
	}
	return nil
}

func runVMDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}

	spec, err := a.store.Get(name)
	if err != nil {
		return err
	}

	if !vmDeleteYes {
		question := fmt.Sprintf("Delete VM '%s'?", name)
		if vmDeleteDisk && spec.DiskPath != "" {
			question = fmt.Sprintf("Delete VM '%s' and its disk %s?", name, spec.DiskPath)
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

	if err := a.svc.Delete(name); err != nil {
		return fmt.Errorf("delete VM: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted VM '%s'\n", name)

	if vmDeleteDisk && spec.DiskPath != "" {
		if err := a.disks.Delete(cmd.Context(), spec.DiskPath); err != nil {
			return fmt.Errorf("delete disk: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted disk %s\n", spec.DiskPath)
	}
	return nil
}

func runVMExport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	spec, err := a.store.Get(args[0])
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("encode VM: %w", err)
	}

	if vmExportOutput == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(vmExportOutput, data, 0644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported VM '%s' to %s\n", spec.Name, vmExportOutput)
	return nil
}

func runVMImport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read import: %w", err)
	}
	var spec vm.VMSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("decode VM: %w", err)
	}

	if err := a.store.Create(spec); err != nil {
		return fmt.Errorf("import VM: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported VM '%s'\n", spec.Name)
	return nil
}
