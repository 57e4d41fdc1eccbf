package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/qemumgr/internal/vm"
)

var scanCmd = &cobra.Command{
	Use:   "scan [dir]...",
	Short: "Find existing disk images",
	Long: `Search the configured search paths, or the given directories, for qcow2
images and show a VM definition for each. With --save, images whose name
and path are not yet known are added as VMs.`,
	RunE: runScan,
}

var scanSave bool

func init() {
	scanCmd.Flags().BoolVar(&scanSave, "save", false, "Add new images as VMs")
}

func runScan(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	roots := a.cfg.SearchPaths
	if len(args) > 0 {
		roots = args
	}

	out := cmd.OutOrStdout()
	found := vm.ScanForImages(roots, a.defaults())
	if len(found) == 0 {
		fmt.Fprintf(out, "No qcow2 images found in: %v\n", roots)
		return nil
	}

	existing, err := a.store.GetAll()
	if err != nil {
		return err
	}
	fresh := vm.NewImports(found, existing)

	fmt.Fprintf(out, "Found %d image(s), %d new:\n", len(found), len(fresh))
	for _, spec := range found {
		marker := " "
		for _, f := range fresh {
			if f.Name == spec.Name {
				marker = "+"
				break
			}
		}
		fmt.Fprintf(out, "  %s %-24s %s\n", marker, spec.Name, spec.DiskPath)
	}

	if !scanSave {
		if len(fresh) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Run with --save to add the new images as VMs.")
		}
		return nil
	}

	saved := 0
	for _, spec := range fresh {
		if err := a.store.Create(spec); err != nil {
			a.logger.Warn().Err(err).Str("vm", spec.Name).Msg("skipping detected image")
			continue
		}
		saved++
	}
	fmt.Fprintf(out, "Added %d VM(s)\n", saved)
	return nil
}
