package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop [name]...",
	Short: "Stop running VMs",
	Long: `Stop VMs by terminating their emulator process. A VM that does not exit
within the stop timeout is killed. Use 'qemumgr powerdown' to ask the guest
to shut down instead.`,
	RunE: runStop,
}

var stopAll bool

func init() {
	stopCmd.Flags().BoolVarP(&stopAll, "all", "a", false, "Stop every running VM")
}

func runStop(cmd *cobra.Command, args []string) error {
	if stopAll == (len(args) > 0) {
		return errors.New("give VM names or --all")
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	if stopAll {
		names := a.svc.Registry().Names()
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No VMs running.")
			return nil
		}
		if err := a.svc.StopAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stopped %d VM(s)\n", len(names))
		return nil
	}

	var errs []error
	for _, name := range args {
		if err := a.svc.Stop(cmd.Context(), name); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stopped '%s'\n", name)
	}
	return errors.Join(errs...)
}
