package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/qemumgr/internal/terminal"
	"github.com/javanstorm/qemumgr/internal/vm"
)

var shutdownCmd = &cobra.Command{
	Use:   "shutdown <name>",
	Short: "Shut down a VM after confirmation",
	Long: `Stop a VM after asking for confirmation, since unsaved guest state is
lost. Without a terminal the answer defaults to no; pass --yes to skip the
question.`,
	Args: cobra.ExactArgs(1),
	RunE: runShutdown,
}

var shutdownYes bool

func init() {
	shutdownCmd.Flags().BoolVarP(&shutdownYes, "yes", "y", false, "Do not ask for confirmation")
}

func runShutdown(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	if !a.svc.Registry().IsRunning(name) {
		return fmt.Errorf("%w: %s", vm.ErrNotRunning, name)
	}

	if !shutdownYes {
		ok, err := terminal.Stdio().Confirm(fmt.Sprintf("Shut down '%s'? Unsaved work in the guest will be lost.", name), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
	}

	if err := a.svc.Shutdown(cmd.Context(), name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Shut down '%s'\n", name)
	return nil
}
