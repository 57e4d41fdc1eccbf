package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restartCmd = &cobra.Command{
	Use:   "restart <name>",
	Short: "Restart a VM",
	Long:  `Stop a VM, wait for the settle delay and start it again. A stopped VM is started.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRestart,
}

func runRestart(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.svc.Restart(cmd.Context(), args[0]); err != nil {
		return a.explainStartError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restarted '%s'\n", args[0])
	return nil
}
