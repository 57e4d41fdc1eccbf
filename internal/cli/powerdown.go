package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var powerdownCmd = &cobra.Command{
	Use:   "powerdown <name>",
	Short: "Ask the guest to shut down",
	Long: `Press the virtual ACPI power button of a VM through its QMP monitor. The
guest decides whether and when to shut down. With --wait the command waits
for the emulator to exit.`,
	Args: cobra.ExactArgs(1),
	RunE: runPowerdown,
}

var powerdownWait time.Duration

func init() {
	powerdownCmd.Flags().DurationVarP(&powerdownWait, "wait", "w", 0, "Wait up to this long for the VM to exit")
}

func runPowerdown(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.svc.Powerdown(cmd.Context(), name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent power-down request to '%s'\n", name)

	if powerdownWait <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), powerdownWait)
	defer cancel()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	for {
		a.svc.Reconcile()
		if !a.svc.Registry().IsRunning(name) {
			fmt.Fprintf(cmd.OutOrStdout(), "'%s' has shut down\n", name)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("'%s' still running after %s; use 'qemumgr stop %s' to force it", name, powerdownWait, name)
		case <-ticker.C:
		}
	}
}
