package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/qemumgr/internal/vm"
)

var startCmd = &cobra.Command{
	Use:   "start <name>...",
	Short: "Start VMs",
	Long: `Start one or more VMs in the background. The emulator keeps running after
this command exits; use 'qemumgr stop' or 'qemumgr watch' to manage it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range args {
		if err := a.svc.Start(cmd.Context(), name); err != nil {
			errs = append(errs, a.explainStartError(err))
			continue
		}
		st, _ := a.svc.Status(name)
		if st != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Started '%s' (pid %d)\n", name, st.PID)
		}
	}
	return errors.Join(errs...)
}

// explainStartError adds an install hint when the emulator is missing.
func (a *app) explainStartError(err error) error {
	if !errors.Is(err, vm.ErrSpawnFailed) || a.host.SystemFound {
		return err
	}
	if hint := a.host.InstallHint(); hint != "" {
		return fmt.Errorf("%w\nQEMU is not installed. Install it with: %s", err, hint)
	}
	return err
}
