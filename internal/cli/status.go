package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/qemumgr/internal/vm"
)

var statusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show VM status and information",
	Long: `Without a name, summarize which VMs are running. With a name, show the
VM's settings, launch history and, when a QMP monitor is available, the
guest's own run state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		statuses, err := a.svc.Statuses()
		if err != nil {
			return err
		}
		running := 0
		for _, st := range statuses {
			if st.State != vm.StateStopped {
				running++
				fmt.Fprintf(out, "%-24s %-8s pid %d since %s\n",
					st.Spec.Name, st.State, st.PID, st.StartedAt.Format("2006-01-02 15:04:05"))
			}
		}
		fmt.Fprintf(out, "%d of %d VM(s) running\n", running, len(statuses))
		return nil
	}

	name := args[0]
	st, err := a.svc.Status(name)
	if err != nil {
		return err
	}
	printVMDetails(out, st)
	fmt.Fprintln(out)

	if st.State != vm.StateStopped {
		gs, err := a.svc.GuestStatus(name)
		switch {
		case err == nil:
			fmt.Fprintf(out, "Guest: %s\n", gs.Status)
		case errors.Is(err, vm.ErrNoMonitor):
			fmt.Fprintln(out, "Guest: unknown (no QMP monitor)")
		default:
			fmt.Fprintf(out, "Guest: error querying (%v)\n", err)
		}
		fmt.Fprintln(out)
	}

	h, err := a.svc.History(name)
	if err != nil {
		fmt.Fprintf(out, "History: error loading (%v)\n", err)
	} else if h.BootCount == 0 {
		fmt.Fprintln(out, "History: never booted")
	} else {
		fmt.Fprintln(out, "History:")
		fmt.Fprintf(out, "  Boot count: %d\n", h.BootCount)
		if !h.LastBoot.IsZero() {
			fmt.Fprintf(out, "  Last boot: %s\n", h.LastBoot.Format("2006-01-02 15:04:05"))
		}
		if !h.LastShutdown.IsZero() {
			fmt.Fprintf(out, "  Last shutdown: %s\n", h.LastShutdown.Format("2006-01-02 15:04:05"))
			if h.CleanShutdown {
				fmt.Fprintln(out, "  Shutdown type: clean")
			} else {
				fmt.Fprintln(out, "  Shutdown type: unclean")
			}
		}
		if h.ForcedStops > 0 {
			fmt.Fprintf(out, "  Forced stops: %d\n", h.ForcedStops)
		}
	}

	if backups, err := a.svc.Backups().List(name); err == nil && len(backups) > 0 {
		last := backups[len(backups)-1]
		fmt.Fprintf(out, "Backups: %d (latest %s)\n", len(backups), last.Label)
	}
	return nil
}
