package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jimmicro/grace"
	"github.com/spf13/cobra"

	"github.com/javanstorm/qemumgr/internal/logging"
	"github.com/javanstorm/qemumgr/internal/terminal"
	"github.com/javanstorm/qemumgr/internal/vm"
)

var watchCmd = &cobra.Command{
	Use:   "watch [name]...",
	Short: "Supervise running VMs",
	Long: `Track running VMs until interrupted, reporting VMs whose emulator exits.
Named VMs are started first. VMs left running by an earlier qemumgr are
adopted, terminated or left alone as chosen at startup.

On exit every supervised VM is stopped unless --detach is given.`,
	RunE: runWatch,
}

// Orphan handling choices
const (
	orphanAdopt     = "adopt"
	orphanTerminate = "terminate"
	orphanLeave     = "leave"
)

var (
	watchDetach  bool
	watchOrphans string
	watchTimeout time.Duration
)

func init() {
	watchCmd.Flags().BoolVar(&watchDetach, "detach", false, "Leave VMs running on exit")
	watchCmd.Flags().Var(newEnumFlag(&watchOrphans, "action", orphanAdopt, orphanTerminate, orphanLeave),
		"orphans", "What to do with VMs from an earlier run: adopt, terminate or leave (default: ask)")
	watchCmd.Flags().DurationVar(&watchTimeout, "shutdown-timeout", 30*time.Second, "Time allowed for stopping VMs on exit")
}

func runWatch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	a, err := buildApp(func(dead []string) {
		for _, name := range dead {
			fmt.Fprintf(out, "VM '%s' has exited\n", name)
		}
	})
	if err != nil {
		return err
	}

	if err := handleOrphans(cmd.Context(), a.svc, terminal.Stdio(), watchOrphans, out); err != nil {
		return err
	}

	for _, name := range args {
		if err := a.svc.Start(cmd.Context(), name); err != nil {
			return a.explainStartError(err)
		}
		fmt.Fprintf(out, "Started '%s'\n", name)
	}

	fmt.Fprintf(out, "Watching %d running VM(s). Press Ctrl+C to exit.\n", a.svc.Registry().Len())

	shepherd := grace.NewShepherd(
		[]grace.Grace{newSupervisor(a.svc, watchDetach)},
		grace.WithTimeout(watchTimeout),
		grace.WithLogger(logging.NewGraceLogger(a.logger)),
	)
	shepherd.Start(cmd.Context())
	return nil
}

// handleOrphans applies action to VMs left running by an earlier manager.
// An empty action asks the user.
func handleOrphans(ctx context.Context, svc *vm.Service, p *terminal.Prompter, action string, out io.Writer) error {
	orphans, err := svc.DetectOrphans()
	if err != nil {
		return fmt.Errorf("detect orphans: %w", err)
	}
	if len(orphans) == 0 {
		return nil
	}

	fmt.Fprintf(out, "Found %d VM(s) still running from an earlier session:\n", len(orphans))
	for _, o := range orphans {
		note := ""
		if !o.Known {
			note = " (no longer defined)"
		}
		fmt.Fprintf(out, "  %s (pid %d, started %s)%s\n", o.Name, o.PID, o.StartedAt.Format("2006-01-02 15:04:05"), note)
	}

	if action == "" {
		action, err = p.Choose("Adopt, terminate or leave them?", []string{orphanAdopt, orphanTerminate, orphanLeave}, orphanAdopt)
		if err != nil {
			return err
		}
	}

	switch action {
	case orphanAdopt:
		names := svc.Adopt(orphans)
		fmt.Fprintf(out, "Adopted %d VM(s)\n", len(names))
	case orphanTerminate:
		if err := svc.TerminateOrphans(ctx, orphans); err != nil {
			return fmt.Errorf("terminate orphans: %w", err)
		}
		fmt.Fprintf(out, "Terminated %d VM(s)\n", len(orphans))
	case orphanLeave:
		fmt.Fprintln(out, "Leaving them running unsupervised.")
	default:
		return fmt.Errorf("unknown orphan action %q", action)
	}
	return nil
}

// supervisor runs the reconcile loop under grace and stops VMs on
// shutdown unless detached.
type supervisor struct {
	svc    *vm.Service
	detach bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newSupervisor(svc *vm.Service, detach bool) *supervisor {
	return &supervisor{svc: svc, detach: detach}
}

// Run reconciles until Shutdown is called or ctx is done.
func (s *supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	return s.svc.Run(ctx)
}

// Shutdown ends the reconcile loop and stops every running VM.
func (s *supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if s.detach {
		return nil
	}
	return s.svc.StopAll(ctx)
}

func (s *supervisor) Name() string {
	return "vm supervisor"
}
