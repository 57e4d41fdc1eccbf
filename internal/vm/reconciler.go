package vm

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/javanstorm/qemumgr/pkg/hypervisor"
)

// Orphan is a VM process started by an earlier manager that is still
// running but not in the registry.
type Orphan struct {
	Name      string
	PID       int
	LaunchID  string
	StartedAt time.Time

	// Known is true when a spec with the same name exists.
	Known bool
}

// Reconciler keeps the registry in line with the processes that are
// actually alive. It never restarts anything.
type Reconciler struct {
	registry    *ProcessRegistry
	markers     *MarkerStore
	driver      hypervisor.Driver
	store       MetadataStore
	history     *HistoryStore
	stopTimeout time.Duration
	logger      zerolog.Logger
}

// ReconcilerOptions wires a Reconciler. History may be nil.
type ReconcilerOptions struct {
	Registry    *ProcessRegistry
	Markers     *MarkerStore
	Driver      hypervisor.Driver
	Store       MetadataStore
	History     *HistoryStore
	StopTimeout time.Duration
	Logger      zerolog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(opts ReconcilerOptions) *Reconciler {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	return &Reconciler{
		registry:    opts.Registry,
		markers:     opts.Markers,
		driver:      opts.Driver,
		store:       opts.Store,
		history:     opts.History,
		stopTimeout: opts.StopTimeout,
		logger:      opts.Logger,
	}
}

// Tick drops every registry entry whose process has exited and returns the
// dropped names in order. Only the non-blocking Alive check is used.
func (r *Reconciler) Tick() []string {
	var dead []string
	for name, vm := range r.registry.AllRunning() {
		if vm.Handle.Alive() {
			continue
		}
		r.registry.Unregister(name)
		r.forget(name)

		clean := false
		if ex, ok := vm.Handle.(hypervisor.Exiter); ok {
			clean = ex.ExitErr() == nil
		}
		r.recordShutdown(name, clean, false)

		r.logger.Info().Str("vm", name).Int("pid", vm.Handle.PID()).Bool("clean", clean).Msg("vm exited")
		dead = append(dead, name)
	}
	return dead
}

// DetectOrphans lists launch markers whose process is alive and not
// registered. Markers of dead processes are removed.
func (r *Reconciler) DetectOrphans() ([]Orphan, error) {
	markers, err := r.markers.List()
	if err != nil {
		return nil, err
	}

	var orphans []Orphan
	for _, mk := range markers {
		if vm, ok := r.registry.Get(mk.Name); ok {
			if vm.Handle.PID() != mk.PID {
				r.logger.Warn().Str("vm", mk.Name).Int("pid", mk.PID).Msg("marker does not match registered process")
			}
			continue
		}

		if !r.driver.Alive(mk.PID) || !r.ownedBy(mk) {
			r.logger.Debug().Str("vm", mk.Name).Int("pid", mk.PID).Msg("removing stale launch marker")
			r.forget(mk.Name)
			r.recordShutdown(mk.Name, false, false)
			continue
		}

		known := false
		if r.store != nil {
			_, err := r.store.Get(mk.Name)
			known = err == nil
		}
		orphans = append(orphans, Orphan{
			Name:      mk.Name,
			PID:       mk.PID,
			LaunchID:  mk.LaunchID,
			StartedAt: mk.StartedAt,
			Known:     known,
		})
	}
	return orphans, nil
}

// ownedBy reports whether the process behind mk still carries the VM name
// on its command line. Platforms that hide command lines trust the marker.
func (r *Reconciler) ownedBy(mk Marker) bool {
	args, err := r.driver.Args(mk.PID)
	if err != nil {
		return errors.Is(err, hypervisor.ErrUnsupportedPlatform)
	}
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-name" && args[i+1] == mk.Name {
			return true
		}
	}
	return false
}

// Adopt registers orphans as running. Orphans that exited meanwhile or
// whose name got registered are skipped and not returned.
func (r *Reconciler) Adopt(orphans []Orphan) []string {
	var adopted []string
	for _, o := range orphans {
		h, err := r.driver.Attach(o.PID)
		if err != nil {
			r.logger.Warn().Err(err).Str("vm", o.Name).Int("pid", o.PID).Msg("cannot adopt vm")
			r.forget(o.Name)
			continue
		}
		err = r.registry.Add(RunningVM{
			Name:      o.Name,
			Handle:    h,
			StartedAt: o.StartedAt,
			LaunchID:  o.LaunchID,
			Adopted:   true,
		})
		if err != nil {
			r.logger.Warn().Err(err).Str("vm", o.Name).Msg("cannot adopt vm")
			continue
		}
		r.logger.Info().Str("vm", o.Name).Int("pid", o.PID).Msg("adopted running vm")
		adopted = append(adopted, o.Name)
	}
	slices.Sort(adopted)
	return adopted
}

// Terminate stops orphans in parallel, gracefully first. Markers are removed
// for every orphan confirmed dead.
func (r *Reconciler) Terminate(ctx context.Context, orphans []Orphan) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, o := range orphans {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			h, err := r.driver.Attach(o.PID)
			if errors.Is(err, hypervisor.ErrProcessNotFound) {
				r.forget(o.Name)
				return nil
			}
			if err != nil {
				return err
			}

			res, err := hypervisor.StopGracefully(h, r.stopTimeout)
			if err != nil {
				return err
			}
			r.forget(o.Name)
			r.recordShutdown(o.Name, true, res.Forced)
			r.logger.Info().Str("vm", o.Name).Bool("forced", res.Forced).Msg("terminated orphaned vm")
			return nil
		})
	}
	return g.Wait()
}

func (r *Reconciler) forget(name string) {
	if err := r.markers.Remove(name); err != nil {
		r.logger.Warn().Err(err).Str("vm", name).Msg("remove launch marker")
	}
}

func (r *Reconciler) recordShutdown(name string, clean, forced bool) {
	if r.history == nil {
		return
	}
	if err := r.history.RecordShutdown(name, clean, forced); err != nil {
		r.logger.Warn().Err(err).Str("vm", name).Msg("record shutdown")
	}
}
