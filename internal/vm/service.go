package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jimmicro/grace"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/javanstorm/qemumgr/internal/logging"
	"github.com/javanstorm/qemumgr/pkg/hypervisor"
	"github.com/javanstorm/qemumgr/pkg/qemu"
)

const (
	// DefaultStopTimeout is how long a VM gets to exit before it is killed.
	DefaultStopTimeout = 5 * time.Second

	// DefaultSettleDelay separates the stop and start halves of a restart.
	DefaultSettleDelay = time.Second

	// DefaultPollInterval is the reconcile period.
	DefaultPollInterval = 2 * time.Second
)

// ServiceConfig tunes the lifecycle service.
type ServiceConfig struct {
	Host   qemu.Host
	Limits Limits

	StopTimeout  time.Duration
	SettleDelay  time.Duration
	PollInterval time.Duration

	// EnableQMP gives each VM a QMP socket next to its marker.
	EnableQMP bool

	// LogDir receives one <name>.log per VM with the emulator's output.
	// Empty discards the output.
	LogDir string
}

// ServiceOptions wires a Service. Registry, Driver and History are
// optional.
type ServiceOptions struct {
	Store    MetadataStore
	Registry *ProcessRegistry
	Driver   hypervisor.Driver
	Markers  *MarkerStore
	History  *HistoryStore
	Backups  *BackupManager
	Config   ServiceConfig
	Logger   zerolog.Logger

	// OnLivenessChange is called with the names of VMs found dead by a
	// reconcile pass.
	OnLivenessChange func(dead []string)
}

// Service starts, stops and watches VMs. Every operation serializes on one
// mutex.
type Service struct {
	mu sync.Mutex

	store      MetadataStore
	registry   *ProcessRegistry
	driver     hypervisor.Driver
	markers    *MarkerStore
	history    *HistoryStore
	backups    *BackupManager
	reconciler *Reconciler
	cfg        ServiceConfig
	logger     zerolog.Logger
	onChange   func([]string)
}

// NewService creates a lifecycle service.
func NewService(opts ServiceOptions) *Service {
	cfg := opts.Config
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	if opts.Registry == nil {
		opts.Registry = NewProcessRegistry()
	}
	if opts.Driver == nil {
		opts.Driver = hypervisor.NewDriver()
	}

	s := &Service{
		store:    opts.Store,
		registry: opts.Registry,
		driver:   opts.Driver,
		markers:  opts.Markers,
		history:  opts.History,
		backups:  opts.Backups,
		cfg:      cfg,
		logger:   opts.Logger,
		onChange: opts.OnLivenessChange,
	}
	s.reconciler = NewReconciler(ReconcilerOptions{
		Registry:    s.registry,
		Markers:     s.markers,
		Driver:      s.driver,
		Store:       s.store,
		History:     s.history,
		StopTimeout: cfg.StopTimeout,
		Logger:      s.logger,
	})
	return s
}

// Registry returns the process registry.
func (s *Service) Registry() *ProcessRegistry {
	return s.registry
}

// Store returns the metadata store.
func (s *Service) Store() MetadataStore {
	return s.store
}

// Start launches the VM called name.
func (s *Service) Start(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.start(ctx, name)
}

func (s *Service) start(ctx context.Context, name string) error {
	spec, err := s.store.Get(name)
	if err != nil {
		return err
	}
	if err := spec.Validate(s.cfg.Limits); err != nil {
		return err
	}
	if s.registry.IsRunning(name) {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	// A VM left running unadopted still owns its marker and disk.
	if mk, err := s.markers.Read(name); err == nil && s.driver.Alive(mk.PID) && s.reconciler.ownedBy(*mk) {
		return fmt.Errorf("%w: %s (unadopted, pid %d)", ErrAlreadyRunning, name, mk.PID)
	}

	mc := spec.MachineConfig()
	mc.PIDFile = s.markers.PIDFile(name)
	if s.cfg.EnableQMP {
		mc.QMPSocket = s.markers.QMPSocket(name)
	}
	argv, err := qemu.BuildCommand(mc, s.cfg.Host).Argv()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	// Leftovers of an earlier launch would confuse QEMU and orphan detection.
	if err := s.markers.Remove(name); err != nil {
		s.logger.Warn().Err(err).Str("vm", name).Msg("clear old runtime files")
	}
	if err := os.MkdirAll(s.markers.Dir(), 0755); err != nil {
		return fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	out, closeOut, err := s.openLog(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}
	defer closeOut()

	s.logger.Debug().Str("vm", name).Strs("argv", argv).Msg("spawning emulator")
	h, err := s.driver.Spawn(ctx, argv, hypervisor.SpawnOptions{Output: out})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	vm := RunningVM{
		Name:      name,
		Handle:    h,
		StartedAt: time.Now(),
		LaunchID:  NewLaunchID(),
	}
	err = s.markers.Write(Marker{
		Name:      name,
		PID:       h.PID(),
		LaunchID:  vm.LaunchID,
		Binary:    argv[0],
		StartedAt: vm.StartedAt,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("vm", name).Msg("write launch marker")
	}
	if err := s.registry.Add(vm); err != nil {
		return err
	}
	if s.history != nil {
		if err := s.history.RecordBoot(name, h.PID()); err != nil {
			s.logger.Warn().Err(err).Str("vm", name).Msg("record boot")
		}
	}

	s.logger.Info().Str("vm", name).Int("pid", h.PID()).Msg("vm started")
	return nil
}

// openLog opens the per-VM output log.
func (s *Service) openLog(name string) (io.Writer, func(), error) {
	if s.cfg.LogDir == "" {
		return nil, func() {}, nil
	}
	if err := os.MkdirAll(s.cfg.LogDir, 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(s.cfg.LogDir, name+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// Stop ends the VM called name: a graceful request first, a kill after the
// stop timeout. The VM leaves the registry even when the stop fails.
func (s *Service) Stop(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stop(ctx, name)
}

func (s *Service) stop(ctx context.Context, name string) error {
	vm, ok := s.registry.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	res, stopErr := hypervisor.StopGracefully(vm.Handle, s.cfg.StopTimeout)
	s.registry.Unregister(name)
	if err := s.markers.Remove(name); err != nil {
		s.logger.Warn().Err(err).Str("vm", name).Msg("remove launch marker")
	}
	if s.history != nil {
		// An adopted VM's exit status cannot be observed.
		if err := s.history.RecordShutdown(name, !vm.Adopted, res.Forced); err != nil {
			s.logger.Warn().Err(err).Str("vm", name).Msg("record shutdown")
		}
	}

	if stopErr != nil {
		s.logger.Error().Err(stopErr).Str("vm", name).Msg("vm did not stop")
		return fmt.Errorf("stop %s: %w", name, stopErr)
	}
	if res.Forced {
		s.logger.Warn().Str("vm", name).Dur("elapsed", res.Elapsed).Msg("vm killed after stop timeout")
	} else {
		s.logger.Info().Str("vm", name).Dur("elapsed", res.Elapsed).Msg("vm stopped")
	}
	return nil
}

// Restart stops name, waits the settle delay and starts it again. A VM
// that is not running is simply started.
func (s *Service) Restart(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.stop(ctx, name)
	switch {
	case errors.Is(err, ErrNotRunning):
		s.logger.Debug().Str("vm", name).Msg("restart of stopped vm, starting")
	case err != nil:
		return err
	default:
		if err := sleepCtx(ctx, s.cfg.SettleDelay); err != nil {
			return err
		}
	}
	return s.start(ctx, name)
}

// Shutdown is Stop. Callers confirm with the user first.
func (s *Service) Shutdown(ctx context.Context, name string) error {
	return s.Stop(ctx, name)
}

// Powerdown presses the virtual ACPI power button. The VM stays registered
// until a reconcile pass sees it exit.
func (s *Service) Powerdown(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registry.IsRunning(name) {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	if !s.cfg.EnableQMP {
		return fmt.Errorf("%w: %s", ErrNoMonitor, name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := qmpExecute(s.markers.QMPSocket(name), "system_powerdown"); err != nil {
		return fmt.Errorf("powerdown %s: %w", name, err)
	}
	s.logger.Info().Str("vm", name).Msg("acpi power button pressed")
	return nil
}

// GuestStatus queries the guest run state over QMP.
func (s *Service) GuestStatus(name string) (*GuestStatus, error) {
	if !s.registry.IsRunning(name) {
		return nil, fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	return queryStatus(s.markers.QMPSocket(name))
}

// StopAll stops every running VM concurrently.
func (s *Service) StopAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var g errgroup.Group
	for name := range s.registry.AllRunning() {
		g.Go(func() error {
			err := s.stop(ctx, name)
			if errors.Is(err, ErrNotRunning) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// Reconcile runs one liveness pass and returns the names found dead.
func (s *Service) Reconcile() []string {
	s.mu.Lock()
	dead := s.reconciler.Tick()
	s.mu.Unlock()

	if len(dead) > 0 && s.onChange != nil {
		s.onChange(dead)
	}
	return dead
}

// Run reconciles once, then every poll interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	err := grace.RunPeriodicTask(ctx, "reconcile", s.cfg.PollInterval,
		func(context.Context, time.Time) error {
			s.Reconcile()
			return nil
		},
		grace.WithRunOnStart(true),
		grace.WithStopOnTaskError(false),
		grace.WithTaskLogger(logging.NewGraceLogger(s.logger)),
	)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// DetectOrphans lists VMs left running by an earlier manager.
func (s *Service) DetectOrphans() ([]Orphan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reconciler.DetectOrphans()
}

// Adopt registers orphans so they can be stopped like any started VM.
func (s *Service) Adopt(orphans []Orphan) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reconciler.Adopt(orphans)
}

// AdoptOrphans detects and adopts every orphan.
func (s *Service) AdoptOrphans() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orphans, err := s.reconciler.DetectOrphans()
	if err != nil {
		return nil, err
	}
	return s.reconciler.Adopt(orphans), nil
}

// TerminateOrphans stops orphans without adopting them.
func (s *Service) TerminateOrphans(ctx context.Context, orphans []Orphan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reconciler.Terminate(ctx, orphans)
}

// Delete removes the record and launch history of the stopped VM name.
// The disk image is left alone.
func (s *Service) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry.IsRunning(name) {
		return fmt.Errorf("%w: %s must be stopped first", ErrAlreadyRunning, name)
	}
	if err := s.store.Delete(name); err != nil {
		return err
	}
	if s.history != nil {
		if err := s.history.Remove(name); err != nil {
			s.logger.Warn().Err(err).Str("vm", name).Msg("failed to remove history")
		}
	}
	s.logger.Info().Str("vm", name).Msg("vm deleted")
	return nil
}

// VMStatus pairs a spec with its runtime state.
type VMStatus struct {
	Spec      VMSpec
	State     State
	PID       int
	StartedAt time.Time
}

// Status returns the runtime state of name.
func (s *Service) Status(name string) (*VMStatus, error) {
	spec, err := s.store.Get(name)
	if err != nil {
		return nil, err
	}
	st := s.status(*spec)
	return &st, nil
}

// Statuses returns the runtime state of every stored VM in name order.
func (s *Service) Statuses() ([]VMStatus, error) {
	specs, err := s.store.GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]VMStatus, 0, len(specs))
	for _, spec := range specs {
		out = append(out, s.status(spec))
	}
	return out, nil
}

func (s *Service) status(spec VMSpec) VMStatus {
	st := VMStatus{Spec: spec, State: StateStopped}
	if vm, ok := s.registry.Get(spec.Name); ok {
		st.State = StateRunning
		if vm.Adopted {
			st.State = StateAdopted
		}
		st.PID = vm.Handle.PID()
		st.StartedAt = vm.StartedAt
	}
	return st
}

// History returns the launch history of name.
func (s *Service) History(name string) (*History, error) {
	if s.history == nil {
		return &History{}, nil
	}
	return s.history.Load(name)
}

// stoppedSpec returns the spec of name after checking the VM is not
// running and has a disk.
func (s *Service) stoppedSpec(name string) (*VMSpec, error) {
	if s.backups == nil {
		return nil, errors.New("vm: backups are not configured")
	}
	spec, err := s.store.Get(name)
	if err != nil {
		return nil, err
	}
	if s.registry.IsRunning(name) {
		return nil, fmt.Errorf("%w: %s must be stopped first", ErrAlreadyRunning, name)
	}
	if spec.DiskPath == "" {
		return nil, fmt.Errorf("%w: %s has no disk", ErrDiskNotFound, name)
	}
	return spec, nil
}

// Backup compresses the disk of the stopped VM name.
func (s *Service) Backup(name, label, description string) (*Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spec, err := s.stoppedSpec(name)
	if err != nil {
		return nil, err
	}
	if label == "" {
		label = s.backups.now().Format("20060102-150405")
	}
	b, err := s.backups.Create(name, spec.DiskPath, label, description)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("vm", name).Str("label", label).Int64("bytes", b.DiskSize).Msg("disk backed up")
	return b, nil
}

// RestoreBackup writes a backup over the disk of the stopped VM name.
func (s *Service) RestoreBackup(name, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.stoppedSpec(name); err != nil {
		return err
	}
	if err := s.backups.Restore(name, label); err != nil {
		return err
	}
	s.logger.Info().Str("vm", name).Str("label", label).Msg("disk restored from backup")
	return nil
}

// Backups returns the backup manager.
func (s *Service) Backups() *BackupManager {
	return s.backups
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
