package cli

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/javanstorm/qemumgr/internal/config"
	"github.com/javanstorm/qemumgr/internal/logging"
	"github.com/javanstorm/qemumgr/internal/vm"
	"github.com/javanstorm/qemumgr/pkg/qemu"
	"github.com/javanstorm/qemumgr/pkg/qemuimg"
)

// app holds the components commands work with.
type app struct {
	cfg    *config.Config
	paths  *config.Paths
	logger zerolog.Logger

	host     qemu.HostInfo
	problems []config.ValidationError

	store *vm.Store
	svc   *vm.Service
	disks *vm.DiskService
}

// newApp builds the service and adopts VMs started by earlier invocations,
// so a VM launched by one command can be stopped by the next.
func newApp() (*app, error) {
	a, err := buildApp(nil)
	if err != nil {
		return nil, err
	}
	adopted, err := a.svc.AdoptOrphans()
	if err != nil {
		a.logger.Warn().Err(err).Msg("orphan detection failed")
	}
	if len(adopted) > 0 {
		a.logger.Debug().Strs("vms", adopted).Msg("adopted running vms")
	}
	return a, nil
}

// buildApp wires config, logging, host probe, stores and services without
// touching running processes. onChange receives the names of VMs found
// dead by the reconcile loop.
func buildApp(onChange func(dead []string)) (*app, error) {
	cfg := config.Global
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	paths, err := config.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to determine paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}

	opts := logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}
	if logLevelFlag != "" {
		opts.Level = logLevelFlag
	}
	if logFormatFlag != "" {
		opts.Format = logFormatFlag
	}
	logger, err := logging.New(opts)
	if err != nil {
		return nil, err
	}

	accel, err := qemu.ParseAccel(cfg.Accel)
	if err != nil {
		return nil, err
	}
	host := qemu.Probe(qemu.ProbeOptions{
		SystemBinary: cfg.QemuBinary,
		ImgBinary:    cfg.QemuImgBinary,
		Accel:        accel,
		Display:      cfg.Display,
	})

	problems := config.ValidateConfig(cfg, host)
	if config.HasFatal(problems) {
		return nil, fmt.Errorf("invalid configuration\n%s", config.FormatValidationErrors(problems))
	}
	for _, p := range problems {
		logger.Debug().Str("field", p.Field).Msg(p.Message)
	}

	limits := vm.Limits{
		MinCPUs:     cfg.MinCPUs,
		MaxCPUs:     cfg.MaxCPUs,
		MinMemoryMB: cfg.MinMemoryMB,
		MaxMemoryMB: cfg.MaxMemoryMB,
	}

	store := vm.NewStore(paths.VMsFile, limits)
	svc := vm.NewService(vm.ServiceOptions{
		Store:   store,
		Markers: vm.NewMarkerStore(paths.RunDir, logger),
		History: vm.NewHistoryStore(paths.StateDir),
		Backups: vm.NewBackupManager(paths.BackupDir),
		Config: vm.ServiceConfig{
			Host:         host.Host(),
			Limits:       limits,
			StopTimeout:  cfg.StopTimeout,
			SettleDelay:  cfg.SettleDelay,
			PollInterval: cfg.PollInterval,
			EnableQMP:    cfg.EnableQMP,
			LogDir:       paths.LogDir,
		},
		Logger:           logger,
		OnLivenessChange: onChange,
	})

	img := qemuimg.New(host.ImgBinary).WithTimeout(cfg.DiskTimeout)
	disks := vm.NewDiskService(img, vm.NewDiskStore(paths.DisksFile), vm.DiskOptions{
		MaxSizeGB:       cfg.MaxDiskGB,
		RestrictedPaths: cfg.RestrictedPaths,
	}, logger)

	return &app{
		cfg:      cfg,
		paths:    paths,
		logger:   logger,
		host:     host,
		problems: problems,
		store:    store,
		svc:      svc,
		disks:    disks,
	}, nil
}

// defaults returns the values used for new and detected VMs.
func (a *app) defaults() vm.Defaults {
	return vm.Defaults{
		CPUs:     a.cfg.DefaultCPUs,
		MemoryMB: a.cfg.DefaultMemoryMB,
		VGA:      qemu.VideoAdapter(a.cfg.DefaultVGA),
	}
}
