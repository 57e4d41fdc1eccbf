package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/javanstorm/qemumgr/pkg/qemu"
)

// ValidationError represents a configuration issue.
type ValidationError struct {
	Field   string
	Message string
	Fatal   bool // true = can't proceed, false = warning only
}

// ValidateConfig checks configuration for consistency and against the
// probed host. Returns a list of validation errors/warnings.
func ValidateConfig(cfg *Config, host qemu.HostInfo) []ValidationError {
	var errs []ValidationError
	fatal := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Fatal: true})
	}
	warn := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.MinCPUs < 1 || cfg.MinCPUs > cfg.MaxCPUs {
		fatal("min_cpus", "CPU bounds %d..%d are invalid", cfg.MinCPUs, cfg.MaxCPUs)
	} else if cfg.DefaultCPUs < cfg.MinCPUs || cfg.DefaultCPUs > cfg.MaxCPUs {
		fatal("default_cpus", "default %d is outside %d..%d", cfg.DefaultCPUs, cfg.MinCPUs, cfg.MaxCPUs)
	}

	if cfg.MinMemoryMB < 1 || cfg.MinMemoryMB > cfg.MaxMemoryMB {
		fatal("min_memory_mb", "memory bounds %d..%d MB are invalid", cfg.MinMemoryMB, cfg.MaxMemoryMB)
	} else if cfg.DefaultMemoryMB < cfg.MinMemoryMB || cfg.DefaultMemoryMB > cfg.MaxMemoryMB {
		fatal("default_memory_mb", "default %d MB is outside %d..%d", cfg.DefaultMemoryMB, cfg.MinMemoryMB, cfg.MaxMemoryMB)
	}

	if !qemu.VideoAdapter(cfg.DefaultVGA).Valid() {
		fatal("default_vga", "unknown video adapter %q", cfg.DefaultVGA)
	}
	if _, err := qemu.ParseAccel(cfg.Accel); err != nil {
		fatal("accel", "unknown accelerator %q", cfg.Accel)
	}

	if cfg.StopTimeout <= 0 {
		fatal("stop_timeout", "must be positive")
	}
	if cfg.PollInterval <= 0 {
		fatal("poll_interval", "must be positive")
	}
	if cfg.SettleDelay < 0 {
		fatal("settle_delay", "must not be negative")
	}
	if cfg.DiskTimeout <= 0 {
		fatal("disk_timeout", "must be positive")
	}
	if cfg.MaxDiskGB < 1 {
		fatal("max_disk_gb", "must be at least 1")
	}

	if !slices.Contains([]string{"console", "json"}, cfg.LogFormat) {
		fatal("log_format", "must be console or json, got %q", cfg.LogFormat)
	}

	if !host.SystemFound {
		warn("qemu_binary", "%s not found on PATH; VMs cannot be started", cfg.QemuBinary)
	}
	if !host.ImgFound {
		warn("qemu_img_binary", "%s not found on PATH; disk operations will fail", cfg.QemuImgBinary)
	}
	if host.OS == qemu.OSLinux && !host.KVM && host.Accel == qemu.AccelTCG {
		warn("accel", "/dev/kvm is not usable; falling back to software emulation (tcg)")
	}

	return errs
}

// HasFatal reports whether any error prevents running.
func HasFatal(errs []ValidationError) bool {
	return slices.ContainsFunc(errs, func(e ValidationError) bool { return e.Fatal })
}

// FormatValidationErrors returns human-readable error summary.
func FormatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Configuration warnings:\n")
	for _, e := range errors {
		prefix := "Warning"
		if e.Fatal {
			prefix = "Error"
		}
		fmt.Fprintf(&b, "  %s [%s]: %s\n", prefix, e.Field, e.Message)
	}
	return b.String()
}
