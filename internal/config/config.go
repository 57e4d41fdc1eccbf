package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all qemumgr configuration.
type Config struct {
	// QemuBinary is the system emulator, looked up on PATH.
	QemuBinary string `mapstructure:"qemu_binary" yaml:"qemu_binary"`

	// QemuImgBinary is the disk image tool, looked up on PATH.
	QemuImgBinary string `mapstructure:"qemu_img_binary" yaml:"qemu_img_binary"`

	// Accel is the accelerator: auto, none, kvm, hvf, whpx, hax or tcg.
	Accel string `mapstructure:"accel" yaml:"accel"`

	// Display overrides the platform display backend (empty = platform default).
	Display string `mapstructure:"display" yaml:"display"`

	MinCPUs     int `mapstructure:"min_cpus" yaml:"min_cpus"`
	MaxCPUs     int `mapstructure:"max_cpus" yaml:"max_cpus"`
	DefaultCPUs int `mapstructure:"default_cpus" yaml:"default_cpus"`

	MinMemoryMB     int `mapstructure:"min_memory_mb" yaml:"min_memory_mb"`
	MaxMemoryMB     int `mapstructure:"max_memory_mb" yaml:"max_memory_mb"`
	DefaultMemoryMB int `mapstructure:"default_memory_mb" yaml:"default_memory_mb"`

	// DefaultVGA is the adapter for new and detected VMs.
	DefaultVGA string `mapstructure:"default_vga" yaml:"default_vga"`

	// StopTimeout is how long a VM gets to exit before it is killed.
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`

	// SettleDelay is the pause between stop and start on restart.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`

	// PollInterval is the liveness check cadence.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	// DiskTimeout bounds a single qemu-img run.
	DiskTimeout time.Duration `mapstructure:"disk_timeout" yaml:"disk_timeout"`

	// MaxDiskGB is the largest disk that may be created.
	MaxDiskGB int `mapstructure:"max_disk_gb" yaml:"max_disk_gb"`

	// SearchPaths are scanned for existing qcow2 images.
	SearchPaths []string `mapstructure:"search_paths" yaml:"search_paths"`

	// RestrictedPaths may never hold new disk images.
	RestrictedPaths []string `mapstructure:"restricted_paths" yaml:"restricted_paths"`

	// EnableQMP gives each VM a QMP socket for ACPI power-down.
	EnableQMP bool `mapstructure:"enable_qmp" yaml:"enable_qmp"`

	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// LogFormat is console or json.
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()

	var searchPaths []string
	searchPaths = append(searchPaths, "/var/lib/libvirt/images")
	if home != "" {
		searchPaths = append(searchPaths,
			filepath.Join(home, "VirtualMachines"),
			filepath.Join(home, "QEMU"),
		)
	}
	searchPaths = append(searchPaths, "/opt/qemu")

	return &Config{
		QemuBinary:      "qemu-system-x86_64",
		QemuImgBinary:   "qemu-img",
		Accel:           "auto",
		Display:         "",
		MinCPUs:         1,
		MaxCPUs:         16,
		DefaultCPUs:     2,
		MinMemoryMB:     256,
		MaxMemoryMB:     131072, // 128GB
		DefaultMemoryMB: 1024,
		DefaultVGA:      "qxl",
		StopTimeout:     5 * time.Second,
		SettleDelay:     time.Second,
		PollInterval:    2 * time.Second,
		DiskTimeout:     300 * time.Second,
		MaxDiskGB:       2000,
		SearchPaths:     searchPaths,
		RestrictedPaths: []string{"/", "/boot", "/etc", "/sys", "/proc", "/dev", "/root"},
		EnableQMP:       true,
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

// Global holds the loaded configuration.
var Global *Config

// Load reads configuration from file, environment, and defaults into Global.
func Load() error {
	paths, err := GetPaths()
	if err != nil {
		return fmt.Errorf("failed to determine paths: %w", err)
	}

	cfg, err := LoadWith(viper.GetViper(), paths)
	if err != nil {
		return err
	}
	Global = cfg
	return nil
}

// LoadWith reads configuration through v, searching the directories in
// paths for config.yaml.
func LoadWith(v *viper.Viper, paths *Paths) (*Config, error) {
	defaults := DefaultConfig()
	v.SetDefault("qemu_binary", defaults.QemuBinary)
	v.SetDefault("qemu_img_binary", defaults.QemuImgBinary)
	v.SetDefault("accel", defaults.Accel)
	v.SetDefault("display", defaults.Display)
	v.SetDefault("min_cpus", defaults.MinCPUs)
	v.SetDefault("max_cpus", defaults.MaxCPUs)
	v.SetDefault("default_cpus", defaults.DefaultCPUs)
	v.SetDefault("min_memory_mb", defaults.MinMemoryMB)
	v.SetDefault("max_memory_mb", defaults.MaxMemoryMB)
	v.SetDefault("default_memory_mb", defaults.DefaultMemoryMB)
	v.SetDefault("default_vga", defaults.DefaultVGA)
	v.SetDefault("stop_timeout", defaults.StopTimeout)
	v.SetDefault("settle_delay", defaults.SettleDelay)
	v.SetDefault("poll_interval", defaults.PollInterval)
	v.SetDefault("disk_timeout", defaults.DiskTimeout)
	v.SetDefault("max_disk_gb", defaults.MaxDiskGB)
	v.SetDefault("search_paths", defaults.SearchPaths)
	v.SetDefault("restricted_paths", defaults.RestrictedPaths)
	v.SetDefault("enable_qmp", defaults.EnableQMP)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(paths.DataDir)
	v.AddConfigPath(paths.ConfigDir)

	// Environment variable support: QEMUMGR_QEMU_BINARY, QEMUMGR_MAX_CPUS, etc.
	v.SetEnvPrefix("QEMUMGR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// ConfigFileUsed returns the path of the config file being used, if any.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
