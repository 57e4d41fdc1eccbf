// Package cli provides the command-line interface for qemumgr.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/qemumgr/internal/config"
	"github.com/javanstorm/qemumgr/internal/version"
)

// Global flags
var (
	logLevelFlag  string
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "qemumgr",
	Short: "qemumgr - manage local QEMU virtual machines",
	Long: `qemumgr keeps a small catalog of QEMU virtual machines and their disks,
launches them as background processes and tracks which ones are running.

Run 'qemumgr watch' to supervise running VMs; other commands act once and
exit, leaving VMs running.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		switch cmd.Name() {
		case "version", "completion", "help":
			return nil
		}
		return config.Load()
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format (console, json)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(shutdownCmd)
	rootCmd.AddCommand(powerdownCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(configCmd)
}
