package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/javanstorm/qemumgr/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the configuration in effect, merged from defaults, config.yaml and
QEMUMGR_* environment variables, as YAML.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print configuration and data locations",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configInitForce bool

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Global
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	out := cmd.OutOrStdout()
	if used := config.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "# from %s\n", used)
	} else {
		fmt.Fprintln(out, "# defaults (no config file)")
	}
	_, err = out.Write(data)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	paths, err := config.GetPaths()
	if err != nil {
		return err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return err
	}

	if _, err := os.Stat(paths.ConfigFile); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", paths.ConfigFile)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(paths.ConfigFile, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", paths.ConfigFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	paths, err := config.GetPaths()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config file: %s\n", paths.ConfigFile)
	fmt.Fprintf(out, "Data:        %s\n", paths.DataDir)
	fmt.Fprintf(out, "VMs:         %s\n", paths.VMsFile)
	fmt.Fprintf(out, "Disks:       %s\n", paths.DisksFile)
	fmt.Fprintf(out, "Run state:   %s\n", paths.RunDir)
	fmt.Fprintf(out, "Logs:        %s\n", paths.LogDir)
	fmt.Fprintf(out, "Backups:     %s\n", paths.BackupDir)
	return nil
}
