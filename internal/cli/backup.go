package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/javanstorm/qemumgr/internal/terminal"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up and restore VM disks",
	Long:  `Create, list, restore, verify and delete compressed copies of a stopped VM's disk.`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create <vm> [label]",
	Short: "Create a backup",
	Long:  `Compress the disk of a stopped VM. The label defaults to the current time.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list <vm>",
	Short: "List backups",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <vm> <label>",
	Short: "Restore a backup",
	Long:  `Overwrite the disk of a stopped VM with a backup. The backup is verified first.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runBackupRestore,
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <vm> <label>",
	Short: "Delete a backup",
	Args:  cobra.ExactArgs(2),
	RunE:  runBackupDelete,
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify <vm> <label>",
	Short: "Check a backup against its checksum",
	Args:  cobra.ExactArgs(2),
	RunE:  runBackupVerify,
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune <vm>",
	Short: "Delete old backups",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupPrune,
}

var (
	backupDescription string
	backupRestoreYes  bool
	backupPruneAge    time.Duration
)

func init() {
	backupCreateCmd.Flags().StringVarP(&backupDescription, "description", "d", "", "Description for the backup")
	backupRestoreCmd.Flags().BoolVarP(&backupRestoreYes, "yes", "y", false, "Do not ask for confirmation")
	backupPruneCmd.Flags().DurationVar(&backupPruneAge, "older-than", 30*24*time.Hour, "Delete backups older than this")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupDeleteCmd)
	backupCmd.AddCommand(backupVerifyCmd)
	backupCmd.AddCommand(backupPruneCmd)
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	var label string
	if len(args) > 1 {
		label = args[1]
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Backing up '%s'...\n", args[0])
	b, err := a.svc.Backup(args[0], label, backupDescription)
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created backup '%s' (%s)\n", b.Label, formatSize(b.DiskSize))
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	backups, err := a.svc.Backups().List(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(backups) == 0 {
		fmt.Fprintf(out, "No backups for '%s'.\n", args[0])
		return nil
	}

	fmt.Fprintf(out, "%-20s %-20s %-10s %s\n", "LABEL", "CREATED", "SIZE", "DESCRIPTION")
	for _, b := range backups {
		fmt.Fprintf(out, "%-20s %-20s %-10s %s\n",
			b.Label, b.CreatedAt.Format("2006-01-02 15:04:05"), formatSize(b.DiskSize), b.Description)
	}
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	name, label := args[0], args[1]

	a, err := newApp()
	if err != nil {
		return err
	}

	if !backupRestoreYes {
		ok, err := terminal.Stdio().Confirm(fmt.Sprintf("Overwrite the disk of '%s' with backup '%s'?", name, label), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
	}

	if err := a.svc.RestoreBackup(name, label); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restored '%s' from backup '%s'\n", name, label)
	return nil
}

func runBackupDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.svc.Backups().Delete(args[0], args[1]); err != nil {
		return fmt.Errorf("delete backup: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted backup '%s'\n", args[1])
	return nil
}

func runBackupVerify(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.svc.Backups().Verify(args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Backup '%s' is intact\n", args[1])
	return nil
}

func runBackupPrune(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	n, err := a.svc.Backups().Prune(args[0], time.Now().Add(-backupPruneAge))
	if err != nil {
		return fmt.Errorf("prune backups: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d backup(s)\n", n)
	return nil
}

// formatSize formats bytes as a human-readable size.
func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
