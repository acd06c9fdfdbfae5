package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/PottierLoic/Remotely/internal/audit"
	"github.com/PottierLoic/Remotely/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage data directory backups",
	Long:  `Create, list, restore and delete zip backups of the registry data directory.`,
}

func backupManager() (*backup.Manager, error) {
	dir, err := configManager.DataDir()
	if err != nil {
		return nil, err
	}
	return backup.NewManager(dir), nil
}

// recordBackup writes an audit entry; failures only warn
func recordBackup(event audit.EventType, path string, opErr error) {
	auditor, err := configManager.OpenAudit()
	if err == nil {
		err = auditor.LogBackup(event, path, opErr)
	}
	if err != nil {
		Warning("Could not write audit log: %v", err)
	}
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, _ := cmd.Flags().GetString("message")

		bm, err := backupManager()
		if err != nil {
			return err
		}

		path, err := bm.Create(msg)
		recordBackup(audit.EventBackupCreated, path, err)
		if err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}

		Success(cmd.OutOrStdout(), "Backup created: %s", path)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		bm, err := backupManager()
		if err != nil {
			return err
		}

		backups, err := bm.List()
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(backups) == 0 {
			fmt.Fprintln(out, "No backups found.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTIME\tSIZE")
		for _, b := range backups {
			fmt.Fprintf(w, "%s\t%s\t%s\n", b.Name, b.Timestamp.Format("2006-01-02 15:04:05"), formatSize(b.Size))
		}
		return w.Flush()
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup>",
	Short: "Restore the data directory from a backup",
	Long: `Restore the data directory from a backup. The argument is either a
name from 'remotely backup list' or a path to a zip file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bm, err := backupManager()
		if err != nil {
			return err
		}

		path := bm.Resolve(args[0])
		Warning("This will overwrite the current registry with %s", path)

		err = bm.Restore(path)
		recordBackup(audit.EventBackupRestored, path, err)
		if err != nil {
			return fmt.Errorf("failed to restore backup: %w", err)
		}

		Success(cmd.OutOrStdout(), "Restore completed")
		return nil
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bm, err := backupManager()
		if err != nil {
			return err
		}

		if err := bm.Delete(args[0]); err != nil {
			return err
		}

		Success(cmd.OutOrStdout(), "Deleted backup %s", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupDeleteCmd)

	backupCreateCmd.Flags().StringP("message", "m", "", "Optional message/tag for the backup")
}
