package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PottierLoic/Remotely/pkg/platform"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Remotely configuration",
	Long:  `View and modify Remotely configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configManager.Get()
		out := cmd.OutOrStdout()

		dataDir, err := configManager.DataDir()
		if err != nil {
			dataDir = fmt.Sprintf("unavailable (%v)", err)
		}

		secret := "(unset)"
		if cfg.BridgeSecret != "" {
			secret = "********"
		}

		fmt.Fprintln(out, "Remotely Configuration")
		fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Fprintf(out, "Config file:        %s\n", configManager.GetConfigPath())
		fmt.Fprintf(out, "Data directory:     %s\n", dataDir)
		if env := os.Getenv(platform.DataDirEnv); env != "" {
			fmt.Fprintf(out, "                    (from %s)\n", platform.DataDirEnv)
		}

		fmt.Fprintf(out, "\nRegistry:\n")
		fmt.Fprintf(out, "  storage_driver:     %s\n", cfg.StorageDriver)
		fmt.Fprintf(out, "  data_dir:           %s\n", cfg.DataDir)
		fmt.Fprintf(out, "  strict_ids:         %v\n", cfg.StrictIDs)
		fmt.Fprintf(out, "  audit_max_entries:  %d\n", cfg.AuditMaxEntries)

		fmt.Fprintf(out, "\nLogging:\n")
		fmt.Fprintf(out, "  log_format:         %s\n", cfg.LogFormat)
		fmt.Fprintf(out, "  log_level:          %s\n", cfg.LogLevel)

		fmt.Fprintf(out, "\nBridge:\n")
		fmt.Fprintf(out, "  bridge_addr:        %s\n", cfg.BridgeAddr)
		fmt.Fprintf(out, "  bridge_secret:      %s\n", secret)

		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Examples:
  remotely config set storage_driver sqlite
  remotely config set strict_ids true
  remotely config set data_dir /srv/remotely
  remotely config set log_format json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := configManager.Set(args[0], args[1]); err != nil {
			return err
		}

		Success(cmd.OutOrStdout(), "Set %s = %s", args[0], args[1])
		if args[0] == "storage_driver" {
			Warning("Existing hosts are not migrated. Use 'remotely host export' before switching and 'remotely host import' after.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
