package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PottierLoic/Remotely/internal/config"
	"github.com/PottierLoic/Remotely/pkg/logger"
)

var (
	cfgFile       string
	configManager *config.Manager
	debugMode     bool
	verboseMode   bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "remotely",
	Short: "Remotely - keep track of the machines you connect to",
	Long: `Remotely stores the remote hosts you connect to (VNC, HTTP, HTTPS, SSH)
in a small per-user registry and serves it to the desktop shell.

Features:
  - Add, list and remove hosts
  - JSON, YAML or SQLite storage in the platform data directory
  - Import and export host lists
  - Backups of the data directory
  - Loopback bridge for the UI shell`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if len(os.Args) > 1 {
			if suggestions := rootCmd.SuggestionsFor(os.Args[1]); len(suggestions) > 0 {
				fmt.Fprintf(os.Stderr, "Did you mean:\n")
				for _, s := range suggestions {
					fmt.Fprintf(os.Stderr, "  • %s (try: remotely help %s)\n", s, s)
				}
				fmt.Fprintln(os.Stderr)
			}
		}
		PrintError(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.SuggestionsMinimumDistance = 2

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/remotely/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug mode with detailed error messages")
	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "enable verbose output")
}

// initConfig reads in config file and sets up logging
func initConfig() {
	var err error
	configManager, err = config.NewManager(cfgFile)
	if err != nil {
		PrintError(fmt.Errorf("error initializing config: %w", err))
		os.Exit(1)
	}

	if err := configManager.Load(); err != nil {
		Warning("Ignoring config file: %v", err)
	}

	cfg := configManager.Get()
	level := cfg.LogLevel
	switch {
	case debugMode:
		level = "debug"
	case verboseMode:
		level = "info"
	}
	logger.Setup(cfg.LogFormat, level)
	logger.Debug("config loaded", "path", configManager.GetConfigPath(), "storage_driver", cfg.StorageDriver)

	LogVerbose("Using config file: %s", configManager.GetConfigPath())
}

// IsDebug returns true if debug mode is enabled
func IsDebug() bool {
	return debugMode
}

// IsVerbose returns true if verbose mode is enabled
func IsVerbose() bool {
	return verboseMode || debugMode
}
