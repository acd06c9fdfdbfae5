package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/PottierLoic/Remotely/internal/api"
	"github.com/PottierLoic/Remotely/internal/commands"
	"github.com/PottierLoic/Remotely/internal/server"
	"github.com/PottierLoic/Remotely/pkg/errors"
	"github.com/PottierLoic/Remotely/pkg/logger"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Serve the registry to the UI shell",
	Long: `The bridge exposes get_host_list, add_host and delete_host over HTTP on a
loopback address. Every call must carry a bearer token signed with the bridge secret.`,
}

var bridgeServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		ttl, _ := cmd.Flags().GetDuration("token-ttl")
		if addr == "" {
			addr = configManager.Get().BridgeAddr
		}

		secret := configManager.Get().BridgeSecret
		if secret == "" {
			var err error
			if secret, err = server.NewSecret(); err != nil {
				return err
			}
			token, err := server.IssueToken([]byte(secret), ttl)
			if err != nil {
				return err
			}
			// No configured secret: hand the session token to whoever started us.
			fmt.Fprintln(cmd.OutOrStdout(), token)
		}

		reg, err := openRegistry()
		if err != nil {
			return err
		}

		if !IsDebug() {
			gin.SetMode(gin.ReleaseMode)
		}

		bridge := server.NewBridge(commands.NewHandler(reg), []byte(secret), logger.With("component", "bridge"))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		LogVerbose("Bridge listening on %s", addr)
		return bridge.Run(ctx, addr)
	},
}

var bridgeTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for the configured bridge secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")

		secret := configManager.Get().BridgeSecret
		if secret == "" {
			return errors.New(errors.ErrInvalidInput, "bridge token", "no bridge secret configured").
				WithSuggestion("Run 'remotely config set bridge_secret <secret>'")
		}

		token, err := server.IssueToken([]byte(secret), ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var bridgeCallCmd = &cobra.Command{
	Use:   "call <command> [json-args]",
	Short: "Invoke a command on a running bridge",
	Example: `  remotely bridge call get_host_list
  remotely bridge call delete_host '{"id": 3}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		token, _ := cmd.Flags().GetString("token")
		if url == "" {
			url = configManager.Get().BridgeAddr
		}
		if token == "" {
			secret := configManager.Get().BridgeSecret
			if secret == "" {
				return errors.New(errors.ErrInvalidInput, "bridge call", "no token given and no bridge secret configured").
					WithSuggestion("Pass --token with the token printed by 'remotely bridge serve'")
			}
			var err error
			if token, err = server.IssueToken([]byte(secret), time.Minute); err != nil {
				return err
			}
		}

		var params interface{}
		if len(args) == 2 {
			if !json.Valid([]byte(args[1])) {
				return errors.New(errors.ErrInvalidInput, "bridge call", "arguments must be valid JSON")
			}
			params = json.RawMessage(args[1])
		}

		var result json.RawMessage
		if err := api.NewClient(url, token).Invoke(cmd.Context(), args[0], params, &result); err != nil {
			return err
		}

		if len(result) == 0 || string(result) == "null" {
			Success(cmd.OutOrStdout(), "%s ok", args[0])
			return nil
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, result, "", "  "); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.AddCommand(bridgeServeCmd)
	bridgeCmd.AddCommand(bridgeTokenCmd)
	bridgeCmd.AddCommand(bridgeCallCmd)

	bridgeServeCmd.Flags().String("addr", "", "Listen address (default: bridge_addr from config)")
	bridgeServeCmd.Flags().Duration("token-ttl", 24*time.Hour, "Lifetime of the session token printed when no secret is configured")
	bridgeTokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	bridgeCallCmd.Flags().String("url", "", "Bridge address (default: bridge_addr from config)")
	bridgeCallCmd.Flags().String("token", "", "Bearer token (default: issued from the configured secret)")
}
