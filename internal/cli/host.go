package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/PottierLoic/Remotely/internal/models"
	"github.com/PottierLoic/Remotely/internal/registry"
	"github.com/PottierLoic/Remotely/internal/storage"
	yamlStore "github.com/PottierLoic/Remotely/internal/storage/yaml"
	"github.com/PottierLoic/Remotely/pkg/errors"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Manage remote hosts",
	Long:  `Add, list, remove, import and export the hosts stored in the registry.`,
}

var hostAddCmd = &cobra.Command{
	Use:   "add <name> <address>",
	Short: "Add a host to the registry",
	Example: `  remotely host add "Living room Pi" 192.168.1.10 --protocol ssh --user pi
  remotely host add NAS nas.local -p https --id 12`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		protocolFlag, _ := cmd.Flags().GetString("protocol")
		user, _ := cmd.Flags().GetString("user")
		password, _ := cmd.Flags().GetString("password")
		askPassword, _ := cmd.Flags().GetBool("ask-password")

		protocol, err := models.ParseProtocol(protocolFlag)
		if err != nil {
			return errors.Wrap(err, errors.ErrInvalidInput, "host add", err.Error()).
				WithSuggestion("Use one of: VNC, HTTP, HTTPS, SSH")
		}

		if askPassword {
			password, err = readPassword(cmd.InOrStdin(), "Password: ")
			if err != nil {
				return err
			}
		}

		reg, err := openRegistry()
		if err != nil {
			return err
		}

		var id uint64
		if cmd.Flags().Changed("id") {
			id, _ = cmd.Flags().GetUint64("id")
		} else if id, err = reg.NextID(cmd.Context()); err != nil {
			return err
		}

		host := models.Host{
			ID:       id,
			Name:     args[0],
			Address:  args[1],
			Protocol: protocol,
			Username: models.StringPtr(user),
			Password: models.StringPtr(password),
		}

		if err := reg.Add(cmd.Context(), host); err != nil {
			if errors.IsCode(err, errors.ErrDuplicateID) {
				return errors.Wrap(err, errors.ErrDuplicateID, "host add", fmt.Sprintf("a host with id %d already exists", id)).
					WithSuggestion("Omit --id to use the next free id")
			}
			return err
		}

		Success(cmd.OutOrStdout(), "Added host %d: %s (%s %s)", host.ID, host.Name, host.Protocol, host.Address)
		return nil
	},
}

var hostListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		showPasswords, _ := cmd.Flags().GetBool("show-passwords")

		reg, err := openRegistry()
		if err != nil {
			return err
		}

		result, err := reg.Inspect(cmd.Context())
		if err != nil {
			return err
		}
		if result.Status == registry.StatusRecovered {
			if result.QuarantinePath != "" {
				Warning("The registry file was unreadable and has been moved to %s", result.QuarantinePath)
			} else {
				Warning("The registry file is unreadable and could not be moved aside; changes will be refused until it is fixed")
			}
		}

		hosts := result.Hosts
		if !showPasswords {
			for i := range hosts {
				hosts[i] = hosts[i].Redacted()
			}
		}

		out := cmd.OutOrStdout()
		switch output {
		case "json":
			if hosts == nil {
				hosts = []models.Host{}
			}
			data, err := json.MarshalIndent(hosts, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		case "yaml":
			data, err := yamlStore.Encode(hosts)
			if err != nil {
				return err
			}
			fmt.Fprint(out, string(data))
			return nil
		case "table":
		default:
			return errors.New(errors.ErrInvalidInput, "host list", fmt.Sprintf("unknown output format %q", output)).
				WithSuggestion("Use table, json or yaml")
		}

		if len(hosts) == 0 {
			fmt.Fprintln(out, "No hosts stored. Add one with: remotely host add <name> <address>")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tADDRESS\tPROTOCOL\tUSER\tPASSWORD")
		fmt.Fprintln(w, "--\t----\t-------\t--------\t----\t--------")
		for _, host := range hosts {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				host.ID, host.Name, host.Address, host.Protocol,
				orDash(host.Username), orDash(host.Password))
		}
		return w.Flush()
	},
}

var hostRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove every host with the given id",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return errors.Wrap(err, errors.ErrInvalidInput, "host remove", fmt.Sprintf("invalid id %q", args[0]))
		}

		reg, err := openRegistry()
		if err != nil {
			return err
		}

		removed, err := reg.Remove(cmd.Context(), id)
		if err != nil {
			return err
		}
		if removed == 0 {
			Warning("No host with id %d", id)
			return nil
		}

		Success(cmd.OutOrStdout(), "Removed %d host(s) with id %d", removed, id)
		return nil
	},
}

var hostExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the host list to a JSON, YAML or SQLite file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		target, err := fileStore(args[0], format)
		if err != nil {
			return err
		}
		defer target.Close()

		reg, err := openRegistry()
		if err != nil {
			return err
		}

		hosts, err := reg.Load(cmd.Context())
		if err != nil {
			return err
		}
		if err := target.Save(cmd.Context(), hosts); err != nil {
			return err
		}

		Success(cmd.OutOrStdout(), "Exported %d host(s) to %s", len(hosts), args[0])
		return nil
	},
}

var hostImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Add hosts from a JSON, YAML or SQLite file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		replace, _ := cmd.Flags().GetBool("replace")

		source, err := fileStore(args[0], format)
		if err != nil {
			return err
		}
		defer source.Close()

		if _, err := os.Stat(args[0]); err != nil {
			return errors.Wrap(err, errors.ErrNotFound, "host import", "cannot read "+args[0])
		}

		hosts, err := source.Load(cmd.Context())
		if err != nil {
			if errors.Is(err, storage.ErrMalformed) {
				return errors.Wrap(err, errors.ErrInvalidInput, "host import", args[0]+" is not a valid host list")
			}
			if !errors.Is(err, storage.ErrNoData) {
				return err
			}
		}

		reg, err := openRegistry()
		if err != nil {
			return err
		}

		if replace {
			if err := reg.Save(cmd.Context(), hosts); err != nil {
				return err
			}
			Success(cmd.OutOrStdout(), "Replaced registry with %d host(s)", len(hosts))
			return nil
		}

		for _, host := range hosts {
			if err := reg.Add(cmd.Context(), host); err != nil {
				return fmt.Errorf("failed to import host %d (%s): %w", host.ID, host.Name, err)
			}
			LogVerbose("Imported host %d: %s", host.ID, host.Name)
		}

		Success(cmd.OutOrStdout(), "Imported %d host(s)", len(hosts))
		return nil
	},
}

func orDash(s *string) string {
	if v := models.Deref(s); v != "" {
		return v
	}
	return "-"
}

func init() {
	rootCmd.AddCommand(hostCmd)
	hostCmd.AddCommand(hostAddCmd)
	hostCmd.AddCommand(hostListCmd)
	hostCmd.AddCommand(hostRemoveCmd)
	hostCmd.AddCommand(hostExportCmd)
	hostCmd.AddCommand(hostImportCmd)

	hostAddCmd.Flags().Uint64("id", 0, "Host id (default: one above the highest stored id)")
	hostAddCmd.Flags().StringP("protocol", "p", "SSH", "Protocol: VNC, HTTP, HTTPS or SSH")
	hostAddCmd.Flags().StringP("user", "u", "", "Username for the connection")
	hostAddCmd.Flags().String("password", "", "Password for the connection (stored in plain text)")
	hostAddCmd.Flags().Bool("ask-password", false, "Prompt for the password")

	hostListCmd.Flags().StringP("output", "o", "table", "Output format: table, json or yaml")
	hostListCmd.Flags().Bool("show-passwords", false, "Show stored passwords instead of masking them")

	hostExportCmd.Flags().StringP("format", "f", "", "File format: json, yaml or sqlite (default: from extension)")
	hostImportCmd.Flags().StringP("format", "f", "", "File format: json, yaml or sqlite (default: from extension)")
	hostImportCmd.Flags().Bool("replace", false, "Replace the registry instead of appending")
}
