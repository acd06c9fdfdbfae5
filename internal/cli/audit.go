package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/PottierLoic/Remotely/internal/audit"
	"github.com/PottierLoic/Remotely/pkg/errors"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
	Long:  `Registry changes, recoveries and backups are recorded in audit.log in the data directory.`,
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show recent audit entries",
	Example: `  remotely audit list
  remotely audit list --event host_removed -n 5
  remotely audit list --result failure --since 24h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		output, _ := cmd.Flags().GetString("output")
		since, _ := cmd.Flags().GetDuration("since")
		event, _ := cmd.Flags().GetString("event")
		resource, _ := cmd.Flags().GetString("resource")
		result, _ := cmd.Flags().GetString("result")

		if limit < 1 {
			return errors.New(errors.ErrInvalidInput, "audit list", "--limit must be at least 1")
		}

		filter := audit.AuditFilter{
			EventType: audit.EventType(event),
			Resource:  resource,
			Result:    result,
		}
		if event != "" && !knownEvent(filter.EventType) {
			return errors.New(errors.ErrInvalidInput, "audit list", fmt.Sprintf("unknown event %q", event)).
				WithSuggestion("Use one of " + eventNames())
		}
		if since > 0 {
			filter.StartTime = time.Now().Add(-since)
		}

		auditor, err := configManager.OpenAudit()
		if err != nil {
			return err
		}

		var entries []audit.AuditEntry
		if filter == (audit.AuditFilter{}) {
			entries = auditor.GetRecent(limit)
		} else {
			entries = auditor.Query(filter)
			if len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			if entries == nil {
				entries = []audit.AuditEntry{}
			}
			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		if len(entries) == 0 {
			fmt.Fprintln(out, "No audit entries found.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tEVENT\tRESOURCE\tRESULT\tERROR")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.EventType, e.Resource, e.Result, e.Error)
		}
		return w.Flush()
	},
}

func knownEvent(e audit.EventType) bool {
	for _, known := range audit.EventTypes {
		if e == known {
			return true
		}
	}
	return false
}

func eventNames() string {
	names := make([]string, len(audit.EventTypes))
	for i, e := range audit.EventTypes {
		names[i] = string(e)
	}
	return strings.Join(names, ", ")
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)

	auditListCmd.Flags().IntP("limit", "n", 20, "Maximum number of entries, newest last")
	auditListCmd.Flags().StringP("output", "o", "table", "Output format (table, json)")
	auditListCmd.Flags().String("event", "", "Only show this event type")
	auditListCmd.Flags().String("resource", "", "Only show entries for this resource, such as a host id")
	auditListCmd.Flags().String("result", "", "Only show success or failure entries")
	auditListCmd.Flags().Duration("since", 0, "Only show entries newer than this")
}
