package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"pickline/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show picklined status and session counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(out, line)
				}
				kind := statusError
				if status.Running {
					kind = statusOK
				}
				fmt.Fprintln(out, renderStatusLine("Running", kind, fmt.Sprintf("pid %d", status.PID), colorize))
				fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
				fmt.Fprintln(out, renderStatusLine("Lock", statusInfo, status.LockFilePath, colorize))
				fmt.Fprintln(out, renderStatusLine("Notifications", statusInfo, yesNo(status.Notifications), colorize))
				fmt.Fprintln(out)

				names := make([]string, 0, len(status.Sessions))
				for name := range status.Sessions {
					names = append(names, name)
				}
				sort.Strings(names)
				rows := make([][]string, 0, len(names))
				for _, name := range names {
					rows = append(rows, []string{humanize(name), strconv.Itoa(status.Sessions[name])})
				}
				fmt.Fprintln(out, renderTable([]string{"Status", "Sessions"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}
