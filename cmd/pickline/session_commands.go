package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pickline/internal/api"
	"pickline/internal/picking"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Start, inspect and finish picking sessions",
	}
	cmd.AddCommand(newSessionCreateCommand(ctx))
	cmd.AddCommand(newSessionShowCommand(ctx))
	cmd.AddCommand(newSessionCompleteCommand(ctx))
	cmd.AddCommand(newSessionCancelCommand(ctx))
	cmd.AddCommand(newSessionListCommand(ctx))
	cmd.AddCommand(newSessionLogCommand(ctx))
	return cmd
}

// pickerFlag resolves --picker against device.picker_id.
func pickerFlag(ctx *commandContext, value string) (string, error) {
	if picker := strings.TrimSpace(value); picker != "" {
		return picker, nil
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return "", err
	}
	if cfg.Device.PickerID == "" {
		return "", errors.New("picker id required; pass --picker or set device.picker_id")
	}
	return cfg.Device.PickerID, nil
}

func newSessionCreateCommand(ctx *commandContext) *cobra.Command {
	var picker string
	cmd := &cobra.Command{
		Use:   "create <order-id>...",
		Short: "Start a session over one or more orders",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pickerID, err := pickerFlag(ctx, picker)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				id, err := client.CreateSession(cmd.Context(), pickerID, args)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.CreateSessionResponse{SessionID: id})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started session %s for picker %s\n", id, pickerID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&picker, "picker", "", "Picker id (defaults to device.picker_id)")
	return cmd
}

func newSessionShowCommand(ctx *commandContext) *cobra.Command {
	var (
		picker         string
		includeRemoved bool
		placement      []string
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the picker's active session",
		RunE: func(cmd *cobra.Command, args []string) error {
			pickerID, err := pickerFlag(ctx, picker)
			if err != nil {
				return err
			}
			opts := picking.ViewOptions{IncludeRemoved: includeRemoved, Placement: placement}
			return ctx.withClient(func(client *api.Client) error {
				view, err := client.ActiveSession(cmd.Context(), pickerID, opts)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, view)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderSessionView(*view))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&picker, "picker", "", "Picker id (defaults to device.picker_id)")
	cmd.Flags().BoolVar(&includeRemoved, "include-removed", false, "Include items removed by an admin")
	cmd.Flags().StringSliceVar(&placement, "placement", nil, "Product ids in walking order")
	return cmd
}

func newSessionCompleteCommand(ctx *commandContext) *cobra.Command {
	var picker string
	cmd := &cobra.Command{
		Use:   "complete <session-id>",
		Short: "Finish a session and hand it to audit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pickerID, err := pickerFlag(ctx, picker)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				if err := client.CompleteSession(cmd.Context(), args[0], pickerID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s is pending audit\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&picker, "picker", "", "Picker id (defaults to device.picker_id)")
	return cmd
}

func newSessionCancelCommand(ctx *commandContext) *cobra.Command {
	var picker string
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Abandon the picker's current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			pickerID, err := pickerFlag(ctx, picker)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				if err := client.CancelAssignment(cmd.Context(), pickerID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Picker %s released\n", pickerID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&picker, "picker", "", "Picker id (defaults to device.picker_id)")
	return cmd
}

func newSessionListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, status := range statuses {
				if _, ok := picking.ParseStatus(status); !ok {
					return fmt.Errorf("unknown status %q", status)
				}
			}
			return ctx.withClient(func(client *api.Client) error {
				sessions, err := client.ListSessions(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.SessionListResponse{Sessions: sessions})
				}
				out := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions")
					return nil
				}
				rows := make([][]string, 0, len(sessions))
				for _, s := range sessions {
					rows = append(rows, []string{s.ID, s.PickerID, humanize(s.Status), strings.Join(s.OrderIDs, ", "), s.StartedAt, s.EndedAt})
				}
				fmt.Fprintln(out, renderTable([]string{"Session", "Picker", "Status", "Orders", "Started", "Ended"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only show sessions in these statuses")
	return cmd
}

func newSessionLogCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "log <session-id>",
		Short: "Print a session's ledger in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				rows, err := client.SessionLog(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, api.SessionLogResponse{SessionID: args[0], Events: rows})
				}
				return writeLedger(cmd, rows)
			})
		},
	}
}

func writeLedger(cmd *cobra.Command, rows []api.LedgerRow) error {
	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(out, "Ledger is empty")
		return nil
	}
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		product := row.OriginalProductID
		if row.ProductID != "" && row.ProductID != row.OriginalProductID {
			product = row.OriginalProductID + " -> " + row.ProductID
		}
		table = append(table, []string{
			fmt.Sprintf("%d", row.Seq),
			row.At,
			row.OrderID,
			product,
			humanize(row.Kind),
			humanize(row.Source),
			row.Actor,
			row.Reason,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Seq", "At", "Order", "Product", "Kind", "Source", "Actor", "Reason"},
		table,
		[]columnAlignment{alignRight},
	))
	return nil
}
