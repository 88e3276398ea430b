package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"pickline/internal/api"
)

func newAdminCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Supervisor overrides on a session",
	}
	cmd.AddCommand(newAdminItemCommand(ctx, "remove", "Remove an item from a session", false))
	cmd.AddCommand(newAdminItemCommand(ctx, "restore", "Restore a removed item", true))
	cmd.AddCommand(newAdminForceCompleteCommand(ctx))
	cmd.AddCommand(newAdminCancelCommand(ctx))
	cmd.AddCommand(newAdminAuditCommand(ctx))
	return cmd
}

func newAdminItemCommand(ctx *commandContext, use, short string, restore bool) *cobra.Command {
	var actor, reason string
	cmd := &cobra.Command{
		Use:   use + " <session-id> <product-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.ItemOverrideRequest{SessionID: args[0], ProductID: args[1], Actor: actor, Reason: reason}
			return ctx.withClient(func(client *api.Client) error {
				call := client.RemoveItem
				verb := "removed"
				if restore {
					call = client.RestoreItem
					verb = "restored"
				}
				if err := call(cmd.Context(), req); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Product %s %s in session %s\n", args[1], verb, args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "Supervisor recorded on the ledger")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the item changed")
	return cmd
}

func newAdminForceCompleteCommand(ctx *commandContext) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "force-complete <session-id> <product-id>",
		Short: "Mark every missing unit of a product as picked",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.ItemOverrideRequest{SessionID: args[0], ProductID: args[1], Actor: actor}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.ForceCompleteItem(cmd.Context(), req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, resp)
				}
				rows := make([][]string, 0, len(resp.Orders))
				for _, order := range resp.Orders {
					rows = append(rows, []string{order.OrderID, strconv.Itoa(order.Inserted)})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable([]string{"Order", "Inserted"}, rows, []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintf(out, "%d unit(s) force-completed\n", resp.Inserted)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "Supervisor recorded on the ledger")
	return cmd
}

func newAdminCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel a session and release its picker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.CancelSession(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s cancelled\n", args[0])
				return nil
			})
		},
	}
}

func newAdminAuditCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <session-id> <audited|completed>",
		Short: "Record the outcome of a pending audit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.RecordAuditOutcome(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s is now %s\n", args[0], humanize(args[1]))
				return nil
			})
		},
	}
}
