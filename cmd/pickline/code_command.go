package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pickline/internal/api"
)

func newCodeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Manual code entry helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <input-code> <expected-sku>",
		Short: "Check a typed code against the expected SKU",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				result, err := client.ValidateCode(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				if !result.Valid {
					fmt.Fprintf(out, "%s does not match %s\n", args[0], args[1])
					return nil
				}
				fmt.Fprintf(out, "%s matches %s (%s)\n", args[0], args[1], result.MatchType)
				return nil
			})
		},
	})
	return cmd
}
