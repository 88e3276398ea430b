package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pickline/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var deviceOnly, serverOnly bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories and service reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			sections := []struct {
				title   string
				enabled bool
				run     func() []preflight.Result
			}{
				{"Server", !deviceOnly, func() []preflight.Result { return preflight.RunServer(cmd.Context(), cfg) }},
				{"Device", !serverOnly, func() []preflight.Result { return preflight.RunDevice(cmd.Context(), cfg) }},
			}
			failures := 0
			for _, section := range sections {
				if !section.enabled {
					continue
				}
				for _, line := range renderSectionHeader(section.title, colorize) {
					fmt.Fprintln(out, line)
				}
				for _, result := range section.run() {
					kind := statusOK
					if !result.Passed {
						kind = statusError
						failures++
					}
					fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
				}
				fmt.Fprintln(out)
			}
			if failures > 0 {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&deviceOnly, "device", false, "Only run device checks")
	cmd.Flags().BoolVar(&serverOnly, "server", false, "Only run server checks")
	cmd.MarkFlagsMutuallyExclusive("device", "server")
	return cmd
}
