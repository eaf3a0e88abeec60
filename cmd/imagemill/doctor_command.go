package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"imagemill/internal/deps"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external binaries and directory access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			failures := 0

			for _, line := range renderSectionHeader("External binaries", colorize) {
				fmt.Fprintln(out, line)
			}
			binaries := deps.CheckBinaries(deps.Requirements(cfg))
			if len(binaries) == 0 {
				fmt.Fprintln(out, statusIndent+"no optimizer or variant binaries configured")
			}
			for _, status := range binaries {
				kind := statusOK
				message := status.Description
				if !status.Available {
					message = status.Detail
					if status.Optional {
						kind = statusWarn
					} else {
						kind = statusError
						failures++
					}
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, message, colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Directories", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, result := range deps.RunPreflight(cfg) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
					failures++
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			fmt.Fprintln(out)
			if failures > 0 {
				return fmt.Errorf("%d checks failed", failures)
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}
