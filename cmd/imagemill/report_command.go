package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"imagemill/internal/config"
	"imagemill/internal/queue"
	"imagemill/internal/report"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var formatFilter string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show per-format byte savings for completed items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				savings, err := store.Savings(cmd.Context())
				if err != nil {
					return err
				}
				if filter := strings.ToLower(strings.TrimSpace(formatFilter)); filter != "" {
					filtered := savings[:0]
					for _, row := range savings {
						if row.Format == filter {
							filtered = append(filtered, row)
						}
					}
					savings = filtered
				}
				rep := report.Build(savings)
				out := cmd.OutOrStdout()

				if asJSON {
					encoder := json.NewEncoder(out)
					encoder.SetIndent("", "  ")
					return encoder.Encode(rep)
				}

				if len(rep.Rows) == 0 {
					fmt.Fprintln(out, "No completed items yet")
					return nil
				}

				rows := make([][]string, 0, len(rep.Rows)+1)
				for _, row := range rep.Rows {
					rows = append(rows, reportRow(row))
				}
				rows = append(rows, reportRow(rep.Total))

				table := renderTable(
					[]string{"Format", "Files", "Original", "Optimized", "Saved", "Saved %"},
					rows,
					alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight,
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the report as JSON")
	cmd.Flags().StringVar(&formatFilter, "format", "", "Limit the report to one image format")
	return cmd
}

func reportRow(row report.Row) []string {
	return []string{
		row.Format,
		report.FormatCount(row.Files),
		report.FormatBytes(row.OriginalBytes),
		report.FormatBytes(row.OptimizedBytes),
		report.FormatBytes(row.SavedBytes),
		report.FormatPercent(row.SavedPercent),
	}
}
