package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"imagemill/internal/config"
	"imagemill/internal/logging"
	"imagemill/internal/pipeline"
	"imagemill/internal/queue"
	"imagemill/internal/report"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var queueOnly bool

	cmd := &cobra.Command{
		Use:   "process [image...]",
		Short: "Optimize rendered images and publish the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()

				ids := make([]int64, 0, len(args))
				for _, arg := range args {
					item, created, err := pipeline.Enqueue(cmd.Context(), store, arg, force)
					if err != nil {
						return err
					}
					if created {
						fmt.Fprintf(out, "Queued %s (item %d)\n", arg, item.ID)
					} else {
						fmt.Fprintf(out, "Already queued: %s (item %d)\n", arg, item.ID)
					}
					ids = append(ids, item.ID)
				}
				if queueOnly {
					return nil
				}

				logger, err := fileLogger(cfg)
				if err != nil {
					return err
				}
				manager := pipeline.NewManager(cfg, store, logger)
				if err := manager.Drain(cmd.Context()); err != nil {
					return err
				}

				failures := 0
				for _, id := range ids {
					item, err := store.GetByID(cmd.Context(), id)
					if err != nil {
						return err
					}
					if item == nil {
						continue
					}
					name := filepath.Base(item.SourcePath)
					switch item.Status {
					case queue.StatusCompleted:
						saved := item.OriginalBytes - item.OptimizedBytes
						percent := 0.0
						if item.OriginalBytes > 0 {
							percent = float64(saved) / float64(item.OriginalBytes) * 100
						}
						fmt.Fprintf(out, "%s: completed, saved %s (%s)\n",
							name, report.FormatBytes(saved), report.FormatPercent(percent))
					case queue.StatusFailed:
						failures++
						fmt.Fprintf(out, "%s: failed: %s\n", name, item.ErrorMessage)
					default:
						fmt.Fprintf(out, "%s: %s\n", name, item.Status)
					}
				}
				if failures > 0 {
					return fmt.Errorf("%d of %d items failed", failures, len(ids))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-process even if the same content was queued before")
	cmd.Flags().BoolVar(&queueOnly, "queue", false, "Enqueue only; leave processing to a running worker")
	return cmd
}

// fileLogger keeps one-shot command logs out of stdout so only the command's
// own summary is printed there.
func fileLogger(cfg *config.Config) (*slog.Logger, error) {
	logPath := filepath.Join(cfg.Paths.LogDir, "imagemill.log")
	return logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
}
