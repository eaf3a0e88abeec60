package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"imagemill/internal/deps"
	"imagemill/internal/logging"
	"imagemill/internal/pipeline"
	"imagemill/internal/queue"
	"imagemill/internal/worker"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the background worker until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkerProcess(cmd.Context(), ctx)
		},
	}
}

func runWorkerProcess(cmdCtx context.Context, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewForPaths(cfg.Paths.LogDir, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	for _, result := range deps.RunPreflight(cfg) {
		if !result.Passed {
			logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldErrorHint, "run `imagemill doctor` for the full report"))
		}
	}
	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		if status.Available || status.Optional {
			continue
		}
		logging.WarnWithContext(logger, "required binary missing", "dependency_missing",
			logging.String("binary", status.Command),
			logging.String("detail", status.Detail),
			logging.String(logging.FieldImpact, "items needing this tool will fail"))
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Args(logging.Error(err))...)
		return err
	}

	manager := pipeline.NewManager(cfg, store, logger)
	w, err := worker.New(cfg, store, logger, manager)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create worker: %w", err)
	}
	defer w.Close()

	if err := w.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("imagemill worker shutting down")
	return nil
}
