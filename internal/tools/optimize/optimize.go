// Package optimize runs the configured per-format chains of external
// optimizer binaries over a staged image, accounting for the bytes each
// step saves.
package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"imagemill/internal/config"
	"imagemill/internal/fileutil"
	"imagemill/internal/logging"
	"imagemill/internal/tools"
)

// StepResult records the outcome of one optimizer invocation.
type StepResult struct {
	Binary      string
	Skipped     bool
	Restored    bool
	BytesBefore int64
	BytesAfter  int64
}

// Result aggregates a full chain run over a single image.
type Result struct {
	OriginalBytes int64
	FinalBytes    int64
	Steps         []StepResult
}

// SavedBytes returns how many bytes the chain removed. Negative values
// never occur when skip-larger restoration is enabled.
func (r Result) SavedBytes() int64 {
	return r.OriginalBytes - r.FinalBytes
}

// Option configures the runner.
type Option func(*Runner)

// WithCommandRunner injects a custom command runner (primarily for tests).
func WithCommandRunner(run tools.CommandRunner) Option {
	return func(r *Runner) {
		if run != nil {
			r.run = run
		}
	}
}

// WithLookPath overrides binary resolution (primarily for tests).
func WithLookPath(lookPath func(string) bool) Option {
	return func(r *Runner) {
		if lookPath != nil {
			r.lookPath = lookPath
		}
	}
}

// Runner executes optimizer chains. Each configured tool is expected to
// rewrite the {src} file in place.
type Runner struct {
	cfg      *config.Config
	logger   *slog.Logger
	run      tools.CommandRunner
	lookPath func(string) bool
}

// NewRunner constructs a chain runner bound to the configured optimizer
// chains.
func NewRunner(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	runner := &Runner{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "optimizer"),
		run:      tools.Run,
		lookPath: tools.LookPath,
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// Optimize runs the chain configured for format over path. The file is
// modified in place. When skip-larger is enabled, any step that grows the
// file is rolled back to the bytes it had before that step ran.
func (r *Runner) Optimize(ctx context.Context, path, format string) (Result, error) {
	var result Result

	size, err := fileutil.FileSize(path)
	if err != nil {
		return result, tools.Wrap(tools.ErrValidation, "optimizer", "stat", path, err)
	}
	result.OriginalBytes = size
	result.FinalBytes = size

	chain := r.cfg.ChainFor(format)
	if len(chain) == 0 {
		r.logger.Debug("no optimizer chain configured",
			logging.Args(logging.String("format", format))...)
		return result, nil
	}

	for _, tool := range chain {
		step, err := r.runStep(ctx, tool, path, result.FinalBytes)
		result.Steps = append(result.Steps, step)
		if err != nil {
			return result, err
		}
		result.FinalBytes = step.BytesAfter
	}

	r.logger.Info("optimizer chain finished", logging.Args(
		logging.String("format", format),
		logging.Int("steps", len(result.Steps)),
		logging.Int64("bytes_before", result.OriginalBytes),
		logging.Int64("bytes_after", result.FinalBytes),
	)...)
	return result, nil
}

func (r *Runner) runStep(ctx context.Context, tool config.OptimizerTool, path string, sizeBefore int64) (StepResult, error) {
	step := StepResult{
		Binary:      tool.Binary,
		BytesBefore: sizeBefore,
		BytesAfter:  sizeBefore,
	}

	if !r.lookPath(tool.Binary) {
		if tool.Optional {
			step.Skipped = true
			logging.WarnWithContext(r.logger, "optional optimizer not installed", "tool-missing",
				logging.String("binary", tool.Binary),
				logging.String(logging.FieldErrorHint, fmt.Sprintf("install %s or remove it from the chain", tool.Binary)),
				logging.String(logging.FieldImpact, "step skipped, image remains unoptimized by this tool"))
			return step, nil
		}
		return step, tools.Wrap(tools.ErrConfiguration, "optimizer", tool.Binary, "binary not found on PATH", nil)
	}

	backup := ""
	if r.cfg.Workflow.SkipLarger {
		info, err := os.Stat(path)
		if err != nil {
			return step, tools.Wrap(tools.ErrTransient, "optimizer", tool.Binary, "stat before step", err)
		}
		// The snapshot keeps the staged file's own mode; a restore renames it
		// back over the original.
		backup = path + ".pre"
		if err := fileutil.CopyFileMode(path, backup, info.Mode().Perm()); err != nil {
			return step, tools.Wrap(tools.ErrTransient, "optimizer", tool.Binary, "snapshot before step", err)
		}
		defer os.Remove(backup)
	}

	runCtx, cancel := tools.WithTimeout(ctx, tool.TimeoutSeconds)
	defer cancel()

	args := tools.ExpandArgs(tool.Args, map[string]string{"{src}": path})
	output, err := r.run(runCtx, tool.Binary, args...)
	if err != nil {
		return step, tools.Wrap(tools.ErrExternalTool, "optimizer", tool.Binary, output, err)
	}

	sizeAfter, err := fileutil.FileSize(path)
	if err != nil {
		return step, tools.Wrap(tools.ErrTransient, "optimizer", tool.Binary, "stat after step", err)
	}

	if backup != "" && sizeAfter > sizeBefore {
		if err := os.Rename(backup, path); err != nil {
			return step, tools.Wrap(tools.ErrTransient, "optimizer", tool.Binary, "restore pre-step copy", err)
		}
		step.Restored = true
		step.BytesAfter = sizeBefore
		r.logger.Debug("step grew file, restored pre-step copy", logging.Args(
			logging.String("binary", tool.Binary),
			logging.String("file", filepath.Base(path)),
			logging.Int64("bytes_before", sizeBefore),
			logging.Int64("bytes_grown", sizeAfter),
		)...)
		return step, nil
	}

	step.BytesAfter = sizeAfter
	return step, nil
}
