package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"imagemill/internal/config"
	"imagemill/internal/imaging"
	"imagemill/internal/logging"
	"imagemill/internal/placeholder"
	"imagemill/internal/queue"
	"imagemill/internal/staging"
	"imagemill/internal/storage"
	"imagemill/internal/tools"
	"imagemill/internal/tools/optimize"
	"imagemill/internal/tools/variant"
)

// StageOption injects alternate collaborators into the stage handlers,
// primarily for tests.
type StageOption func(*stageOptions)

type stageOptions struct {
	runner   tools.CommandRunner
	lookPath func(string) bool
	backend  storage.Backend
}

func newStageOptions(opts []StageOption) stageOptions {
	var options stageOptions
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithCommandRunner substitutes the external command runner.
func WithCommandRunner(run tools.CommandRunner) StageOption {
	return func(o *stageOptions) { o.runner = run }
}

// WithLookPath substitutes binary resolution.
func WithLookPath(lookPath func(string) bool) StageOption {
	return func(o *stageOptions) { o.lookPath = lookPath }
}

// WithBackend substitutes the storage backend.
func WithBackend(backend storage.Backend) StageOption {
	return func(o *stageOptions) { o.backend = backend }
}

func (o stageOptions) optimizeOpts() []optimize.Option {
	var opts []optimize.Option
	if o.runner != nil {
		opts = append(opts, optimize.WithCommandRunner(o.runner))
	}
	if o.lookPath != nil {
		opts = append(opts, optimize.WithLookPath(o.lookPath))
	}
	return opts
}

func (o stageOptions) variantOpts() []variant.Option {
	var opts []variant.Option
	if o.runner != nil {
		opts = append(opts, variant.WithCommandRunner(o.runner))
	}
	if o.lookPath != nil {
		opts = append(opts, variant.WithLookPath(o.lookPath))
	}
	return opts
}

// optimizeHandler stages the source copy and runs the optimizer chain.
type optimizeHandler struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	runner *optimize.Runner
}

func newOptimizeHandler(cfg *config.Config, store *queue.Store, logger *slog.Logger, options stageOptions) *optimizeHandler {
	return &optimizeHandler{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "optimize-stage"),
		runner: optimize.NewRunner(cfg, logger, options.optimizeOpts()...),
	}
}

func (h *optimizeHandler) Name() string { return "Optimizing" }

func (h *optimizeHandler) Execute(ctx context.Context, item *queue.Item) error {
	format, err := imaging.DetectFormat(item.SourcePath)
	if err != nil {
		if errors.Is(err, imaging.ErrUnknownFormat) {
			return tools.Wrap(tools.ErrValidation, "optimize", "detect", err.Error(), nil)
		}
		if errors.Is(err, os.ErrNotExist) {
			return tools.Wrap(tools.ErrNotFound, "optimize", "detect", item.SourcePath, err)
		}
		return tools.Wrap(tools.ErrTransient, "optimize", "detect", item.SourcePath, err)
	}
	item.Format = string(format)

	jobDir, err := staging.DirFor(h.cfg.Paths.StagingDir, item.Fingerprint)
	if err != nil {
		return tools.Wrap(tools.ErrTransient, "optimize", "staging", "", err)
	}
	staged, err := staging.Stage(item.SourcePath, jobDir)
	if err != nil {
		return tools.Wrap(tools.ErrTransient, "optimize", "staging", "", err)
	}
	item.StagedPath = staged

	if item.OriginalBytes == 0 {
		if size, err := os.Stat(staged); err == nil {
			item.OriginalBytes = size.Size()
		}
	}

	item.SetProgress(h.Name(), "staged for optimization", 20)
	if err := h.store.Update(ctx, item); err != nil {
		return fmt.Errorf("persist staging progress: %w", err)
	}

	if h.cfg.Filter.Enabled {
		result, err := imaging.Prefilter(staged, format, h.cfg.Filter.MaxWidth, h.cfg.Filter.JPEGQuality)
		if err != nil {
			return tools.Wrap(tools.ErrValidation, "optimize", "prefilter", "", err)
		}
		if result.Resized {
			h.logger.Debug("prefilter downscaled image", logging.Args(
				logging.Int64("item_id", item.ID),
				logging.Int("width_before", result.WidthBefore),
				logging.Int("width_after", result.WidthAfter),
			)...)
		}
	}

	result, err := h.runner.Optimize(ctx, staged, string(format))
	if err != nil {
		return err
	}
	item.OptimizedBytes = result.FinalBytes
	item.SetProgress(h.Name(), fmt.Sprintf("saved %d bytes", result.SavedBytes()), 100)
	return nil
}

// deriveHandler creates configured variants and the lazy-load placeholder.
type deriveHandler struct {
	cfg     *config.Config
	store   *queue.Store
	logger  *slog.Logger
	creator *variant.Creator
}

func newDeriveHandler(cfg *config.Config, store *queue.Store, logger *slog.Logger, options stageOptions) *deriveHandler {
	return &deriveHandler{
		cfg:     cfg,
		store:   store,
		logger:  logging.NewComponentLogger(logger, "derive-stage"),
		creator: variant.NewCreator(cfg, logger, options.variantOpts()...),
	}
}

func (h *deriveHandler) Name() string { return "Deriving" }

func (h *deriveHandler) Execute(ctx context.Context, item *queue.Item) error {
	if item.StagedPath == "" {
		return tools.Wrap(tools.ErrNotFound, "derive", "stage", "item has no staged file", nil)
	}
	if _, err := os.Stat(item.StagedPath); err != nil {
		return tools.Wrap(tools.ErrNotFound, "derive", "stage", item.StagedPath, err)
	}

	format := imaging.Format(item.Format)
	base := assetBase(item.StagedPath)
	jobDir := filepath.Dir(item.StagedPath)

	variants, err := h.creator.Create(ctx, item.StagedPath, format, base, jobDir)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(variants)
	if err != nil {
		return tools.Wrap(tools.ErrTransient, "derive", "marshal", "", err)
	}
	item.VariantsJSON = string(payload)
	item.SetProgress(h.Name(), fmt.Sprintf("%d variants created", len(variants)), 70)
	if err := h.store.Update(ctx, item); err != nil {
		return fmt.Errorf("persist variants: %w", err)
	}

	if h.cfg.Placeholder.Enabled {
		if imaging.Decodable(format) {
			ph, err := placeholder.FromFile(item.StagedPath, format, h.cfg.Placeholder.Width, h.cfg.Placeholder.PaletteSize)
			if err != nil {
				return tools.Wrap(tools.ErrValidation, "derive", "placeholder", "", err)
			}
			encoded, err := json.Marshal(ph)
			if err != nil {
				return tools.Wrap(tools.ErrTransient, "derive", "marshal placeholder", "", err)
			}
			item.PlaceholderJSON = string(encoded)
		} else {
			h.logger.Debug("skipping placeholder for non-decodable format", logging.Args(
				logging.Int64("item_id", item.ID),
				logging.String("format", item.Format),
			)...)
		}
	}

	item.SetProgress(h.Name(), "derivation finished", 100)
	return nil
}

// publishHandler uploads the optimized original and variants, deletes
// variants a config change orphaned, and removes the job's staging dir.
type publishHandler struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger

	backendOnce sync.Once
	backend     storage.Backend
	backendErr  error
}

func newPublishHandler(cfg *config.Config, store *queue.Store, logger *slog.Logger, options stageOptions) *publishHandler {
	h := &publishHandler{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "publish-stage"),
	}
	if options.backend != nil {
		h.backend = options.backend
		h.backendOnce.Do(func() {})
	}
	return h
}

func (h *publishHandler) Name() string { return "Publishing" }

func (h *publishHandler) getBackend() (storage.Backend, error) {
	h.backendOnce.Do(func() {
		h.backend, h.backendErr = storage.New(h.cfg)
	})
	if h.backendErr != nil {
		return nil, tools.Wrap(tools.ErrConfiguration, "publish", "backend", "", h.backendErr)
	}
	return h.backend, nil
}

func (h *publishHandler) Execute(ctx context.Context, item *queue.Item) error {
	if item.StagedPath == "" {
		return tools.Wrap(tools.ErrNotFound, "publish", "stage", "item has no staged file", nil)
	}
	if _, err := os.Stat(item.StagedPath); err != nil {
		return tools.Wrap(tools.ErrNotFound, "publish", "stage", item.StagedPath, err)
	}

	backend, err := h.getBackend()
	if err != nil {
		return err
	}

	var variants []variant.Variant
	if item.VariantsJSON != "" {
		if err := json.Unmarshal([]byte(item.VariantsJSON), &variants); err != nil {
			return tools.Wrap(tools.ErrValidation, "publish", "unmarshal variants", "", err)
		}
	}

	jobDir := filepath.Dir(item.StagedPath)
	base := assetBase(item.StagedPath)
	originalKey := filepath.Base(item.StagedPath)

	if err := backend.Put(ctx, originalKey, item.StagedPath, contentTypeFor(item.Format)); err != nil {
		return tools.Wrap(tools.ErrTransient, "publish", "put original", originalKey, err)
	}

	for i, v := range variants {
		local := filepath.Join(jobDir, v.FileName)
		if err := backend.Put(ctx, v.FileName, local, contentTypeFor(v.Format)); err != nil {
			return tools.Wrap(tools.ErrTransient, "publish", "put variant", v.FileName, err)
		}
		percent := 30 + float64(i+1)/float64(len(variants))*50
		item.SetProgress(h.Name(), fmt.Sprintf("uploaded %d/%d variants", i+1, len(variants)), percent)
		if err := h.store.Update(ctx, item); err != nil {
			return fmt.Errorf("persist publish progress: %w", err)
		}
	}

	existing, err := backend.List(ctx, base)
	if err != nil {
		return tools.Wrap(tools.ErrTransient, "publish", "list", base, err)
	}
	for _, key := range variant.StaleKeys(existing, variants, originalKey, base, h.cfg.VariantFormats()) {
		if err := backend.Delete(ctx, key); err != nil {
			return tools.Wrap(tools.ErrTransient, "publish", "delete stale variant", key, err)
		}
		h.logger.Info("deleted stale variant", logging.Args(
			logging.Int64("item_id", item.ID),
			logging.String("key", key),
		)...)
	}

	if err := staging.Remove(jobDir); err != nil {
		logging.WarnWithContext(h.logger, "failed to remove staging dir", "staging_cleanup_failed",
			logging.String("dir", jobDir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale staging sweep will retry"))
	}
	item.StagedPath = ""
	item.SetProgress("Completed", fmt.Sprintf("published to %s", backend.URL(originalKey)), 100)
	return nil
}

func assetBase(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func contentTypeFor(format string) string {
	switch imaging.Format(format) {
	case imaging.FormatJPEG:
		return "image/jpeg"
	case imaging.FormatPNG:
		return "image/png"
	case imaging.FormatGIF:
		return "image/gif"
	case imaging.FormatWebP:
		return "image/webp"
	case imaging.FormatAVIF:
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}
