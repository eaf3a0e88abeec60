// Package variant derives alternate format and size renditions of an
// optimized image by shelling out to configured creator binaries, and
// computes which previously published variants became stale.
package variant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"imagemill/internal/config"
	"imagemill/internal/fileutil"
	"imagemill/internal/imaging"
	"imagemill/internal/logging"
	"imagemill/internal/tools"
)

// Variant is one derived rendition staged on disk, ready to publish.
type Variant struct {
	FileName string `json:"file_name"`
	Format   string `json:"format"`
	Width    int    `json:"width"`
	Bytes    int64  `json:"bytes"`

	// Path is the staged location; not persisted on the queue item.
	Path string `json:"-"`
}

// Option configures the creator.
type Option func(*Creator)

// WithCommandRunner injects a custom command runner (primarily for tests).
func WithCommandRunner(run tools.CommandRunner) Option {
	return func(c *Creator) {
		if run != nil {
			c.run = run
		}
	}
}

// WithLookPath overrides binary resolution (primarily for tests).
func WithLookPath(lookPath func(string) bool) Option {
	return func(c *Creator) {
		if lookPath != nil {
			c.lookPath = lookPath
		}
	}
}

// Creator runs the configured variant rules against an optimized source.
type Creator struct {
	cfg      *config.Config
	logger   *slog.Logger
	run      tools.CommandRunner
	lookPath func(string) bool
}

// NewCreator constructs a variant creator bound to the configured rules.
func NewCreator(cfg *config.Config, logger *slog.Logger, opts ...Option) *Creator {
	creator := &Creator{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "variant"),
		run:      tools.Run,
		lookPath: tools.LookPath,
	}
	for _, opt := range opts {
		opt(creator)
	}
	return creator
}

// Name builds the staged file name for a rendition: `<base>[_<width>w].<ext>`.
// Width 0 means native width and omits the suffix.
func Name(base string, width int, format string) string {
	ext := imaging.Format(format).Extension()
	if width > 0 {
		return fmt.Sprintf("%s_%dw%s", base, width, ext)
	}
	return base + ext
}

// Create derives every configured rendition for srcPath into stagingDir.
// base is the asset name without extension. Renditions that come out larger
// than the optimized source are dropped when skip-larger is enabled. A
// rendition whose creator fails is logged and skipped so the remaining
// renditions are still attempted; Create returns an error only for a missing
// binary or when every rendition failed.
func (c *Creator) Create(ctx context.Context, srcPath string, format imaging.Format, base, stagingDir string) ([]Variant, error) {
	rules := c.cfg.VariantsFor(string(format))
	if len(rules) == 0 {
		return nil, nil
	}

	srcBytes, err := fileutil.FileSize(srcPath)
	if err != nil {
		return nil, tools.Wrap(tools.ErrValidation, "variant", "stat", srcPath, err)
	}

	var variants []Variant
	var failures []error
	for _, rule := range rules {
		if !c.lookPath(rule.Binary) {
			return variants, tools.Wrap(tools.ErrConfiguration, "variant", rule.Binary, "binary not found on PATH", nil)
		}
		for _, width := range rule.Widths {
			rendition, ok, err := c.create(ctx, rule, srcPath, format, base, stagingDir, width, srcBytes)
			if err != nil {
				failures = append(failures, err)
				logging.WarnWithContext(c.logger, "rendition creation failed", "variant_failed",
					logging.Error(err),
					logging.String("variant", rendition.FileName),
					logging.String(logging.FieldImpact, "rendition skipped, remaining renditions still attempted"))
				continue
			}
			if ok {
				variants = append(variants, rendition)
			}
		}
	}
	if len(variants) == 0 && len(failures) > 0 {
		return nil, errors.Join(failures...)
	}
	return variants, nil
}

func (c *Creator) create(ctx context.Context, rule config.VariantRule, srcPath string, format imaging.Format, base, stagingDir string, width int, srcBytes int64) (Variant, bool, error) {
	rendition := Variant{
		FileName: Name(base, width, rule.Format),
		Format:   rule.Format,
		Width:    width,
	}
	rendition.Path = filepath.Join(stagingDir, rendition.FileName)

	input := srcPath
	if width > 0 && !argsReference(rule.Args, "{width}") {
		resized, err := c.preResize(srcPath, format, stagingDir, width)
		if err != nil {
			return rendition, false, err
		}
		defer os.Remove(resized)
		input = resized
	}

	runCtx, cancel := tools.WithTimeout(ctx, rule.TimeoutSeconds)
	defer cancel()

	args := tools.ExpandArgs(rule.Args, map[string]string{
		"{src}":     input,
		"{dst}":     rendition.Path,
		"{quality}": strconv.Itoa(rule.Quality),
		"{width}":   strconv.Itoa(width),
	})
	output, err := c.run(runCtx, rule.Binary, args...)
	if err != nil {
		_ = os.Remove(rendition.Path)
		return rendition, false, tools.Wrap(tools.ErrExternalTool, "variant", rule.Binary, output, err)
	}

	size, err := fileutil.FileSize(rendition.Path)
	if err != nil || size == 0 {
		_ = os.Remove(rendition.Path)
		return rendition, false, tools.Wrap(tools.ErrExternalTool, "variant", rule.Binary,
			fmt.Sprintf("produced no output at %s", rendition.FileName), err)
	}
	rendition.Bytes = size

	if c.cfg.Workflow.SkipLarger && width == 0 && size >= srcBytes {
		_ = os.Remove(rendition.Path)
		c.logger.Debug("variant larger than source, dropped", logging.Args(
			logging.String("variant", rendition.FileName),
			logging.Int64("variant_bytes", size),
			logging.Int64("source_bytes", srcBytes),
		)...)
		return rendition, false, nil
	}

	return rendition, true, nil
}

// preResize writes a downscaled copy of the source for creator binaries that
// do not take a width argument themselves.
func (c *Creator) preResize(srcPath string, format imaging.Format, stagingDir string, width int) (string, error) {
	if !imaging.Decodable(format) || !imaging.Encodable(format) {
		return "", tools.Wrap(tools.ErrConfiguration, "variant", string(format),
			fmt.Sprintf("cannot resize %s in process; give the creator binary a {width} argument", format), nil)
	}
	img, err := imaging.Decode(srcPath, format)
	if err != nil {
		return "", tools.Wrap(tools.ErrValidation, "variant", "decode", srcPath, err)
	}
	resized := filepath.Join(stagingDir, fmt.Sprintf(".resize_%dw%s", width, format.Extension()))
	if err := imaging.Encode(imaging.Resize(img, width), format, resized); err != nil {
		return "", tools.Wrap(tools.ErrTransient, "variant", "encode", resized, err)
	}
	return resized, nil
}

func argsReference(args []string, token string) bool {
	for _, arg := range args {
		if strings.Contains(arg, token) {
			return true
		}
	}
	return false
}

// StaleKeys returns previously published variant keys that the current run no
// longer produces. Only keys that look like renditions of base (same prefix,
// a configured variant extension) are candidates; the original asset key is
// never returned.
func StaleKeys(existing []string, produced []Variant, originalKey, base string, variantFormats []string) []string {
	current := make(map[string]struct{}, len(produced))
	for _, v := range produced {
		current[v.FileName] = struct{}{}
	}

	exts := make(map[string]struct{}, len(variantFormats))
	for _, format := range variantFormats {
		exts[imaging.Format(format).Extension()] = struct{}{}
	}

	var stale []string
	for _, key := range existing {
		if key == originalKey {
			continue
		}
		name := path.Base(key)
		ext := filepath.Ext(name)
		if _, ok := exts[ext]; !ok {
			continue
		}
		// Only `<base>.<ext>` and `<base>_<suffix>.<ext>` belong to this
		// asset; a bare prefix match would claim e.g. heron.webp for hero.
		stem := strings.TrimSuffix(name, ext)
		if stem != base && !strings.HasPrefix(stem, base+"_") {
			continue
		}
		if _, ok := current[name]; ok {
			continue
		}
		stale = append(stale, key)
	}
	return stale
}
