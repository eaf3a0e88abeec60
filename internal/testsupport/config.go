package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"imagemill/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.IntakeDir = filepath.Join(base, "intake")
	cfgVal.Storage.Local.Root = filepath.Join(base, "assets")
	cfgVal.Workflow.QueuePollInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	return builder.cfg
}

// WithOptimizers replaces the optimizer chains on the test config.
func WithOptimizers(chains map[string][]config.OptimizerTool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Optimizers = chains
	}
}

// WithVariants replaces the variant rules on the test config.
func WithVariants(rules []config.VariantRule) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Variants = rules
	}
}

// WithoutPlaceholder disables placeholder generation on the test config.
func WithoutPlaceholder() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Placeholder.Enabled = false
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. The stubs exit successfully without touching their
// arguments, which leaves in-place optimizer inputs unchanged.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"jpegoptim", "optipng", "gifsicle", "cwebp"}
		}
		StubBinaries(b.t, b.baseDir, "#!/bin/sh\nexit 0\n", names...)
	}
}

// StubBinaries writes stub shell executables with the given body into a bin
// directory under baseDir and prepends it to PATH for the test's duration.
func StubBinaries(t testing.TB, baseDir, script string, names ...string) {
	t.Helper()
	binDir := filepath.Join(baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	for _, name := range names {
		target := filepath.Join(binDir, name)
		if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}

	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
