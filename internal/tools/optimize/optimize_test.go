package optimize_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"imagemill/internal/config"
	"imagemill/internal/logging"
	"imagemill/internal/testsupport"
	"imagemill/internal/tools"
	"imagemill/internal/tools/optimize"
)

func writeImage(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func TestOptimizeRunsChainAndAccountsBytes(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithOptimizers(map[string][]config.OptimizerTool{
		"jpeg": {
			{Binary: "jpegoptim", Args: []string{"--strip-all", "{src}"}},
			{Binary: "jpegtran", Args: []string{"{src}"}},
		},
	}))

	path := writeImage(t, "0123456789abcdef")

	var invocations [][]string
	shrink := func(ctx context.Context, name string, args ...string) (string, error) {
		invocations = append(invocations, append([]string{name}, args...))
		target := args[len(args)-1]
		data, err := os.ReadFile(target)
		if err != nil {
			return "", err
		}
		return "", os.WriteFile(target, data[:len(data)/2], 0o644)
	}

	runner := optimize.NewRunner(cfg, logging.NewNop(),
		optimize.WithCommandRunner(shrink),
		optimize.WithLookPath(func(string) bool { return true }))

	result, err := runner.Optimize(context.Background(), path, "jpeg")
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}

	if len(invocations) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(invocations))
	}
	if invocations[0][0] != "jpegoptim" || invocations[0][1] != "--strip-all" || invocations[0][2] != path {
		t.Fatalf("unexpected first invocation: %v", invocations[0])
	}
	if result.OriginalBytes != 16 {
		t.Fatalf("OriginalBytes = %d", result.OriginalBytes)
	}
	if result.FinalBytes != 4 {
		t.Fatalf("FinalBytes = %d, want 4 after two halvings", result.FinalBytes)
	}
	if result.SavedBytes() != 12 {
		t.Fatalf("SavedBytes = %d", result.SavedBytes())
	}
}

func TestOptimizeRestoresWhenStepGrowsFile(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithOptimizers(map[string][]config.OptimizerTool{
		"png": {{Binary: "optipng", Args: []string{"{src}"}}},
	}))
	cfg.Workflow.SkipLarger = true

	path := writeImage(t, "small")
	if err := os.Chmod(path, 0o640); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	grow := func(ctx context.Context, name string, args ...string) (string, error) {
		return "", os.WriteFile(args[len(args)-1], []byte("much much larger output"), 0o644)
	}

	runner := optimize.NewRunner(cfg, logging.NewNop(),
		optimize.WithCommandRunner(grow),
		optimize.WithLookPath(func(string) bool { return true }))

	result, err := runner.Optimize(context.Background(), path, "png")
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if result.FinalBytes != int64(len("small")) {
		t.Fatalf("FinalBytes = %d, want original size", result.FinalBytes)
	}
	if !result.Steps[0].Restored {
		t.Fatal("expected step to be marked restored")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if string(data) != "small" {
		t.Fatalf("file not restored, contents %q", data)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat restored file: %v", err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Fatalf("restored mode = %v, want 0640", info.Mode().Perm())
	}
	if _, err := os.Stat(path + ".pre"); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("pre-step snapshot left behind")
	}
}

func TestOptimizeKeepsLargerResultWhenSkipLargerDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithOptimizers(map[string][]config.OptimizerTool{
		"png": {{Binary: "optipng", Args: []string{"{src}"}}},
	}))
	cfg.Workflow.SkipLarger = false

	path := writeImage(t, "small")

	grow := func(ctx context.Context, name string, args ...string) (string, error) {
		return "", os.WriteFile(args[len(args)-1], []byte("bigger than before"), 0o644)
	}

	runner := optimize.NewRunner(cfg, logging.NewNop(),
		optimize.WithCommandRunner(grow),
		optimize.WithLookPath(func(string) bool { return true }))

	result, err := runner.Optimize(context.Background(), path, "png")
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if result.FinalBytes != int64(len("bigger than before")) {
		t.Fatalf("FinalBytes = %d, want grown size", result.FinalBytes)
	}
}

func TestOptimizeSkipsMissingOptionalTool(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithOptimizers(map[string][]config.OptimizerTool{
		"jpeg": {
			{Binary: "mozjpeg-not-installed", Args: []string{"{src}"}, Optional: true},
			{Binary: "jpegoptim", Args: []string{"{src}"}},
		},
	}))

	path := writeImage(t, "contents")

	var ran []string
	record := func(ctx context.Context, name string, args ...string) (string, error) {
		ran = append(ran, name)
		return "", nil
	}

	runner := optimize.NewRunner(cfg, logging.NewNop(),
		optimize.WithCommandRunner(record),
		optimize.WithLookPath(func(binary string) bool { return binary == "jpegoptim" }))

	result, err := runner.Optimize(context.Background(), path, "jpeg")
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if len(ran) != 1 || ran[0] != "jpegoptim" {
		t.Fatalf("unexpected invocations: %v", ran)
	}
	if !result.Steps[0].Skipped {
		t.Fatal("expected first step marked skipped")
	}
}

func TestOptimizeFailsOnMissingRequiredTool(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithOptimizers(map[string][]config.OptimizerTool{
		"gif": {{Binary: "gifsicle-not-installed", Args: []string{"{src}"}}},
	}))

	path := writeImage(t, "gif bytes")

	runner := optimize.NewRunner(cfg, logging.NewNop(),
		optimize.WithLookPath(func(string) bool { return false }))

	_, err := runner.Optimize(context.Background(), path, "gif")
	if !errors.Is(err, tools.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if tools.Retryable(err) {
		t.Fatal("missing required tool should not be retryable")
	}
}

func TestOptimizeNoChainIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithOptimizers(map[string][]config.OptimizerTool{}))

	path := writeImage(t, "untouched")

	runner := optimize.NewRunner(cfg, logging.NewNop())
	result, err := runner.Optimize(context.Background(), path, "jpeg")
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if result.OriginalBytes != result.FinalBytes {
		t.Fatal("no-op chain should not change sizes")
	}
	if len(result.Steps) != 0 {
		t.Fatalf("unexpected steps: %v", result.Steps)
	}
}

func TestOptimizeWrapsToolFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithOptimizers(map[string][]config.OptimizerTool{
		"jpeg": {{Binary: "jpegoptim", Args: []string{"{src}"}}},
	}))

	path := writeImage(t, "contents")

	fail := func(ctx context.Context, name string, args ...string) (string, error) {
		return "corrupt huffman table", errors.New("exit status 1")
	}

	runner := optimize.NewRunner(cfg, logging.NewNop(),
		optimize.WithCommandRunner(fail),
		optimize.WithLookPath(func(string) bool { return true }))

	_, err := runner.Optimize(context.Background(), path, "jpeg")
	if !errors.Is(err, tools.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !tools.Retryable(err) {
		t.Fatal("tool failures should be retryable")
	}
}
