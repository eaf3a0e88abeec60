package variant_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"imagemill/internal/config"
	"imagemill/internal/imaging"
	"imagemill/internal/logging"
	"imagemill/internal/testsupport"
	"imagemill/internal/tools"
	"imagemill/internal/tools/variant"
)

func webpRule(widths ...int) []config.VariantRule {
	return []config.VariantRule{{
		Format:  "webp",
		Sources: []string{"jpeg", "png"},
		Binary:  "cwebp",
		Args:    []string{"-q", "{quality}", "{src}", "-o", "{dst}"},
		Quality: 80,
		Widths:  widths,
	}}
}

// writeDst pretends to be a creator binary: it writes contents at the value
// of the argument following "-o".
func writeDst(contents string) tools.CommandRunner {
	return func(ctx context.Context, name string, args ...string) (string, error) {
		for i, arg := range args {
			if arg == "-o" && i+1 < len(args) {
				return "", os.WriteFile(args[i+1], []byte(contents), 0o644)
			}
		}
		return "", errors.New("no -o argument")
	}
}

func TestName(t *testing.T) {
	if got := variant.Name("hero", 0, "webp"); got != "hero.webp" {
		t.Fatalf("native name = %q", got)
	}
	if got := variant.Name("hero", 640, "webp"); got != "hero_640w.webp" {
		t.Fatalf("sized name = %q", got)
	}
	if got := variant.Name("hero", 0, "jpeg"); got != "hero.jpg" {
		t.Fatalf("jpeg name = %q", got)
	}
}

func TestCreateNativeVariant(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithVariants(webpRule(0)))
	staging := t.TempDir()
	src := filepath.Join(staging, "hero.jpg")
	if err := os.WriteFile(src, []byte("optimized jpeg bytes, reasonably long"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	creator := variant.NewCreator(cfg, logging.NewNop(),
		variant.WithCommandRunner(writeDst("webp")),
		variant.WithLookPath(func(string) bool { return true }))

	variants, err := creator.Create(context.Background(), src, imaging.FormatJPEG, "hero", staging)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(variants) != 1 {
		t.Fatalf("expected one variant, got %d", len(variants))
	}
	v := variants[0]
	if v.FileName != "hero.webp" || v.Width != 0 || v.Format != "webp" {
		t.Fatalf("unexpected variant: %+v", v)
	}
	if v.Bytes != int64(len("webp")) {
		t.Fatalf("variant bytes = %d", v.Bytes)
	}
	if _, err := os.Stat(v.Path); err != nil {
		t.Fatalf("variant file missing: %v", err)
	}
}

func TestCreatePreResizesWhenBinaryLacksWidthArg(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithVariants(webpRule(0, 320)))
	staging := t.TempDir()
	src := filepath.Join(staging, "hero.png")
	testsupport.WritePNG(t, src, 640, 480)

	var inputs []string
	runner := func(ctx context.Context, name string, args ...string) (string, error) {
		inputs = append(inputs, args[2])
		return "", os.WriteFile(args[4], []byte("w"), 0o644)
	}

	creator := variant.NewCreator(cfg, logging.NewNop(),
		variant.WithCommandRunner(runner),
		variant.WithLookPath(func(string) bool { return true }))

	variants, err := creator.Create(context.Background(), src, imaging.FormatPNG, "hero", staging)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(variants) != 2 {
		t.Fatalf("expected two variants, got %d", len(variants))
	}
	if inputs[0] != src {
		t.Fatalf("native width should use the source directly, got %s", inputs[0])
	}
	if inputs[1] == src {
		t.Fatal("320w rendition should use a pre-resized input")
	}

	resized, err := imaging.Decode(inputs[1], imaging.FormatPNG)
	if err == nil {
		if resized.Bounds().Dx() != 320 {
			t.Fatalf("pre-resized width = %d, want 320", resized.Bounds().Dx())
		}
	}
	if variants[1].FileName != "hero_320w.webp" {
		t.Fatalf("sized variant name = %q", variants[1].FileName)
	}
}

func TestCreatePassesWidthToBinary(t *testing.T) {
	rules := []config.VariantRule{{
		Format:  "webp",
		Sources: []string{"jpeg"},
		Binary:  "cwebp",
		Args:    []string{"-resize", "{width}", "0", "{src}", "-o", "{dst}"},
		Quality: 80,
		Widths:  []int{480},
	}}
	cfg := testsupport.NewConfig(t, testsupport.WithVariants(rules))
	staging := t.TempDir()
	src := filepath.Join(staging, "hero.jpg")
	if err := os.WriteFile(src, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	var gotArgs []string
	runner := func(ctx context.Context, name string, args ...string) (string, error) {
		gotArgs = args
		return "", os.WriteFile(args[len(args)-1], []byte("w"), 0o644)
	}

	creator := variant.NewCreator(cfg, logging.NewNop(),
		variant.WithCommandRunner(runner),
		variant.WithLookPath(func(string) bool { return true }))

	if _, err := creator.Create(context.Background(), src, imaging.FormatJPEG, "hero", staging); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	want := []string{"-resize", "480", "0", src, "-o", filepath.Join(staging, "hero_480w.webp")}
	if !reflect.DeepEqual(gotArgs, want) {
		t.Fatalf("args = %v, want %v", gotArgs, want)
	}
}

func TestCreateDropsLargerNativeVariant(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithVariants(webpRule(0)))
	cfg.Workflow.SkipLarger = true
	staging := t.TempDir()
	src := filepath.Join(staging, "hero.jpg")
	if err := os.WriteFile(src, []byte("tiny"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	creator := variant.NewCreator(cfg, logging.NewNop(),
		variant.WithCommandRunner(writeDst("a much larger webp output")),
		variant.WithLookPath(func(string) bool { return true }))

	variants, err := creator.Create(context.Background(), src, imaging.FormatJPEG, "hero", staging)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(variants) != 0 {
		t.Fatalf("expected larger variant dropped, got %v", variants)
	}
	if _, err := os.Stat(filepath.Join(staging, "hero.webp")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("dropped variant file left behind")
	}
}

func TestCreateEmptyOutputIsToolError(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithVariants(webpRule(0)))
	staging := t.TempDir()
	src := filepath.Join(staging, "hero.jpg")
	if err := os.WriteFile(src, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	creator := variant.NewCreator(cfg, logging.NewNop(),
		variant.WithCommandRunner(writeDst("")),
		variant.WithLookPath(func(string) bool { return true }))

	variants, err := creator.Create(context.Background(), src, imaging.FormatJPEG, "hero", staging)
	if !errors.Is(err, tools.ErrExternalTool) {
		t.Fatalf("expected external tool error when every rendition fails, got %v", err)
	}
	if len(variants) != 0 {
		t.Fatalf("unexpected variants: %v", variants)
	}
}

func TestCreateContinuesPastFailedRendition(t *testing.T) {
	rules := []config.VariantRule{
		{
			Format:  "avif",
			Sources: []string{"jpeg"},
			Binary:  "avifenc",
			Args:    []string{"{src}", "-o", "{dst}"},
			Quality: 60,
			Widths:  []int{0},
		},
		webpRule(0)[0],
	}
	cfg := testsupport.NewConfig(t, testsupport.WithVariants(rules))
	staging := t.TempDir()
	src := filepath.Join(staging, "hero.jpg")
	if err := os.WriteFile(src, []byte("optimized jpeg bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	// avifenc leaves its output empty; cwebp writes real bytes.
	runner := func(ctx context.Context, name string, args ...string) (string, error) {
		contents := []byte("webp")
		if name == "avifenc" {
			contents = nil
		}
		for i, arg := range args {
			if arg == "-o" && i+1 < len(args) {
				return "", os.WriteFile(args[i+1], contents, 0o644)
			}
		}
		return "", errors.New("no -o argument")
	}

	creator := variant.NewCreator(cfg, logging.NewNop(),
		variant.WithCommandRunner(runner),
		variant.WithLookPath(func(string) bool { return true }))

	variants, err := creator.Create(context.Background(), src, imaging.FormatJPEG, "hero", staging)
	if err != nil {
		t.Fatalf("Create failed despite a healthy rendition: %v", err)
	}
	if len(variants) != 1 || variants[0].FileName != "hero.webp" {
		t.Fatalf("expected the webp rendition to survive, got %v", variants)
	}
	if _, err := os.Stat(filepath.Join(staging, "hero.webp")); err != nil {
		t.Fatalf("surviving rendition missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(staging, "hero.avif")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("failed rendition left behind")
	}
}

func TestCreateMissingBinaryIsConfigurationError(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithVariants(webpRule(0)))
	staging := t.TempDir()
	src := filepath.Join(staging, "hero.jpg")
	if err := os.WriteFile(src, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	creator := variant.NewCreator(cfg, logging.NewNop(),
		variant.WithLookPath(func(string) bool { return false }))

	_, err := creator.Create(context.Background(), src, imaging.FormatJPEG, "hero", staging)
	if !errors.Is(err, tools.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestStaleKeys(t *testing.T) {
	produced := []variant.Variant{
		{FileName: "hero.webp"},
		{FileName: "hero_640w.webp"},
	}
	existing := []string{
		"photos/hero.jpg",       // original, never stale
		"photos/hero.webp",      // still produced
		"photos/hero_640w.webp", // still produced
		"photos/hero_320w.webp", // no longer configured
		"photos/hero.avif",      // format removed from config
		"photos/heron.webp",     // different asset sharing the prefix
		"photos/other.webp",     // different asset
	}

	stale := variant.StaleKeys(existing, produced, "photos/hero.jpg", "hero", []string{"webp", "avif"})
	sort.Strings(stale)
	want := []string{"photos/hero.avif", "photos/hero_320w.webp"}
	if !reflect.DeepEqual(stale, want) {
		t.Fatalf("stale = %v, want %v", stale, want)
	}
}
