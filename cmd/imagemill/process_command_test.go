package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"imagemill/internal/queue"
	"imagemill/internal/testsupport"
)

// cwebpStub writes non-empty bytes to the path following -o, imitating a
// variant creator that produces output without needing the real encoder.
const cwebpStub = `#!/bin/sh
out=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "-o" ]; then out="$arg"; fi
  prev="$arg"
done
printf 'webp' > "$out"
`

func stubPipelineBinaries(t *testing.T, env *cliTestEnv) {
	t.Helper()
	testsupport.StubBinaries(t, env.baseDir, "#!/bin/sh\nexit 0\n", "jpegoptim", "optipng", "gifsicle")
	testsupport.StubBinaries(t, env.baseDir, cwebpStub, "cwebp")
}

func TestProcessCommandCompletesItem(t *testing.T) {
	env := setupCLITestEnv(t)
	stubPipelineBinaries(t, env)

	source := filepath.Join(env.cfg.Paths.IntakeDir, "hero.jpg")
	testsupport.WriteJPEG(t, source, 48, 32)

	out, _, err := runCLI(t, []string{"process", source}, env.configPath)
	if err != nil {
		t.Fatalf("process: %v\noutput: %s", err, out)
	}
	requireContains(t, out, "Queued "+source)
	requireContains(t, out, "hero.jpg: completed")

	items, err := env.store.List(context.Background(), queue.StatusCompleted)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 completed item, got %d", len(items))
	}

	for _, key := range []string{"hero.jpg", "hero.webp"} {
		if _, err := os.Stat(filepath.Join(env.cfg.Storage.Local.Root, key)); err != nil {
			t.Fatalf("published asset %s missing: %v", key, err)
		}
	}
}

func TestProcessCommandQueueOnly(t *testing.T) {
	env := setupCLITestEnv(t)

	source := filepath.Join(env.cfg.Paths.IntakeDir, "hero.jpg")
	testsupport.WriteJPEG(t, source, 32, 32)

	out, _, err := runCLI(t, []string{"process", "--queue", source}, env.configPath)
	if err != nil {
		t.Fatalf("process --queue: %v", err)
	}
	requireContains(t, out, "Queued "+source)

	items, err := env.store.List(context.Background(), queue.StatusPending)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 pending item, got %d", len(items))
	}
}

func TestProcessCommandDedupes(t *testing.T) {
	env := setupCLITestEnv(t)

	source := filepath.Join(env.cfg.Paths.IntakeDir, "hero.jpg")
	testsupport.WriteJPEG(t, source, 32, 32)

	if _, _, err := runCLI(t, []string{"process", "--queue", source}, env.configPath); err != nil {
		t.Fatalf("first process: %v", err)
	}
	out, _, err := runCLI(t, []string{"process", "--queue", source}, env.configPath)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	requireContains(t, out, "Already queued: "+source)
}
