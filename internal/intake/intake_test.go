package intake_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"imagemill/internal/intake"
	"imagemill/internal/logging"
)

type recordingEnqueuer struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingEnqueuer) EnqueuePath(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func (r *recordingEnqueuer) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]string, len(r.paths))
	copy(cp, r.paths)
	return cp
}

func TestSupported(t *testing.T) {
	for _, path := range []string{"a.jpg", "b.JPEG", "c.png", "d.webp", "e.avif", "f.gif"} {
		if !intake.Supported(path) {
			t.Fatalf("%s should be supported", path)
		}
	}
	for _, path := range []string{"a.txt", "b.svg", "noext"} {
		if intake.Supported(path) {
			t.Fatalf("%s should not be supported", path)
		}
	}
}

func TestScanEnqueuesSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string]bool{
		"hero.jpg":    true,
		"icon.png":    true,
		"notes.txt":   false,
		".hidden.jpg": false,
	}
	for name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "deep.webp"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write nested: %v", err)
	}

	enq := &recordingEnqueuer{}
	count, err := intake.Scan(context.Background(), dir, enq, logging.NewNop())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	got := enq.snapshot()
	sort.Strings(got)
	want := []string{
		filepath.Join(dir, "hero.jpg"),
		filepath.Join(dir, "icon.png"),
		filepath.Join(sub, "deep.webp"),
	}
	sort.Strings(want)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("paths = %v, want %v", got, want)
		}
	}
}

func TestWatcherEnqueuesNewFiles(t *testing.T) {
	dir := t.TempDir()
	enq := &recordingEnqueuer{}

	watcher, err := intake.NewWatcher(dir, enq, logging.NewNop())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = watcher.Run(ctx)
	}()

	if err := os.WriteFile(filepath.Join(dir, "new.jpg"), []byte("image"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("text"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		if paths := enq.snapshot(); len(paths) > 0 {
			if len(paths) != 1 || filepath.Base(paths[0]) != "new.jpg" {
				t.Fatalf("unexpected enqueued paths: %v", paths)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher never enqueued the new file")
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}

func TestWatcherDebouncesRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	enq := &recordingEnqueuer{}

	watcher, err := intake.NewWatcher(dir, enq, logging.NewNop())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = watcher.Run(ctx) }()

	target := filepath.Join(dir, "burst.png")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(target, []byte("chunk"), 0o644); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	time.Sleep(1200 * time.Millisecond)
	if paths := enq.snapshot(); len(paths) != 1 {
		t.Fatalf("expected one debounced enqueue, got %d: %v", len(paths), paths)
	}
}
