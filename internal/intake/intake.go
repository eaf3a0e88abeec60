// Package intake feeds rendered images into the queue, either by walking the
// intake directory once or by watching it for new files.
package intake

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"imagemill/internal/imaging"
	"imagemill/internal/logging"
)

// debounceDelay gives writers time to finish before a file is enqueued;
// rapid successive events on the same path collapse into one.
const debounceDelay = 500 * time.Millisecond

// Enqueuer accepts a discovered image path. Implementations decide dedupe
// and persistence.
type Enqueuer interface {
	EnqueuePath(ctx context.Context, path string) error
}

// Supported reports whether a path carries an extension the pipeline accepts.
func Supported(path string) bool {
	_, ok := imaging.FormatForExtension(filepath.Ext(path))
	return ok
}

// Scan walks the intake directory once and enqueues every supported image.
// It returns the number of files handed to the enqueuer.
func Scan(ctx context.Context, dir string, enq Enqueuer, logger *slog.Logger) (int, error) {
	logger = logging.NewComponentLogger(logger, "intake")

	count := 0
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || isHidden(entry.Name()) || !Supported(path) {
			return nil
		}
		if err := enq.EnqueuePath(ctx, path); err != nil {
			logging.ErrorWithContext(logger, "failed to enqueue file", "intake_enqueue_failed",
				logging.String("path", path),
				logging.Error(err))
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, nil
}

// Watcher monitors the intake directory and enqueues supported images as
// they appear.
type Watcher struct {
	dir     string
	enq     Enqueuer
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	debounce map[string]*time.Timer
}

// NewWatcher builds a watcher for the intake directory.
func NewWatcher(dir string, enq Enqueuer, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}
	return &Watcher{
		dir:      dir,
		enq:      enq,
		logger:   logging.NewComponentLogger(logger, "intake"),
		watcher:  fsWatcher,
		debounce: make(map[string]*time.Timer),
	}, nil
}

// Run processes events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching intake directory", logging.Args(logging.String("dir", w.dir))...)
	defer w.cancelPending()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "watcher error", "intake_watch_error",
				logging.Error(err))
		}
	}
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	w.cancelPending()
	return w.watcher.Close()
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if isHidden(filepath.Base(event.Name)) || !Supported(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, exists := w.debounce[event.Name]; exists {
		timer.Stop()
	}
	path := event.Name
	w.debounce[path] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.debounce, path)
		w.mu.Unlock()
		w.enqueue(ctx, path)
	})
}

func (w *Watcher) enqueue(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	// The file may have been renamed or deleted during the debounce window.
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := w.enq.EnqueuePath(ctx, path); err != nil {
		logging.ErrorWithContext(w.logger, "failed to enqueue file", "intake_enqueue_failed",
			logging.String("path", path),
			logging.Error(err))
		return
	}
	w.logger.Info("enqueued file", logging.Args(logging.String("path", path))...)
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.debounce {
		timer.Stop()
		delete(w.debounce, path)
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
