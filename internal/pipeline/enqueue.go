package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"imagemill/internal/fileutil"
	"imagemill/internal/imaging"
	"imagemill/internal/logging"
	"imagemill/internal/queue"
)

// Enqueue fingerprints a rendered image and adds it to the queue. Duplicate
// content is skipped unless force is set; the returned bool reports whether
// a new item was created.
func Enqueue(ctx context.Context, store *queue.Store, path string, force bool) (*queue.Item, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, fmt.Errorf("resolve path: %w", err)
	}

	format, err := imaging.DetectFormat(abs)
	if err != nil {
		return nil, false, fmt.Errorf("detect format for %s: %w", abs, err)
	}

	fingerprint, err := fileutil.Fingerprint(abs)
	if err != nil {
		return nil, false, fmt.Errorf("fingerprint %s: %w", abs, err)
	}

	size, err := fileutil.FileSize(abs)
	if err != nil {
		return nil, false, fmt.Errorf("stat %s: %w", abs, err)
	}

	return store.Enqueue(ctx, abs, string(format), fingerprint, size, force)
}

// QueueEnqueuer adapts the store for the intake watcher and scanner.
type QueueEnqueuer struct {
	Store  *queue.Store
	Force  bool
	Logger *slog.Logger
}

// EnqueuePath implements intake.Enqueuer.
func (q *QueueEnqueuer) EnqueuePath(ctx context.Context, path string) error {
	item, created, err := Enqueue(ctx, q.Store, path, q.Force)
	if err != nil {
		return err
	}
	if !created && q.Logger != nil {
		q.Logger.Debug("duplicate content, already queued", logging.Args(
			logging.String("path", path),
			logging.Int64("item_id", item.ID),
		)...)
	}
	return nil
}
