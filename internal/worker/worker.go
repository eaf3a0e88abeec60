// Package worker runs the long-lived imagemill process: the pipeline
// manager, the intake watcher, and the periodic stale staging sweep,
// guarded by a single-instance file lock.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"imagemill/internal/config"
	"imagemill/internal/intake"
	"imagemill/internal/logging"
	"imagemill/internal/pipeline"
	"imagemill/internal/queue"
	"imagemill/internal/staging"
)

// Worker coordinates background processing and enforces single-instance execution.
type Worker struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	pipeline *pipeline.Manager
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents worker runtime information.
type Status struct {
	Running      bool
	QueueDBPath  string
	LockFilePath string
	Queue        queue.HealthSummary
}

// New constructs a worker with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, manager *pipeline.Manager) (*Worker, error) {
	if cfg == nil || store == nil || logger == nil || manager == nil {
		return nil, errors.New("worker requires config, store, logger, and pipeline manager")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "imagemill.lock")
	return &Worker{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "worker"),
		store:    store,
		pipeline: manager,
		logPath:  filepath.Join(cfg.Paths.LogDir, "imagemill.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the pipeline, the intake
// watcher when an intake directory is configured, and the staging sweep.
func (w *Worker) Start(ctx context.Context) error {
	if w.running.Load() {
		return errors.New("worker already running")
	}

	ok, err := w.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another imagemill worker instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := w.pipeline.Start(runCtx); err != nil {
		_ = w.lock.Unlock()
		cancel()
		return fmt.Errorf("start pipeline: %w", err)
	}
	w.cancel = cancel

	if strings.TrimSpace(w.cfg.Paths.IntakeDir) != "" {
		if err := w.startWatcher(runCtx); err != nil {
			w.pipeline.Stop()
			_ = w.lock.Unlock()
			cancel()
			w.cancel = nil
			return err
		}
	}

	w.wg.Add(1)
	go w.sweepStaleStaging(runCtx)

	w.running.Store(true)
	w.logger.Info("imagemill worker started", logging.Args(logging.String("lock", w.lockPath))...)
	return nil
}

func (w *Worker) startWatcher(ctx context.Context) error {
	enq := &pipeline.QueueEnqueuer{Store: w.store, Logger: w.logger}

	// Pick up files that landed while no worker was running.
	if count, err := intake.Scan(ctx, w.cfg.Paths.IntakeDir, enq, w.logger); err != nil {
		logging.WarnWithContext(w.logger, "initial intake scan failed", "intake_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "existing files may not be queued until touched"))
	} else if count > 0 {
		w.logger.Info("queued files from intake scan", logging.Args(logging.Int("count", count))...)
	}

	watcher, err := intake.NewWatcher(w.cfg.Paths.IntakeDir, enq, w.logger)
	if err != nil {
		return fmt.Errorf("start intake watcher: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer watcher.Close()
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.ErrorWithContext(w.logger, "intake watcher stopped", "intake_watch_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "restart the worker to resume watching"))
		}
	}()
	return nil
}

func (w *Worker) sweepStaleStaging(ctx context.Context) {
	defer w.wg.Done()

	maxAge := time.Duration(w.cfg.Workflow.StaleStagingHours) * time.Hour
	if maxAge <= 0 {
		return
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	w.runSweep(maxAge)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runSweep(maxAge)
		}
	}
}

func (w *Worker) runSweep(maxAge time.Duration) {
	result := staging.CleanStale(w.cfg.Paths.StagingDir, maxAge, w.logger)
	if len(result.Removed) > 0 {
		w.logger.Info("stale staging sweep finished", logging.Args(
			logging.Int("removed", len(result.Removed)),
			logging.Int("errors", len(result.Errors)),
		)...)
	}
}

// Stop stops background processing and releases the instance lock.
func (w *Worker) Stop() {
	if !w.running.Load() {
		return
	}

	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.pipeline.Stop()
	w.wg.Wait()
	if err := w.lock.Unlock(); err != nil {
		w.logger.Warn("failed to release worker lock", logging.Args(logging.Error(err))...)
	}
	w.running.Store(false)
	w.logger.Info("imagemill worker stopped")
}

// Close releases resources held by the worker.
func (w *Worker) Close() error {
	w.Stop()
	if w.store != nil {
		return w.store.Close()
	}
	return nil
}

// Running reports whether the worker has been started.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// LogPath returns the path to the worker log file.
func (w *Worker) LogPath() string {
	return w.logPath
}

// Status returns the current worker status.
func (w *Worker) Status(ctx context.Context) (Status, error) {
	health, err := w.store.Health(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      w.running.Load(),
		QueueDBPath:  w.store.Path(),
		LockFilePath: w.lockPath,
		Queue:        health,
	}, nil
}
