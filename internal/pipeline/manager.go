package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"imagemill/internal/config"
	"imagemill/internal/logging"
	"imagemill/internal/queue"
	"imagemill/internal/tools"
)

// Handler executes one stage of work against a claimed item. Handlers
// mutate the item's artifact fields; the manager owns status transitions.
type Handler interface {
	Name() string
	Execute(ctx context.Context, item *queue.Item) error
}

type stage struct {
	entry      queue.Status
	processing queue.Status
	done       queue.Status
	handler    Handler
}

// Manager drives queue items through the configured stages.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	stages       []stage
	pollInterval time.Duration
	errorRetry   time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a pipeline manager with the default stage handlers.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...StageOption) *Manager {
	options := newStageOptions(opts)
	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetry:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
	}
	m.stages = []stage{
		{queue.StatusPending, queue.StatusOptimizing, queue.StatusOptimized, newOptimizeHandler(cfg, store, logger, options)},
		{queue.StatusOptimized, queue.StatusDeriving, queue.StatusDerived, newDeriveHandler(cfg, store, logger, options)},
		{queue.StatusDerived, queue.StatusPublishing, queue.StatusCompleted, newPublishHandler(cfg, store, logger, options)},
	}
	return m
}

// Start begins background processing. Stuck in-flight items from a previous
// run are rolled back to the start of their stage first.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("pipeline already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	if reset, err := m.store.ResetStuckProcessing(runCtx); err != nil {
		m.logger.Warn("failed to reset stuck items", logging.Args(logging.Error(err))...)
	} else if reset > 0 {
		m.logger.Info("rolled back in-flight items", logging.Args(logging.Int64("count", reset))...)
	}

	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := m.ProcessNext(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			m.logger.Error("failed to fetch next queue item",
				logging.Args(
					logging.Error(err),
					logging.String(logging.FieldEventType, "queue_fetch_failed"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)...)
			m.sleep(ctx, m.errorRetry)
		case !processed:
			m.sleep(ctx, m.pollInterval)
		}
	}
}

// ProcessNext claims the oldest workable item and runs it through one stage.
// It reports whether an item was processed. Stage failures are recorded on
// the item and do not surface as errors here.
func (m *Manager) ProcessNext(ctx context.Context) (bool, error) {
	entries := make([]queue.Status, 0, len(m.stages))
	for _, st := range m.stages {
		entries = append(entries, st.entry)
	}
	item, err := m.store.NextForStatuses(ctx, entries...)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	return true, m.processItem(ctx, item)
}

// Drain processes items until nothing workable remains. Used by the
// one-shot CLI path.
func (m *Manager) Drain(ctx context.Context) error {
	for {
		processed, err := m.ProcessNext(ctx)
		if err != nil {
			return err
		}
		if !processed {
			return nil
		}
	}
}

func (m *Manager) processItem(ctx context.Context, item *queue.Item) error {
	st, ok := m.stageForStatus(item.Status)
	if !ok {
		m.logger.Warn("no stage configured for status", logging.Args(logging.String("status", string(item.Status)))...)
		return nil
	}

	logger := m.logger.With(
		logging.Int64("item_id", item.ID),
		logging.String("stage", st.handler.Name()),
		logging.String("source_file", item.SourcePath),
	)

	item.Status = st.processing
	item.SetProgress(st.handler.Name(), st.handler.Name()+" started", 0)
	item.ErrorMessage = ""
	claimed, err := m.store.UpdateIfStatus(ctx, item, st.entry)
	if err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}
	if !claimed {
		// Another process transitioned the item between our read and the
		// claim; leave it to the winner.
		logger.Debug("item already claimed elsewhere", logging.Args(
			logging.String(logging.FieldEventType, "claim_lost"),
		)...)
		return nil
	}

	start := time.Now()
	logger.Info("stage started", logging.Args(logging.String(logging.FieldEventType, "stage_start"))...)

	if err := st.handler.Execute(ctx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		m.handleStageFailure(ctx, logger, st, item, err)
		return nil
	}

	if item.Status == st.processing {
		item.Status = st.done
	}
	if item.Status == queue.StatusCompleted && item.ProgressPercent < 100 {
		item.SetProgress("Completed", "all stages finished", 100)
	}
	if err := m.store.Update(ctx, item); err != nil {
		return fmt.Errorf("persist stage result: %w", err)
	}
	logger.Info("stage completed", logging.Args(
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(item.Status)),
		logging.Duration("stage_duration", time.Since(start)),
	)...)
	return nil
}

func (m *Manager) handleStageFailure(ctx context.Context, logger *slog.Logger, st stage, item *queue.Item, stageErr error) {
	item.Attempts++
	message := strings.TrimSpace(stageErr.Error())

	retryable := tools.Retryable(stageErr)
	if retryable && item.Attempts < m.cfg.Workflow.MaxAttempts {
		item.Status = st.entry
		item.ErrorMessage = message
		item.SetProgress(st.handler.Name(), fmt.Sprintf("retry %d/%d scheduled", item.Attempts, m.cfg.Workflow.MaxAttempts), 0)
		logging.WarnWithContext(logger, "stage failed, will retry", "stage_retry",
			logging.Error(stageErr),
			logging.Int("attempts", item.Attempts),
			logging.String(logging.FieldImpact, "item returned to queue"))
	} else {
		item.SetFailed(message)
		hint := "check logs for details"
		if !retryable {
			hint = "fix the configuration or input; this failure will not resolve on retry"
		}
		logging.ErrorWithContext(logger, "stage failed", "stage_failure",
			logging.Error(stageErr),
			logging.Int("attempts", item.Attempts),
			logging.String(logging.FieldErrorHint, hint))
	}

	if err := m.store.Update(ctx, item); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("failed to persist stage failure", logging.Args(logging.Error(err))...)
	}
}

func (m *Manager) stageForStatus(status queue.Status) (stage, bool) {
	for _, st := range m.stages {
		if st.entry == status {
			return st, true
		}
	}
	return stage{}, false
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
