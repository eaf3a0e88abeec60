package queue

import (
	"context"
	"fmt"
	"time"
)

// ResetStuckProcessing rolls items left in processing states back to the
// start of their current stage. Run once at worker startup.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ensureContext(ctx),
		`UPDATE queue_items
         SET status = CASE status
             WHEN ? THEN ?
             WHEN ? THEN ?
             WHEN ? THEN ?
             ELSE status
         END,
             progress_stage = 'Reset from stuck processing',
             progress_percent = 0, progress_message = NULL, updated_at = ?
         WHERE status IN (?, ?, ?)`,
		StatusOptimizing, StatusPending,
		StatusDeriving, StatusOptimized,
		StatusPublishing, StatusDerived,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusOptimizing,
		StatusDeriving,
		StatusPublishing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed items back to pending for reprocessing. With no
// ids every failed item is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	ctx = ensureContext(ctx)
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE queue_items
            SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
                progress_message = NULL, error_message = NULL, attempts = 0, updated_at = ?
            WHERE status = ?`,
			StatusPending,
			time.Now().UTC().Format(time.RFC3339Nano),
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, time.Now().UTC().Format(time.RFC3339Nano))
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE queue_items
        SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
            progress_message = NULL, error_message = NULL, attempts = 0, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected items: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes queue items. When completedOnly is set, only completed items
// are deleted.
func (s *Store) Clear(ctx context.Context, completedOnly bool) (int64, error) {
	ctx = ensureContext(ctx)
	if completedOnly {
		res, err := s.execWithRetry(ctx, `DELETE FROM queue_items WHERE status = ?`, StatusCompleted)
		if err != nil {
			return 0, fmt.Errorf("clear completed items: %w", err)
		}
		return res.RowsAffected()
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM queue_items`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusFailed:
			health.Failed += count
		case StatusCompleted:
			health.Completed += count
		default:
			if _, ok := processingStatuses[status]; ok {
				health.Processing += count
			}
		}
	}
	return health, nil
}

// Savings aggregates byte accounting for completed items, grouped by format.
func (s *Store) Savings(ctx context.Context) ([]SavingsRow, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT format, COUNT(1), COALESCE(SUM(original_bytes), 0), COALESCE(SUM(optimized_bytes), 0)
         FROM queue_items WHERE status = ? GROUP BY format ORDER BY format`,
		StatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("savings query: %w", err)
	}
	defer rows.Close()

	var result []SavingsRow
	for rows.Next() {
		var row SavingsRow
		if err := rows.Scan(&row.Format, &row.Files, &row.OriginalBytes, &row.OptimizedBytes); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
