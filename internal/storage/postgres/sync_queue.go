package postgres

import (
	"context"
	"fmt"
	"time"

	"olympspa/internal/models"

	"github.com/jackc/pgx/v5"
)

const syncTaskColumns = `id, task_type, reservation_id, COALESCE(payload, ''), status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (s *Store) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	if task.Status == "" {
		task.Status = models.SyncStatusPending
	}
	const stmt = `
INSERT INTO sync_queue (task_type, reservation_id, payload, status, retry_count, last_error, next_retry_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at`
	err := s.q(ctx).QueryRow(ctx, stmt,
		task.TaskType, task.ReservationID, task.Payload, task.Status,
		task.RetryCount, task.LastError, task.NextRetryAt,
	).Scan(&task.ID, &task.CreatedAt)
	if err != nil {
		return fmt.Errorf("create sync task: %w", err)
	}
	return nil
}

func (s *Store) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	query := `
SELECT ` + syncTaskColumns + `
FROM sync_queue
WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= NOW())
ORDER BY created_at ASC, id ASC
LIMIT $1`
	rows, err := s.q(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync tasks: %w", err)
	}
	return collectSyncTasks(rows)
}

func (s *Store) GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error) {
	query := `SELECT ` + syncTaskColumns + ` FROM sync_queue WHERE status = 'failed' ORDER BY created_at DESC`
	rows, err := s.q(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get failed sync tasks: %w", err)
	}
	return collectSyncTasks(rows)
}

func (s *Store) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var stmt string
	switch status {
	case models.SyncStatusRetry:
		stmt = `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3, retry_count = retry_count + 1 WHERE id = $4`
	case models.SyncStatusCompleted, models.SyncStatusFailed:
		stmt = `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3, processed_at = NOW() WHERE id = $4`
	default:
		stmt = `UPDATE sync_queue SET status = $1, last_error = $2, next_retry_at = $3 WHERE id = $4`
	}
	if _, err := s.q(ctx).Exec(ctx, stmt, status, errMsg, nextRetryAt, id); err != nil {
		return fmt.Errorf("update sync task status: %w", err)
	}
	return nil
}

func collectSyncTasks(rows pgx.Rows) ([]models.SyncTask, error) {
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		if err := rows.Scan(&t.ID, &t.TaskType, &t.ReservationID, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt); err != nil {
			return nil, fmt.Errorf("scan sync task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate sync tasks: %w", rows.Err())
	}
	return tasks, nil
}
