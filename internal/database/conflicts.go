package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"olympspa/internal/interval"
	"olympspa/internal/models"
)

// RecordConflict stores a paid confirmation that could not be admitted.
// Recording the same session twice is a no-op.
func (db *DB) RecordConflict(ctx context.Context, c *models.Conflict) error {
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now()
	}
	if c.Reason == "" {
		c.Reason = models.ConflictReasonOverlap
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	result, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conflicts (session_id, event_id, date_from, date_to, guests, reason, detected_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullString(c.SessionID),
		nullString(c.EventID),
		interval.FormatStorage(c.From),
		interval.FormatStorage(c.To),
		c.Guests,
		c.Reason,
		interval.FormatStorage(c.DetectedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record conflict: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 1 {
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		c.ID = id
	}
	return nil
}

func (db *DB) ListConflicts(ctx context.Context) ([]*models.Conflict, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, session_id, event_id, date_from, date_to, guests, reason, detected_at
         FROM conflicts ORDER BY detected_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	conflicts := make([]*models.Conflict, 0)
	for rows.Next() {
		var (
			c                    models.Conflict
			sessionID, eventID   sql.NullString
			from, to, detectedAt string
		)
		if err := rows.Scan(&c.ID, &sessionID, &eventID, &from, &to, &c.Guests, &c.Reason, &detectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		if c.From, err = interval.ParseStorage(from); err != nil {
			return nil, err
		}
		if c.To, err = interval.ParseStorage(to); err != nil {
			return nil, err
		}
		if c.DetectedAt, err = interval.ParseStorage(detectedAt); err != nil {
			return nil, err
		}
		c.SessionID = sessionID.String
		c.EventID = eventID.String
		conflicts = append(conflicts, &c)
	}
	return conflicts, rows.Err()
}
