package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"olympspa/internal/domain"
	"olympspa/internal/interval"
	"olympspa/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const reservationColumns = `id::text, date_from, date_to, guests, status, COALESCE(session_id, ''), COALESCE(event_id, ''), created_at`

func scanReservation(row pgx.Row) (*models.Reservation, error) {
	var r models.Reservation
	if err := row.Scan(&r.ID, &r.From, &r.To, &r.Guests, &r.Status, &r.SessionID, &r.EventID, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.From = interval.Normalize(r.From)
	r.To = interval.Normalize(r.To)
	r.CreatedAt = interval.Normalize(r.CreatedAt)
	return &r, nil
}

func collectReservations(rows pgx.Rows) ([]*models.Reservation, error) {
	defer rows.Close()

	reservations := make([]*models.Reservation, 0)
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate reservations: %w", rows.Err())
	}
	return reservations, nil
}

func (s *Store) ListAll(ctx context.Context) ([]*models.Reservation, error) {
	rows, err := s.q(ctx).Query(ctx, `SELECT `+reservationColumns+` FROM reservations ORDER BY date_from ASC`)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return collectReservations(rows)
}

func (s *Store) FindOverlapping(ctx context.Context, rng interval.Range) ([]*models.Reservation, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	const query = `
SELECT ` + reservationColumns + `
FROM reservations
WHERE tstzrange(date_from, date_to, '[)') && tstzrange($1, $2, '[)')
ORDER BY date_from ASC`
	rows, err := s.q(ctx).Query(ctx, query, interval.Normalize(rng.From), interval.Normalize(rng.To))
	if err != nil {
		return nil, fmt.Errorf("find overlapping reservations: %w", err)
	}
	return collectReservations(rows)
}

// GetBySession returns pgx.ErrNoRows wrapped when no reservation carries sessionID.
func (s *Store) GetBySession(ctx context.Context, sessionID string) (*models.Reservation, error) {
	r, err := scanReservation(s.q(ctx).QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE session_id = $1`, sessionID))
	if err != nil {
		return nil, fmt.Errorf("get reservation by session: %w", err)
	}
	return r, nil
}

// TryInsert relies on the exclusion constraint for overlap and on the
// session_id unique index for replays, so no lock beyond the row insert is taken.
func (s *Store) TryInsert(ctx context.Context, r *models.Reservation) (bool, error) {
	rng, err := interval.New(r.From, r.To)
	if err != nil {
		return false, err
	}
	if r.Guests < 1 {
		return false, domain.ErrInvalidGuests
	}

	created := *r
	created.ID = uuid.NewString()
	created.From, created.To = rng.From, rng.To
	created.Status = models.StatusConfirmed
	created.CreatedAt = interval.Normalize(time.Now())

	var inserted bool
	err = withTx(ctx, s.pool, func(ctx context.Context) error {
		const stmt = `
INSERT INTO reservations (id, date_from, date_to, guests, status, session_id, event_id, created_at)
VALUES ($1::uuid, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
ON CONFLICT (session_id) DO NOTHING
RETURNING id::text`
		var id string
		err := s.q(ctx).QueryRow(ctx, stmt,
			created.ID, created.From, created.To, created.Guests, created.Status,
			created.SessionID, created.EventID, created.CreatedAt,
		).Scan(&id)
		switch {
		case err == nil:
			inserted = true
			return nil
		case errors.Is(err, pgx.ErrNoRows):
			// Same session already admitted.
			existing, err := s.GetBySession(ctx, created.SessionID)
			if err != nil {
				return err
			}
			created = *existing
			return nil
		case isExclusionViolation(err):
			return domain.ErrConflict
		case isCheckViolation(err):
			return domain.ErrInvalidRange
		default:
			return fmt.Errorf("insert reservation: %w", err)
		}
	})
	if err != nil && created.SessionID != "" && (errors.Is(err, domain.ErrConflict) || isUniqueViolation(err)) {
		// A concurrent delivery for the same session can lose on the exclusion
		// constraint instead of the session index. The rolled-back tx cannot see
		// the winner, so re-read outside it.
		if existing, lookupErr := s.GetBySession(ctx, created.SessionID); lookupErr == nil {
			*r = *existing
			return false, nil
		} else if !errors.Is(lookupErr, pgx.ErrNoRows) {
			return false, lookupErr
		}
	}
	if err != nil {
		return false, err
	}

	*r = created
	return inserted, nil
}

func (s *Store) RecordConflict(ctx context.Context, c *models.Conflict) error {
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now()
	}
	if c.Reason == "" {
		c.Reason = models.ConflictReasonOverlap
	}

	const stmt = `
INSERT INTO conflicts (session_id, event_id, date_from, date_to, guests, reason, detected_at)
VALUES (NULLIF($1, ''), NULLIF($2, ''), $3, $4, $5, $6, $7)
ON CONFLICT (session_id) DO NOTHING
RETURNING id`
	var id int64
	err := s.q(ctx).QueryRow(ctx, stmt,
		c.SessionID, c.EventID,
		interval.Normalize(c.From), interval.Normalize(c.To),
		c.Guests, c.Reason, interval.Normalize(c.DetectedAt),
	).Scan(&id)
	switch {
	case err == nil:
		c.ID = id
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil
	default:
		return fmt.Errorf("record conflict: %w", err)
	}
}

func (s *Store) ListConflicts(ctx context.Context) ([]*models.Conflict, error) {
	const query = `
SELECT id, COALESCE(session_id, ''), COALESCE(event_id, ''), date_from, date_to, guests, reason, detected_at
FROM conflicts
ORDER BY detected_at ASC, id ASC`
	rows, err := s.q(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	conflicts := make([]*models.Conflict, 0)
	for rows.Next() {
		var c models.Conflict
		if err := rows.Scan(&c.ID, &c.SessionID, &c.EventID, &c.From, &c.To, &c.Guests, &c.Reason, &c.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		c.From = interval.Normalize(c.From)
		c.To = interval.Normalize(c.To)
		c.DetectedAt = interval.Normalize(c.DetectedAt)
		conflicts = append(conflicts, &c)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate conflicts: %w", rows.Err())
	}
	return conflicts, nil
}
