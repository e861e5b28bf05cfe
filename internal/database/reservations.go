package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"olympspa/internal/domain"
	"olympspa/internal/interval"
	"olympspa/internal/models"

	"github.com/google/uuid"
)

const reservationColumns = `id, date_from, date_to, guests, status, session_id, event_id, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r                   models.Reservation
		from, to, createdAt string
		sessionID, eventID  sql.NullString
	)
	if err := row.Scan(&r.ID, &from, &to, &r.Guests, &r.Status, &sessionID, &eventID, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if r.From, err = interval.ParseStorage(from); err != nil {
		return nil, err
	}
	if r.To, err = interval.ParseStorage(to); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = interval.ParseStorage(createdAt); err != nil {
		return nil, err
	}
	r.SessionID = sessionID.String
	r.EventID = eventID.String
	return &r, nil
}

func scanReservations(rows *sql.Rows) ([]*models.Reservation, error) {
	defer rows.Close()

	reservations := make([]*models.Reservation, 0)
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reservations, nil
}

// ListAll returns every confirmed reservation ordered by start.
func (db *DB) ListAll(ctx context.Context) ([]*models.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations ORDER BY date_from ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return scanReservations(rows)
}

// FindOverlapping returns the reservations sharing at least one instant with rng.
func (db *DB) FindOverlapping(ctx context.Context, rng interval.Range) ([]*models.Reservation, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
         WHERE date_from < ? AND ? < date_to
         ORDER BY date_from ASC`,
		interval.FormatStorage(rng.To), interval.FormatStorage(rng.From))
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping reservations: %w", err)
	}
	return scanReservations(rows)
}

// GetBySession returns the reservation created for a checkout session.
func (db *DB) GetBySession(ctx context.Context, sessionID string) (*models.Reservation, error) {
	r, err := scanReservation(db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE session_id = ?`, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation by session: %w", err)
	}
	return r, nil
}

// TryInsert admits r unless its range overlaps a confirmed reservation.
func (db *DB) TryInsert(ctx context.Context, r *models.Reservation) (bool, error) {
	rng, err := interval.New(r.From, r.To)
	if err != nil {
		return false, err
	}
	if r.Guests < 1 {
		return false, domain.ErrInvalidGuests
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Same session already committed: replay, no write.
	if r.SessionID != "" {
		existing, err := scanReservation(tx.QueryRowContext(ctx,
			`SELECT `+reservationColumns+` FROM reservations WHERE session_id = ?`, r.SessionID))
		switch {
		case err == nil:
			*r = *existing
			return false, nil
		case !errors.Is(err, sql.ErrNoRows):
			return false, fmt.Errorf("failed to check session in tx: %w", err)
		}
	}

	// 2. Overlap check inside the transaction.
	var overlapping int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE date_from < ? AND ? < date_to`,
		interval.FormatStorage(rng.To), interval.FormatStorage(rng.From)).Scan(&overlapping)
	if err != nil {
		return false, fmt.Errorf("failed to check overlap in tx: %w", err)
	}
	if overlapping > 0 {
		return false, domain.ErrConflict
	}

	// 3. Insert.
	created := *r
	created.ID = uuid.NewString()
	created.From, created.To = rng.From, rng.To
	created.Status = models.StatusConfirmed
	created.CreatedAt = interval.Normalize(time.Now())

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reservations (`+reservationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID,
		interval.FormatStorage(created.From),
		interval.FormatStorage(created.To),
		created.Guests,
		created.Status,
		nullString(created.SessionID),
		nullString(created.EventID),
		interval.FormatStorage(created.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert reservation in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit reservation: %w", err)
	}

	*r = created
	return true, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
