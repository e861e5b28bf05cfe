package repository

import (
	"context"
	"sync"
	"time"

	"olympspa/internal/models"
)

type ledgerEntry struct {
	outcome   models.ConfirmationOutcome
	expiresAt time.Time
}

// MemoryLedger is the in-process ledger used when Redis is not configured
// or unreachable. Entries expire after ttl; a zero ttl keeps them forever.
type MemoryLedger struct {
	entries sync.Map
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		ttl: ttl,
		now: time.Now,
	}
}

func (r *MemoryLedger) Lookup(_ context.Context, eventID string) (models.ConfirmationOutcome, bool, error) {
	val, ok := r.entries.Load(eventID)
	if !ok {
		return "", false, nil
	}
	entry := val.(ledgerEntry)
	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		r.entries.Delete(eventID)
		return "", false, nil
	}
	return entry.outcome, true, nil
}

func (r *MemoryLedger) Record(_ context.Context, eventID string, outcome models.ConfirmationOutcome) error {
	entry := ledgerEntry{outcome: outcome}
	if r.ttl > 0 {
		entry.expiresAt = r.now().Add(r.ttl)
	}
	r.entries.Store(eventID, entry)
	return nil
}
