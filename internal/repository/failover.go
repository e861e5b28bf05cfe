package repository

import (
	"context"
	"sync/atomic"
	"time"

	"olympspa/internal/domain"
	"olympspa/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLedger reads and writes the primary ledger until it errors, then
// serves from the fallback and retries the primary once per recoveryInterval.
// Every Record also lands in the fallback so an outage does not forget
// deliveries seen before it.
type FailoverLedger struct {
	primary   domain.IdempotencyLedger
	fallback  domain.IdempotencyLedger
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverLedger(primary, fallback domain.IdempotencyLedger, logger *zerolog.Logger) *FailoverLedger {
	return &FailoverLedger{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverLedger) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary ledger failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverLedger) primaryAvailable() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverLedger) Lookup(ctx context.Context, eventID string) (models.ConfirmationOutcome, bool, error) {
	if r.primaryAvailable() {
		outcome, ok, err := r.primary.Lookup(ctx, eventID)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("Primary ledger recovered")
			}
			if ok {
				return outcome, true, nil
			}
			return r.fallback.Lookup(ctx, eventID)
		}
		r.markDown(err)
	}

	return r.fallback.Lookup(ctx, eventID)
}

func (r *FailoverLedger) Record(ctx context.Context, eventID string, outcome models.ConfirmationOutcome) error {
	if err := r.fallback.Record(ctx, eventID, outcome); err != nil {
		return err
	}
	if r.primaryAvailable() {
		if err := r.primary.Record(ctx, eventID, outcome); err != nil {
			r.markDown(err)
		}
	}
	return nil
}
