package service

import (
	"context"

	"olympspa/internal/domain"
	"olympspa/internal/interval"
	"olympspa/internal/models"

	"github.com/rs/zerolog"
)

// AvailabilityService answers read-side availability questions. Its answer
// is advisory: only ReservationStore.TryInsert admits a reservation.
type AvailabilityService struct {
	store  domain.ReservationStore
	logger *zerolog.Logger
}

func NewAvailabilityService(store domain.ReservationStore, logger *zerolog.Logger) *AvailabilityService {
	return &AvailabilityService{
		store:  store,
		logger: logger,
	}
}

// CheckAvailability returns nil when rng is free and domain.ErrConflict when
// it overlaps a confirmed reservation.
func (s *AvailabilityService) CheckAvailability(ctx context.Context, rng interval.Range) error {
	if err := rng.Validate(); err != nil {
		return err
	}

	existing, err := s.store.FindOverlapping(ctx, rng)
	if err != nil {
		return err
	}
	for _, r := range existing {
		if interval.Overlaps(rng, r.Range()) {
			s.logger.Debug().
				Str("requested", rng.String()).
				Str("reservation_id", r.ID).
				Msg("range unavailable")
			return domain.ErrConflict
		}
	}
	return nil
}

func (s *AvailabilityService) ListReservations(ctx context.Context) ([]*models.Reservation, error) {
	return s.store.ListAll(ctx)
}

func (s *AvailabilityService) ListConflicts(ctx context.Context) ([]*models.Conflict, error) {
	return s.store.ListConflicts(ctx)
}
