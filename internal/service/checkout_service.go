package service

import (
	"context"
	"errors"
	"fmt"

	"olympspa/internal/domain"
	"olympspa/internal/events"
	"olympspa/internal/interval"
	"olympspa/internal/metrics"
	"olympspa/internal/models"

	"github.com/rs/zerolog"
)

type CheckoutService struct {
	availability *AvailabilityService
	gateway      domain.PaymentGateway
	eventBus     domain.EventPublisher
	logger       *zerolog.Logger
}

func NewCheckoutService(availability *AvailabilityService, gateway domain.PaymentGateway, eventBus domain.EventPublisher, logger *zerolog.Logger) *CheckoutService {
	return &CheckoutService{
		availability: availability,
		gateway:      gateway,
		eventBus:     eventBus,
		logger:       logger,
	}
}

// CreateCheckout opens a payment session carrying rng and guests as metadata.
// Nothing is written to the reservation store.
func (s *CheckoutService) CreateCheckout(ctx context.Context, rng interval.Range, guests int) (*models.CheckoutHandle, error) {
	if err := rng.Validate(); err != nil {
		metrics.IncCheckout("invalid")
		return nil, err
	}
	if guests < 1 {
		metrics.IncCheckout("invalid")
		return nil, domain.ErrInvalidGuests
	}

	// Fast fail before the gateway is contacted.
	if err := s.availability.CheckAvailability(ctx, rng); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.IncCheckout("conflict")
		} else {
			metrics.IncCheckout("error")
		}
		return nil, err
	}

	handle, err := s.gateway.CreateSession(ctx, models.CheckoutRequest{Range: rng, Guests: guests})
	if err != nil {
		metrics.IncCheckout("gateway_error")
		if !errors.Is(err, domain.ErrPaymentGateway) {
			err = fmt.Errorf("%w: %v", domain.ErrPaymentGateway, err)
		}
		return nil, err
	}

	metrics.IncCheckout("created")
	s.logger.Info().
		Str("session_id", handle.SessionID).
		Str("range", rng.String()).
		Int("guests", guests).
		Msg("checkout session created")

	s.publishEvent(events.EventCheckoutCreated, events.ReservationEventPayload{
		SessionID: handle.SessionID,
		From:      rng.From,
		To:        rng.To,
		Guests:    guests,
		Outcome:   string(models.OutcomeAwaitingPayment),
	})

	return handle, nil
}

func (s *CheckoutService) publishEvent(eventType string, payload events.ReservationEventPayload) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("session_id", payload.SessionID).Msg("publish event error")
	}
}
