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

// ConfirmationResult reports what a delivery did to the ledger.
type ConfirmationResult struct {
	EventID     string
	SessionID   string
	Outcome     models.ConfirmationOutcome
	Reservation *models.Reservation
	// Duplicate is true when the delivery changed nothing because the same
	// event or session had already been settled.
	Duplicate bool
}

// Reconciler turns verified payment events into reservations.
type Reconciler struct {
	store        domain.ReservationStore
	gateway      domain.PaymentGateway
	ledger       domain.IdempotencyLedger
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	logger       *zerolog.Logger
}

func NewReconciler(
	store domain.ReservationStore,
	gateway domain.PaymentGateway,
	ledger domain.IdempotencyLedger,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	logger *zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		store:        store,
		gateway:      gateway,
		ledger:       ledger,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		logger:       logger,
	}
}

// HandleWebhook authenticates a raw delivery and reconciles it. Untrusted
// payloads fail with domain.ErrUntrustedEvent before anything is decoded.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*ConfirmationResult, error) {
	event, err := r.gateway.VerifyAndParseEvent(payload, signatureHeader)
	if err != nil && event != nil && errors.Is(err, domain.ErrRejectedInvalid) {
		return r.rejectUnreadable(ctx, event, err)
	}
	if err != nil {
		metrics.IncConfirmation("untrusted")
		r.logger.Warn().Err(err).Int("bytes", len(payload)).Msg("dropping unverified webhook")
		if !errors.Is(err, domain.ErrUntrustedEvent) {
			err = fmt.Errorf("%w: %v", domain.ErrUntrustedEvent, err)
		}
		return nil, err
	}
	return r.OnPaymentConfirmed(ctx, event)
}

// OnPaymentConfirmed settles one verified event. Terminal rejections return
// both a result and the matching sentinel (domain.ErrConflict or
// domain.ErrRejectedInvalid); infrastructure failures return only an error
// and leave the event unrecorded so a redelivery can retry it.
func (r *Reconciler) OnPaymentConfirmed(ctx context.Context, event *models.PaymentEvent) (*ConfirmationResult, error) {
	result := &ConfirmationResult{EventID: event.ID, SessionID: event.SessionID}
	log := r.logger.With().Str("event_id", event.ID).Str("event_type", event.Type).Str("session_id", event.SessionID).Logger()

	if prior, ok := r.lookup(ctx, &log, event.ID); ok {
		result.Outcome = prior
		result.Duplicate = true
		metrics.IncConfirmation("duplicate")
		log.Info().Str("outcome", string(prior)).Msg("event already settled")
		return result, nil
	}

	if !event.Paid {
		result.Outcome = models.OutcomeIgnored
		metrics.IncConfirmation(string(models.OutcomeIgnored))
		log.Debug().Msg("event does not confirm a payment")
		return result, nil
	}

	candidate, err := reservationFromEvent(event)
	if err != nil {
		log.Error().Err(err).Interface("metadata", event.Metadata).Msg("paid event without usable reservation metadata")
		return r.rejectInvalid(ctx, &log, event, result, err)
	}

	created, err := r.store.TryInsert(ctx, candidate)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrConflict):
		return r.rejectConflict(ctx, &log, event, candidate, result)
	case errors.Is(err, domain.ErrInvalidRange), errors.Is(err, domain.ErrInvalidGuests):
		result.Outcome = models.OutcomeRejectedInvalid
		metrics.IncConfirmation(string(result.Outcome))
		r.record(ctx, &log, event.ID, result.Outcome)
		return result, fmt.Errorf("%w: %v", domain.ErrRejectedInvalid, err)
	default:
		log.Error().Err(err).Msg("store failure while confirming reservation")
		return nil, fmt.Errorf("confirm reservation: %w", err)
	}

	result.Outcome = models.OutcomeConfirmed
	result.Reservation = candidate
	r.record(ctx, &log, event.ID, result.Outcome)

	if !created {
		result.Duplicate = true
		metrics.IncConfirmation("duplicate")
		log.Info().Str("reservation_id", candidate.ID).Msg("session already confirmed")
		return result, nil
	}

	metrics.IncConfirmation(string(result.Outcome))
	log.Info().
		Str("reservation_id", candidate.ID).
		Str("range", candidate.Range().String()).
		Int("guests", candidate.Guests).
		Msg("reservation confirmed")

	r.publishEvent(events.EventReservationConfirmed, events.PayloadFromReservation(candidate, result.Outcome))
	if r.sheetsWorker != nil {
		if err := r.sheetsWorker.EnqueueReservation(ctx, candidate); err != nil {
			log.Error().Err(err).Str("reservation_id", candidate.ID).Msg("sheets enqueue error")
		}
	}
	return result, nil
}

// rejectUnreadable settles an authenticated event whose payload could not be
// decoded. It is terminal like any other invalid event.
func (r *Reconciler) rejectUnreadable(ctx context.Context, event *models.PaymentEvent, cause error) (*ConfirmationResult, error) {
	result := &ConfirmationResult{EventID: event.ID, SessionID: event.SessionID}
	log := r.logger.With().Str("event_id", event.ID).Str("event_type", event.Type).Logger()

	if prior, ok := r.lookup(ctx, &log, event.ID); ok {
		result.Outcome = prior
		result.Duplicate = true
		metrics.IncConfirmation("duplicate")
		return result, nil
	}

	log.Error().Err(cause).Msg("verified event with undecodable payload")
	return r.rejectInvalid(ctx, &log, event, result, cause)
}

func (r *Reconciler) rejectInvalid(ctx context.Context, log *zerolog.Logger, event *models.PaymentEvent, result *ConfirmationResult, cause error) (*ConfirmationResult, error) {
	result.Outcome = models.OutcomeRejectedInvalid
	metrics.IncConfirmation(string(result.Outcome))
	r.publishEvent(events.EventConfirmationRejected, events.ReservationEventPayload{
		SessionID: event.SessionID,
		EventID:   event.ID,
		Outcome:   string(result.Outcome),
		Reason:    cause.Error(),
	})
	r.record(ctx, log, event.ID, result.Outcome)
	if errors.Is(cause, domain.ErrRejectedInvalid) {
		return result, cause
	}
	return result, fmt.Errorf("%w: %v", domain.ErrRejectedInvalid, cause)
}

// rejectConflict handles a paid session whose range was taken in the
// meantime. The payment needs a manual refund, so the loss is stored, logged,
// counted and published for alerting.
func (r *Reconciler) rejectConflict(ctx context.Context, log *zerolog.Logger, event *models.PaymentEvent, candidate *models.Reservation, result *ConfirmationResult) (*ConfirmationResult, error) {
	result.Outcome = models.OutcomeRejectedConflict
	metrics.IncConfirmation(string(result.Outcome))
	metrics.IncPaidConflict()

	conflict := &models.Conflict{
		SessionID: event.SessionID,
		EventID:   event.ID,
		From:      candidate.From,
		To:        candidate.To,
		Guests:    candidate.Guests,
		Reason:    models.ConflictReasonOverlap,
	}
	if err := r.store.RecordConflict(ctx, conflict); err != nil {
		log.Error().Err(err).Msg("failed to persist paid conflict")
	}

	log.Error().
		Str("range", candidate.Range().String()).
		Int("guests", candidate.Guests).
		Msg("paid reservation lost to an overlapping confirmation; refund required")

	r.publishEvent(events.EventReservationConflict, events.ReservationEventPayload{
		SessionID: event.SessionID,
		EventID:   event.ID,
		From:      candidate.From,
		To:        candidate.To,
		Guests:    candidate.Guests,
		Outcome:   string(result.Outcome),
		Reason:    models.ConflictReasonOverlap,
	})
	r.record(ctx, log, event.ID, result.Outcome)
	return result, domain.ErrConflict
}

func reservationFromEvent(event *models.PaymentEvent) (*models.Reservation, error) {
	if event.SessionID == "" {
		return nil, errors.New("missing session id")
	}
	checkIn := event.GetString(models.MetaCheckIn)
	checkOut := event.GetString(models.MetaCheckOut)
	if checkIn == "" || checkOut == "" {
		return nil, errors.New("missing checkin/checkout metadata")
	}
	rng, err := interval.Parse(checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	guests, ok := event.GetInt(models.MetaGuests)
	if !ok || guests < 1 {
		return nil, fmt.Errorf("invalid guests metadata %q", event.GetString(models.MetaGuests))
	}

	return &models.Reservation{
		From:      rng.From,
		To:        rng.To,
		Guests:    guests,
		SessionID: event.SessionID,
		EventID:   event.ID,
	}, nil
}

func (r *Reconciler) lookup(ctx context.Context, log *zerolog.Logger, eventID string) (models.ConfirmationOutcome, bool) {
	if r.ledger == nil || eventID == "" {
		return "", false
	}
	outcome, ok, err := r.ledger.Lookup(ctx, eventID)
	if err != nil {
		// The store's session uniqueness still prevents a second reservation.
		log.Warn().Err(err).Msg("idempotency ledger lookup failed")
		return "", false
	}
	return outcome, ok && outcome.Terminal()
}

func (r *Reconciler) record(ctx context.Context, log *zerolog.Logger, eventID string, outcome models.ConfirmationOutcome) {
	if r.ledger == nil || eventID == "" {
		return
	}
	if err := r.ledger.Record(ctx, eventID, outcome); err != nil {
		log.Warn().Err(err).Str("outcome", string(outcome)).Msg("idempotency ledger write failed")
	}
}

func (r *Reconciler) publishEvent(eventType string, payload events.ReservationEventPayload) {
	if r.eventBus == nil {
		return
	}
	if err := r.eventBus.PublishJSON(eventType, payload); err != nil {
		r.logger.Error().Err(err).Str("event_type", eventType).Str("session_id", payload.SessionID).Msg("publish event error")
	}
}
